//go:build linux

package connmgr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	dbus "github.com/godbus/dbus/v5"

	"posbridge/internal/cleanup"
)

// New creates a new manager instance. The system bus is dialed lazily.
func New() Mgr {
	return &mgr{}
}

var pathCounter uint64

type mgr struct {
	mu     sync.Mutex
	closed bool

	bus *dbus.Conn

	// client profile, registered once and reused by every Connect
	cliProf    *profile
	clientPath dbus.ObjectPath

	// releases resources in Close, in reverse order of registration.
	cleanup cleanup.Stack
}

// ensureBusLocked connects to the system bus if not yet connected.
func (m *mgr) ensureBusLocked() error {
	if m.bus != nil {
		return nil
	}
	c, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connmgr: connect system bus: %w", err)
	}
	m.bus = c
	// Close the bus last during cleanup.
	m.cleanup.Push(func() { m.bus.Close() })
	return nil
}

// profile implements org.bluez.Profile1 and forwards NewConnection events to
// the Connect call waiting on that device.
type profile struct {
	mu      sync.Mutex
	pending map[dbus.ObjectPath]chan acceptResult
}

type acceptResult struct {
	fd  int
	dev Device
}

func newProfile() *profile {
	return &profile{pending: make(map[dbus.ObjectPath]chan acceptResult)}
}

// wait registers interest in the next connection for dev.
func (p *profile) wait(dev dbus.ObjectPath) (chan acceptResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.pending[dev]; busy {
		return nil, errors.New("connmgr: connect already in progress for " + string(dev))
	}
	ch := make(chan acceptResult, 1)
	p.pending[dev] = ch
	return ch, nil
}

// abandon drops interest in dev and closes an FD that raced in.
func (p *profile) abandon(dev dbus.ObjectPath, ch chan acceptResult) {
	p.mu.Lock()
	if p.pending[dev] == ch {
		delete(p.pending, dev)
	}
	p.mu.Unlock()
	select {
	case res := <-ch:
		_ = os.NewFile(uintptr(res.fd), "rfcomm").Close()
	default:
	}
}

// Release is called by BlueZ when the profile is being released.
func (p *profile) Release() *dbus.Error { return nil }

// Cancel may be called to indicate a canceled request.
func (p *profile) Cancel() *dbus.Error { return nil }

// RequestDisconnection is ignored; the FD owner closes the link.
func (p *profile) RequestDisconnection(_ dbus.ObjectPath) *dbus.Error { return nil }

// NewConnection delivers the RFCOMM socket FD to the Connect call waiting on
// the device. Unsolicited connections are closed and rejected.
func (p *profile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	res := acceptResult{
		fd:  int(fd),
		dev: Device{Path: string(dev), MAC: macFromPath(dev)},
	}
	p.mu.Lock()
	ch, ok := p.pending[dev]
	if ok {
		delete(p.pending, dev)
	}
	p.mu.Unlock()

	if ok {
		select {
		case ch <- res:
			return nil
		default:
		}
	}
	// No receiver; close FD and return a rejection to avoid leaks.
	_ = os.NewFile(uintptr(res.fd), "rfcomm").Close()
	return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"no receiver"}}
}

func (m *mgr) BondedDevices(ctx context.Context) ([]Device, error) {
	bus, err := m.busForCall()
	if err != nil {
		return nil, err
	}
	objs, err := managedObjects(ctx, bus)
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0)
	for path, ifaces := range objs {
		dev, ok := deviceFromIfaces(path, ifaces)
		if ok && dev.Paired {
			out = append(out, dev)
		}
	}
	sortDevices(out)
	return out, nil
}

func (m *mgr) Resolve(ctx context.Context, mac string) (Device, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) != 6 {
		return Device{}, fmt.Errorf("connmgr: invalid device address %q", mac)
	}
	want := strings.ToUpper(hw.String())

	bus, err := m.busForCall()
	if err != nil {
		return Device{}, err
	}
	objs, err := managedObjects(ctx, bus)
	if err != nil {
		return Device{}, err
	}
	for path, ifaces := range objs {
		if dev, ok := deviceFromIfaces(path, ifaces); ok && strings.EqualFold(dev.MAC, want) {
			return dev, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %s", ErrUnknownDevice, want)
}

func (m *mgr) Connect(ctx context.Context, dev Device) (fd int, err error) {
	if dev.Path == "" {
		return 0, errors.New("connmgr: device path required")
	}
	prof, bus, err := m.ensureClientProfile()
	if err != nil {
		return 0, err
	}

	devPath := dbus.ObjectPath(dev.Path)
	ch, err := prof.wait(devPath)
	if err != nil {
		return 0, err
	}

	devObj := bus.Object(bluezService, devPath)
	call := devObj.CallWithContext(ctx, deviceIface+".ConnectProfile", 0, SPPUUID)
	if isDBusError(call.Err, errAlreadyConnected) {
		// A previous link was never torn down on the BlueZ side.
		_ = devObj.CallWithContext(ctx, deviceIface+".DisconnectProfile", 0, SPPUUID).Err
		call = devObj.CallWithContext(ctx, deviceIface+".ConnectProfile", 0, SPPUUID)
	}
	if call.Err != nil {
		prof.abandon(devPath, ch)
		return 0, fmt.Errorf("connmgr: ConnectProfile: %w", call.Err)
	}

	select {
	case <-ctx.Done():
		prof.abandon(devPath, ch)
		return 0, fmt.Errorf("connmgr: connect canceled: %w", ctx.Err())
	case res := <-ch:
		return res.fd, nil
	}
}

// ensureClientProfile exports and registers the client-side SPP profile once.
func (m *mgr) ensureClientProfile() (*profile, *dbus.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, errors.New("connmgr: closed")
	}
	if err := m.ensureBusLocked(); err != nil {
		return nil, nil, err
	}
	if m.cliProf != nil {
		return m.cliProf, m.bus, nil
	}

	prof := newProfile()
	// Unique client path per instance.
	id := atomic.AddUint64(&pathCounter, 1)
	path := dbus.ObjectPath("/org/posbridge/connmgr/client/p" + strconv.FormatUint(id, 10))
	if err := m.bus.Export(prof, path, profileInterfaceName); err != nil {
		return nil, nil, fmt.Errorf("connmgr: export client profile: %w", err)
	}
	pm := m.bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
	optsMap := map[string]dbus.Variant{
		"Role": dbus.MakeVariant("client"),
		// Insecure variant: a bonded printer must not raise a pairing prompt.
		"RequireAuthentication": dbus.MakeVariant(false),
		"RequireAuthorization":  dbus.MakeVariant(false),
		"AutoConnect":           dbus.MakeVariant(false),
	}
	if call := pm.Call(profileManagerIface+".RegisterProfile", 0, path, SPPUUID, optsMap); call.Err != nil {
		_ = m.bus.Export(nil, path, profileInterfaceName)
		return nil, nil, fmt.Errorf("connmgr: RegisterProfile(client): %w", call.Err)
	}
	// Unregister client profile on close, before the bus goes away.
	bus := m.bus
	m.cleanup.Push(func() {
		_ = pm.Call(profileManagerIface+".UnregisterProfile", 0, path).Err
		_ = bus.Export(nil, path, profileInterfaceName)
	})
	m.cliProf = prof
	m.clientPath = path
	return prof, m.bus, nil
}

func (m *mgr) busForCall() (*dbus.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("connmgr: closed")
	}
	if err := m.ensureBusLocked(); err != nil {
		return nil, err
	}
	return m.bus, nil
}

// Close is safe for concurrent and redundant calls (idempotent).
func (m *mgr) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cleanup.Unwind()
	return nil
}

// Helpers

func managedObjects(ctx context.Context, bus *dbus.Conn) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	obj := bus.Object(bluezService, dbus.ObjectPath("/"))
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if call := obj.CallWithContext(ctx, objManagerIface+".GetManagedObjects", 0); call.Err != nil {
		if isDBusError(call.Err, "org.freedesktop.DBus.Error.ServiceUnknown") {
			// bluetoothd not running: same as having no adapter.
			return nil, nil
		}
		return nil, fmt.Errorf("connmgr: GetManagedObjects: %w", call.Err)
	} else if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("connmgr: decode GetManagedObjects: %w", err)
	}
	return objs, nil
}

func isDBusError(err error, name string) bool {
	var derr dbus.Error
	if errors.As(err, &derr) {
		return derr.Name == name
	}
	var pderr *dbus.Error
	if errors.As(err, &pderr) {
		return pderr.Name == name
	}
	return false
}
