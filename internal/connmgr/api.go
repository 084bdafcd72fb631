// Package connmgr defines the BlueZ-facing interface used to reach a receipt
// printer, responsible for preparing Unix FDs for RFCOMM SPP connections via
// BlueZ D-Bus.
//
// Thread-safety: all methods are safe for concurrent use. Connect calls to
// different devices may overlap; the caller serializes connects to the same
// device. Close is idempotent.
package connmgr

import (
	"context"
	"errors"
)

const (
	// SPPUUID is the Serial Port Profile UUID used for RFCOMM connections.
	SPPUUID = "00001101-0000-1000-8000-00805f9b34fb"
)

// ErrUnknownDevice is returned by Resolve when no adapter knows the address.
var ErrUnknownDevice = errors.New("connmgr: unknown device")

// Device represents the minimum information needed to display and connect.
//
// Path is the BlueZ Device1 object path. Name prefers Device1.Alias over
// Device1.Name.
type Device struct {
	Path   string // D-Bus object path of the device (e.g. /org/bluez/hci0/dev_XX_XX_XX_XX_XX_XX)
	MAC    string // Bluetooth device address, upper case
	Name   string
	Paired bool
}

// Mgr is the single public interface for enumeration and client connections.
// Responsibilities end at preparing FDs for the caller; reconnect policy is
// out of scope.
type Mgr interface {
	// BondedDevices returns a snapshot of paired devices across all adapters.
	// With no adapter present the result is empty and err is nil.
	BondedDevices(ctx context.Context) ([]Device, error)

	// Resolve looks up the device object for a MAC address.
	// Malformed addresses and addresses unknown to every adapter fail.
	Resolve(ctx context.Context, mac string) (Device, error)

	// Connect opens an SPP link to dev and returns the RFCOMM FD, which the
	// caller owns. A client-side profile with authentication and
	// authorization disabled is registered on first use and reused by later
	// calls; a bonded printer therefore never triggers a pairing prompt.
	// Context cancellation abandons the wait; an FD delivered afterwards is
	// closed by the implementation.
	Connect(ctx context.Context, dev Device) (fd int, err error)

	// Close unregisters the profile and releases the bus connection.
	// After Close, all other methods return an error.
	Close() error
}
