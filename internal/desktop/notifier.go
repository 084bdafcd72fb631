package desktop

import (
	"log/slog"
	"strconv"
	"sync"

	dbus "github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"posbridge/internal/alert"
	"posbridge/internal/cleanup"
)

const (
	notifService = "org.freedesktop.Notifications"
	notifPath    = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifIface   = "org.freedesktop.Notifications"

	actionDefault = "default"
)

// NotifierOptions configures a Notifier.
type NotifierOptions struct {
	AppName string
	Icon    string
	// OnActivate receives the payload of a notification the user clicked.
	OnActivate func(payload map[string]string)
	Log        *slog.Logger
}

// Notifier posts alerts to the session's notification server. The server
// assigns its own ids, so each alert slot is mapped to the id it was last
// shown under; re-posting a slot replaces that notification.
type Notifier struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	opts NotifierOptions
	log  *slog.Logger

	mu       sync.Mutex
	channel  alert.Channel
	actions  bool
	byslot   map[int32]uint32
	payloads map[uint32]map[string]string

	sigCh chan *dbus.Signal
	done  chan struct{}
}

var _ alert.Notifier = (*Notifier)(nil)

// NewNotifier subscribes to activation and close signals on conn.
func NewNotifier(conn *dbus.Conn, opts NotifierOptions) (*Notifier, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	n := &Notifier{
		conn:     conn,
		obj:      conn.Object(notifService, notifPath),
		opts:     opts,
		log:      log.With("component", "notifier"),
		byslot:   make(map[int32]uint32),
		payloads: make(map[uint32]map[string]string),
		sigCh:    make(chan *dbus.Signal, 16),
		done:     make(chan struct{}),
	}
	for _, member := range []string{"ActionInvoked", "NotificationClosed"} {
		if err := conn.AddMatchSignal(
			dbus.WithMatchInterface(notifIface),
			dbus.WithMatchMember(member),
		); err != nil {
			return nil, errors.Wrapf(err, "subscribe to %s", member)
		}
	}
	conn.Signal(n.sigCh)
	go n.watch()
	return n, nil
}

// CreateChannel checks that a notification server is running and records
// the channel settings applied to every notification.
func (n *Notifier) CreateChannel(ch alert.Channel) error {
	var caps []string
	if err := n.obj.Call(notifIface+".GetCapabilities", 0).Store(&caps); err != nil {
		return errors.Wrap(err, "query notification server")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channel = ch
	n.actions = hasCapability(caps, "actions")
	n.log.Debug("notification channel ready", "channel", ch.ID, "capabilities", caps)
	return nil
}

func (n *Notifier) Notify(id int32, notif alert.Notification) error {
	n.mu.Lock()
	replaces := n.byslot[id]
	ch := n.channel
	withActions := n.actions
	n.mu.Unlock()

	var actions []string
	if withActions {
		actions = []string{actionDefault, "Open"}
	}
	expire := int32(-1)
	if notif.Ongoing {
		expire = 0
	}

	var srvID uint32
	call := n.obj.Call(notifIface+".Notify", 0,
		n.opts.AppName,
		replaces,
		n.opts.Icon,
		notif.Title,
		notif.Body,
		actions,
		notificationHints(ch, notif),
		expire,
	)
	if err := call.Store(&srvID); err != nil {
		return errors.Wrap(err, "post notification")
	}

	n.mu.Lock()
	if replaces != 0 && replaces != srvID {
		delete(n.payloads, replaces)
	}
	n.byslot[id] = srvID
	n.payloads[srvID] = copyPayload(notif.Payload)
	n.mu.Unlock()
	return nil
}

// Cancel closes the notification shown in slot id. Slots live in memory
// only: a notification left over from an earlier process cannot be found
// and Cancel is a no-op for it. Close removes every tracked notification so
// none are left behind.
func (n *Notifier) Cancel(id int32) error {
	n.mu.Lock()
	srvID, ok := n.byslot[id]
	delete(n.byslot, id)
	delete(n.payloads, srvID)
	n.mu.Unlock()
	if !ok {
		return nil
	}
	if err := n.obj.Call(notifIface+".CloseNotification", 0, srvID).Err; err != nil {
		return errors.Wrapf(err, "close notification %d", srvID)
	}
	return nil
}

// Close removes the notifications it still tracks and stops watching
// signals.
func (n *Notifier) Close() {
	if err := n.closeAll(); err != nil {
		n.log.Warn("close notifications", "err", err)
	}
	n.conn.RemoveSignal(n.sigCh)
	for _, member := range []string{"ActionInvoked", "NotificationClosed"} {
		_ = n.conn.RemoveMatchSignal(
			dbus.WithMatchInterface(notifIface),
			dbus.WithMatchMember(member),
		)
	}
	close(n.done)
}

// closeAll closes every tracked notification and forgets them all.
func (n *Notifier) closeAll() error {
	n.mu.Lock()
	ids := make([]uint32, 0, len(n.byslot))
	for _, srvID := range n.byslot {
		ids = append(ids, srvID)
	}
	n.byslot = make(map[int32]uint32)
	n.payloads = make(map[uint32]map[string]string)
	n.mu.Unlock()

	steps := make([]cleanup.Step, 0, len(ids))
	for _, srvID := range ids {
		srvID := srvID
		steps = append(steps, cleanup.Step{
			Name: "close notification " + strconv.FormatUint(uint64(srvID), 10),
			Fn:   func() error { return n.obj.Call(notifIface+".CloseNotification", 0, srvID).Err },
		})
	}
	return cleanup.Run(steps...)
}

func (n *Notifier) watch() {
	for {
		select {
		case <-n.done:
			return
		case sig, ok := <-n.sigCh:
			if !ok {
				return
			}
			n.handleSignal(sig)
		}
	}
}

func (n *Notifier) handleSignal(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) < 2 {
		return
	}
	srvID, ok := sig.Body[0].(uint32)
	if !ok {
		return
	}
	switch sig.Name {
	case notifIface + ".ActionInvoked":
		action, _ := sig.Body[1].(string)
		if action != actionDefault {
			return
		}
		n.mu.Lock()
		payload, known := n.payloads[srvID]
		n.mu.Unlock()
		if known && n.opts.OnActivate != nil {
			n.log.Info("notification activated", "id", srvID)
			n.opts.OnActivate(copyPayload(payload))
		}
	case notifIface + ".NotificationClosed":
		n.forget(srvID)
	}
}

// forget drops a notification the server closed on its own.
func (n *Notifier) forget(srvID uint32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for slot, id := range n.byslot {
		if id == srvID {
			delete(n.byslot, slot)
		}
	}
	delete(n.payloads, srvID)
}

func notificationHints(ch alert.Channel, notif alert.Notification) map[string]dbus.Variant {
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(urgencyByte(ch.Urgency)),
	}
	if notif.Category != "" {
		hints["category"] = dbus.MakeVariant(notif.Category)
	}
	if notif.Ongoing {
		hints["resident"] = dbus.MakeVariant(true)
	}
	if ch.Silent {
		hints["suppress-sound"] = dbus.MakeVariant(true)
	}
	if notif.FullScreen {
		// No portable full-screen intent; KDE and GNOME raise critical
		// notifications over fullscreen windows.
		hints["x-kde-display-appname"] = dbus.MakeVariant(ch.Name)
	}
	return hints
}

func urgencyByte(u alert.Urgency) byte {
	switch u {
	case alert.UrgencyLow:
		return 0
	case alert.UrgencyCritical:
		return 2
	}
	return 1
}

func hasCapability(caps []string, want string) bool {
	for _, c := range caps {
		if c == want {
			return true
		}
	}
	return false
}

func copyPayload(p map[string]string) map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
