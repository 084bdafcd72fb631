package desktop

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	dbus "github.com/godbus/dbus/v5"
	"github.com/pkg/errors"

	"posbridge/internal/alert"
	"posbridge/internal/cleanup"
)

const (
	mprisPrefix = "org.mpris.MediaPlayer2."
	mprisPath   = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisPlayer = "org.mpris.MediaPlayer2.Player"
)

// MPRISFocus takes audio focus by pausing every MPRIS player that is
// playing; releasing the grant resumes exactly those players.
type MPRISFocus struct {
	conn *dbus.Conn
	log  *slog.Logger
}

var _ alert.AudioFocus = (*MPRISFocus)(nil)

// NewMPRISFocus uses conn, normally the session bus.
func NewMPRISFocus(conn *dbus.Conn, log *slog.Logger) *MPRISFocus {
	if log == nil {
		log = slog.Default()
	}
	return &MPRISFocus{conn: conn, log: log.With("component", "focus")}
}

func (f *MPRISFocus) Acquire(ctx context.Context, kind alert.FocusKind, usage alert.Usage) (alert.FocusGrant, error) {
	var names []string
	if err := f.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return nil, errors.Wrap(err, "list session bus names")
	}

	g := &mprisGrant{conn: f.conn, log: f.log}
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		obj := f.conn.Object(name, mprisPath)
		v, err := obj.GetProperty(mprisPlayer + ".PlaybackStatus")
		if err != nil {
			continue
		}
		if status, _ := v.Value().(string); status != "Playing" {
			continue
		}
		if err := obj.CallWithContext(ctx, mprisPlayer+".Pause", 0).Err; err != nil {
			f.log.Warn("pause player", "player", name, "err", err)
			continue
		}
		g.paused = append(g.paused, name)
	}
	f.log.Debug("audio focus acquired", "usage", usage, "paused", g.paused)
	return g, nil
}

type mprisGrant struct {
	conn   *dbus.Conn
	log    *slog.Logger
	once   sync.Once
	paused []string
}

// Release resumes the players paused by Acquire. Later calls are no-ops.
func (g *mprisGrant) Release() error {
	var err error
	g.once.Do(func() {
		steps := make([]cleanup.Step, 0, len(g.paused))
		for _, name := range g.paused {
			obj := g.conn.Object(name, mprisPath)
			steps = append(steps, cleanup.Step{
				Name: "resume " + name,
				Fn:   func() error { return obj.Call(mprisPlayer+".Play", 0).Err },
			})
		}
		err = cleanup.Run(steps...)
	})
	return err
}
