//go:build linux

package volkeys

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

// _IOW('E', 0x90, int)
const evIOCGRAB = 0x40044590

// Guard grabs an evdev device exclusively while locked, so its key events
// reach no other reader. Only the device carrying the volume keys should be
// configured; a keyboard grabbed this way loses every key.
type Guard struct {
	Path string
	Log  *slog.Logger

	mu sync.Mutex
	fd int
	on bool
}

func NewGuard(path string, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{Path: path, Log: log.With("component", "volkeys"), fd: -1}
}

// SetLocked grabs or releases the device. With no device configured it does
// nothing.
func (g *Guard) SetLocked(locked bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Path == "" || locked == g.on {
		return nil
	}
	if locked {
		fd, err := unix.Open(g.Path, unix.O_RDONLY|unix.O_CLOEXEC|unix.O_NONBLOCK, 0)
		if err != nil {
			return fmt.Errorf("volkeys: open %s: %w", g.Path, err)
		}
		if err := unix.IoctlSetInt(fd, evIOCGRAB, 1); err != nil {
			unix.Close(fd)
			return fmt.Errorf("volkeys: grab %s: %w", g.Path, err)
		}
		g.fd, g.on = fd, true
		g.Log.Info("volume keys grabbed", "device", g.Path)
		return nil
	}

	err := unix.IoctlSetInt(g.fd, evIOCGRAB, 0)
	unix.Close(g.fd)
	g.fd, g.on = -1, false
	if err != nil {
		return fmt.Errorf("volkeys: release %s: %w", g.Path, err)
	}
	g.Log.Info("volume keys released", "device", g.Path)
	return nil
}

// Locked reports whether the device is currently grabbed.
func (g *Guard) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.on
}
