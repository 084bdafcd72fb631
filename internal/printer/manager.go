package printer

import (
	"context"
	"log/slog"
	"sync"

	"posbridge/internal/cleanup"
)

// Manager serializes every operation on the printer link through one lock.
type Manager struct {
	dir    Directory
	dialer Dialer
	log    *slog.Logger

	mu      sync.Mutex
	conn    Conn
	out     Stream
	address string
}

// NewManager creates a disconnected manager.
func NewManager(dir Directory, dialer Dialer, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{dir: dir, dialer: dialer, log: log.With("component", "printer")}
}

// BondedDevices lists bonded peripherals. A missing adapter yields an empty
// list rather than an error.
func (m *Manager) BondedDevices(ctx context.Context) []Device {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dir == nil {
		return []Device{}
	}
	devs, err := m.dir.BondedDevices(ctx)
	if err != nil {
		m.log.Warn("list bonded devices", "err", err)
		return []Device{}
	}
	if devs == nil {
		devs = []Device{}
	}
	return devs
}

// Connect drops any open connection and connects to address. It reports
// false when the address cannot be resolved or the link cannot be opened;
// in both cases the manager ends up disconnected.
func (m *Manager) Connect(ctx context.Context, address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.disconnectLocked()
	if address == "" || m.dir == nil || m.dialer == nil {
		return false
	}

	dev, err := m.dir.Resolve(ctx, address)
	if err != nil {
		m.log.Info("resolve device", "address", address, "err", err)
		return false
	}

	conn, err := m.dialer.Dial(ctx, dev)
	if err != nil {
		m.log.Error("connect error", "address", address, "err", err)
		return false
	}
	out, err := conn.Stream()
	if err != nil {
		m.log.Error("open output stream", "address", address, "err", err)
		m.conn = conn
		m.disconnectLocked()
		return false
	}

	m.conn = conn
	m.out = out
	m.address = dev.Address
	m.log.Info("connected", "address", dev.Address, "name", dev.Name)
	return true
}

// Write sends p and flushes it. On failure the connection is torn down
// before false is returned.
func (m *Manager) Write(p []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.out == nil {
		return false
	}
	if _, err := m.out.Write(p); err != nil {
		m.log.Error("write error", "address", m.address, "err", err)
		m.disconnectLocked()
		return false
	}
	if err := m.out.Flush(); err != nil {
		m.log.Error("write error", "address", m.address, "err", err)
		m.disconnectLocked()
		return false
	}
	return true
}

// Disconnect closes the connection if one is open. It never fails.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
}

// IsConnected reports whether a socket is open and reports itself connected.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil && m.conn.Connected()
}

// Address returns the address of the open connection, or "".
func (m *Manager) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address
}

// disconnectLocked must be called with m.mu held.
func (m *Manager) disconnectLocked() {
	if m.conn == nil && m.out == nil {
		return
	}
	out, conn := m.out, m.conn
	m.out, m.conn = nil, nil
	addr := m.address
	m.address = ""

	var steps []cleanup.Step
	if out != nil {
		steps = append(steps,
			cleanup.Step{Name: "flush stream", Fn: out.Flush},
			cleanup.Step{Name: "close stream", Fn: out.Close},
		)
	}
	if conn != nil {
		steps = append(steps, cleanup.Step{Name: "close socket", Fn: conn.Close})
	}
	if err := cleanup.Run(steps...); err != nil {
		m.log.Debug("disconnect", "address", addr, "err", err)
	}
	m.log.Info("disconnected", "address", addr)
}
