// Package printer owns the single serial-profile connection to a receipt
// printer.
//
// At most one connection exists per Manager. Connecting to a device drops
// any previous connection first, and every I/O failure tears the connection
// down before it is reported, so callers only ever see "connected" or
// "disconnected", never a half-open link.
package printer

import (
	"context"
	"io"
)

// Device identifies a bonded peripheral.
type Device struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Directory enumerates and resolves peripherals known to the local adapter.
type Directory interface {
	// BondedDevices lists previously bonded peripherals.
	BondedDevices(ctx context.Context) ([]Device, error)
	// Resolve maps a device address to a dialable device. It fails for
	// malformed or unknown addresses.
	Resolve(ctx context.Context, address string) (Device, error)
}

// Dialer opens an unauthenticated serial-profile link to a resolved device.
type Dialer interface {
	Dial(ctx context.Context, dev Device) (Conn, error)
}

// Conn is an open socket.
type Conn interface {
	// Stream opens the output stream bound to this socket.
	Stream() (Stream, error)
	// Connected reports whether the link is still up.
	Connected() bool
	Close() error
}

// Stream is the buffered output side of a Conn.
type Stream interface {
	io.Writer
	Flush() error
	Close() error
}
