//go:build linux

package printer

import (
	"bufio"
	"context"
	"fmt"
	"sync"

	"go.bug.st/serial"
)

// TTYDialer opens a kernel-bound RFCOMM tty such as /dev/rfcomm0
// (created with `rfcomm bind`). The binding fixes the remote address, so
// the resolved device is only used for logging.
type TTYDialer struct {
	Path     string
	BaudRate int
}

func (d TTYDialer) Dial(ctx context.Context, dev Device) (Conn, error) {
	if d.Path == "" {
		return nil, fmt.Errorf("printer: no rfcomm tty configured for %s", dev.Address)
	}
	baud := d.BaudRate
	if baud == 0 {
		baud = 115200
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("printer: open %s: %w", d.Path, err)
	}
	return &ttyConn{port: port}, nil
}

type ttyConn struct {
	mu     sync.Mutex
	port   serial.Port
	closed bool
}

func (c *ttyConn) Stream() (Stream, error) {
	return &ttyStream{conn: c, w: bufio.NewWriter(c.port)}, nil
}

// Connected reports false once the tty stops answering modem-status queries,
// which happens when the RFCOMM link behind it drops.
func (c *ttyConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	_, err := c.port.GetModemStatusBits()
	return err == nil
}

func (c *ttyConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.port.Close()
}

type ttyStream struct {
	conn *ttyConn
	w    *bufio.Writer
}

func (s *ttyStream) Write(p []byte) (int, error) { return s.w.Write(p) }

// Flush pushes buffered bytes and waits until the tty has sent them.
func (s *ttyStream) Flush() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.conn.port.Drain()
}

func (s *ttyStream) Close() error { return nil }
