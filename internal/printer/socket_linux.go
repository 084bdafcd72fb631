//go:build linux

package printer

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// DefaultRFCOMMChannel is the channel most receipt printers publish SPP on.
const DefaultRFCOMMChannel uint8 = 1

// SocketDialer opens a raw RFCOMM socket on a fixed channel. The kernel's
// default security level is used, so no authentication is requested.
type SocketDialer struct {
	Channel uint8
}

func (d SocketDialer) Dial(ctx context.Context, dev Device) (Conn, error) {
	_ = ctx // connect(2) on RFCOMM is not interruptible.
	sa, err := rfcommAddr(dev.Address, d.channel())
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("printer: rfcomm socket: %w", err)
	}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("printer: rfcomm connect %s channel %d: %w", dev.Address, sa.Channel, err)
	}
	return newFDConn(fd, "rfcomm:"+dev.Address), nil
}

func (d SocketDialer) channel() uint8 {
	if d.Channel == 0 {
		return DefaultRFCOMMChannel
	}
	return d.Channel
}

// rfcommAddr converts "AA:BB:CC:DD:EE:FF" into a sockaddr. bdaddr_t is
// little-endian, so the bytes are reversed.
func rfcommAddr(address string, channel uint8) (*unix.SockaddrRFCOMM, error) {
	hw, err := net.ParseMAC(address)
	if err != nil || len(hw) != 6 {
		return nil, fmt.Errorf("printer: invalid device address %q", address)
	}
	sa := &unix.SockaddrRFCOMM{Channel: channel}
	for i := 0; i < 6; i++ {
		sa.Addr[i] = hw[5-i]
	}
	return sa, nil
}

// fdConn is a connected stream socket owned by this process.
type fdConn struct {
	fd   int
	file *os.File

	mu     sync.Mutex
	closed bool
}

func newFDConn(fd int, name string) *fdConn {
	return &fdConn{fd: fd, file: os.NewFile(uintptr(fd), name)}
}

func (c *fdConn) Stream() (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, os.ErrClosed
	}
	return &fdStream{conn: c, w: bufio.NewWriter(c.file)}, nil
}

// Connected polls the socket without blocking: a hang-up, an error event or
// a pending SO_ERROR all count as disconnected.
func (c *fdConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	pfd := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLOUT}}
	if _, err := unix.Poll(pfd, 0); err != nil {
		return false
	}
	if pfd[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
		return false
	}
	soerr, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	return err == nil && soerr == 0
}

func (c *fdConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.file.Close()
}

func (c *fdConn) shutdownWrite() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return unix.Shutdown(c.fd, unix.SHUT_WR)
}

type fdStream struct {
	conn *fdConn
	w    *bufio.Writer
}

func (s *fdStream) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *fdStream) Flush() error { return s.w.Flush() }

// Close half-closes the socket; the socket itself is closed by fdConn.Close.
func (s *fdStream) Close() error {
	return s.conn.shutdownWrite()
}
