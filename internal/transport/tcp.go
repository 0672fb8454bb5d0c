package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

const tcpDialTimeout = 5 * time.Second

// TCP connects to a device exposing its companion protocol on a TCP
// port, such as a node reachable over WiFi.
type TCP struct {
	addr string

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// NewTCP creates a transport for the given "host:port" address.
// The connection is not established until Open is called.
func NewTCP(addr string) *TCP {
	return &TCP{addr: addr}
}

func (t *TCP) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.conn != nil {
		return nil
	}

	conn, err := net.DialTimeout("tcp", t.addr, tcpDialTimeout)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", t.addr, err)
	}
	t.conn = conn
	return nil
}

func (t *TCP) ReadDeadline(p []byte, deadline time.Time) (int, error) {
	conn, err := t.get()
	if err != nil {
		return 0, err
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, fmt.Errorf("setting read deadline: %w", err)
	}

	n, err := conn.Read(p)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return n, nil // deadline elapsed, not a stream failure
		}
		return n, fmt.Errorf("reading from %s: %w", t.addr, err)
	}
	return n, nil
}

func (t *TCP) Write(p []byte) error {
	conn, err := t.get()
	if err != nil {
		return err
	}
	if _, err := conn.Write(p); err != nil {
		return fmt.Errorf("writing to %s: %w", t.addr, err)
	}
	return nil
}

func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	if t.conn == nil {
		return nil
	}

	conn := t.conn
	t.conn = nil
	if err := conn.Close(); err != nil {
		return fmt.Errorf("closing connection to %s: %w", t.addr, err)
	}
	return nil
}

func (t *TCP) get() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrClosed
	}
	return t.conn, nil
}
