// Package transport abstracts the byte stream between the host and a
// MeshCore device. Two implementations exist: a local serial port and a
// TCP socket. Both present identical read/write semantics so that the
// protocol layer never needs to know which one is active.
package transport

import (
	"errors"
	"time"
)

var (
	// ErrClosed is returned by operations on a transport that has been
	// closed, or that was never opened.
	ErrClosed = errors.New("transport: closed")
)

// Transport is a reliable, ordered byte stream with bounded reads.
//
// ReadDeadline returns up to len(p) bytes. A read that produces no data
// before the deadline returns (0, nil); it never blocks past the
// deadline. Write returns once the bytes are queued or flushed to the
// underlying stream. Close is idempotent and safe to call after a
// failed Open.
type Transport interface {
	Open() error
	ReadDeadline(p []byte, deadline time.Time) (int, error)
	Write(p []byte) error
	Close() error
}
