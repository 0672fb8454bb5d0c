package companion

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when no matching response arrived within
	// the request deadline, after all retries were spent.
	ErrTimeout = errors.New("companion: response timeout")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("companion: client closed")

	// ErrHandshake is returned when the startup sequence fails. It is
	// fatal: no commands may be issued without a completed handshake.
	ErrHandshake = errors.New("companion: handshake failed")
)

// FrameError reports malformed bytes on the wire: a start marker
// followed by a length the frame format cannot satisfy. The transport
// connection survives a FrameError; the decoder resynchronizes on the
// next start marker.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("companion: malformed frame: %s", e.Reason)
}

// ProtocolError is an explicit error response from the device, carrying
// the firmware's numeric error code.
type ProtocolError struct {
	Code byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("companion: device returned error code %d", e.Code)
}
