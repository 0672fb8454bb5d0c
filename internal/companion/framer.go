package companion

import (
	"encoding/binary"
	"fmt"
)

const (
	// markerInbound prefixes every host-to-device frame.
	markerInbound byte = '<'

	// markerOutbound prefixes every device-to-host frame.
	markerOutbound byte = '>'

	// headerLen is the marker byte plus the uint16 payload length.
	headerLen = 3

	// maxPayloadLen bounds a declared payload length. Companion
	// responses are small; anything past this is stream corruption,
	// not a frame.
	maxPayloadLen = 1024
)

// Frame is one complete decoded device-to-host unit: the response code
// and the body bytes that follow it.
type Frame struct {
	Code byte
	Body []byte
}

// Framer converts between payloads and the companion wire format:
// a direction marker, a little-endian uint16 payload length, and the
// payload itself. The decoder owns a growable buffer so a frame split
// across reads is reassembled transparently.
//
// A Framer is not safe for concurrent use; the client owns exactly one.
type Framer struct {
	buf []byte
}

// Encode wraps an outgoing request payload (command byte plus body) in
// the host-to-device frame envelope. Encoding is deterministic: one
// payload, one byte sequence.
func (f *Framer) Encode(payload []byte) []byte {
	frame := make([]byte, headerLen+len(payload))
	frame[0] = markerInbound
	binary.LittleEndian.PutUint16(frame[1:3], uint16(len(payload)))
	copy(frame[headerLen:], payload)
	return frame
}

// Decode appends newly arrived bytes to the internal buffer and
// extracts every frame whose declared length is fully present, in
// arrival order. A trailing partial frame stays buffered for the next
// call. Decode never blocks.
//
// Noise bytes before a start marker are discarded silently: the device
// may emit boot text on the shared serial line. A start marker that
// declares an unsatisfiable length produces a *FrameError together
// with any frames decoded before it; the bad marker is dropped so a
// later call resynchronizes on the next one.
func (f *Framer) Decode(p []byte) ([]Frame, error) {
	f.buf = append(f.buf, p...)

	var frames []Frame
	for {
		// Drop everything up to the next start marker.
		start := 0
		for start < len(f.buf) && f.buf[start] != markerOutbound {
			start++
		}
		f.buf = f.buf[start:]

		if len(f.buf) < headerLen {
			return frames, nil
		}

		length := int(binary.LittleEndian.Uint16(f.buf[1:3]))
		if length == 0 || length > maxPayloadLen {
			f.buf = f.buf[1:] // skip the marker, resync on the next one
			return frames, &FrameError{Reason: fmt.Sprintf("declared payload length %d", length)}
		}

		if len(f.buf) < headerLen+length {
			return frames, nil // partial frame, wait for more bytes
		}

		payload := f.buf[headerLen : headerLen+length]
		body := make([]byte, length-1)
		copy(body, payload[1:])
		frames = append(frames, Frame{Code: payload[0], Body: body})

		f.buf = f.buf[headerLen+length:]
	}
}

// Reset discards any buffered partial frame.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// Buffered reports how many undecoded bytes the framer is holding.
func (f *Framer) Buffered() int {
	return len(f.buf)
}
