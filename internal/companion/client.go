package companion

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/meshcore-tools/noisefloor/internal/transport"
)

const (
	// DefaultTimeout bounds a single request/response exchange.
	DefaultTimeout = 5 * time.Second

	// DefaultAttempts is how many times a request is sent before a
	// timeout is surfaced to the caller.
	DefaultAttempts = 3

	// DefaultAppName identifies this client to the firmware in the
	// APP_START command.
	DefaultAppName = "NoiseFloorScanner"

	readChunkSize = 256
)

// WithTimeout sets the per-attempt response timeout.
func WithTimeout(d time.Duration) func(*Client) {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithAttempts sets the total number of times a request is sent before
// ErrTimeout is returned. Retries re-send the identical frame; they do
// not re-run the handshake.
func WithAttempts(n int) func(*Client) {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithAppName sets the application name sent in APP_START.
func WithAppName(name string) func(*Client) {
	return func(c *Client) {
		c.appName = name
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) func(*Client) {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithFrameEcho enables hex dumps of every transmitted and received
// frame at debug level.
func WithFrameEcho(enabled bool) func(*Client) {
	return func(c *Client) {
		c.echoFrames = enabled
	}
}

// Client drives the companion protocol over a Transport it exclusively
// owns. Requests are strictly sequential: the device processes commands
// serially and does not support pipelining, so the client never has
// more than one request outstanding.
//
// A Client is a single-consumer resource. Close may be called from a
// shutdown path while a request is in flight; the request fails with
// ErrClosed instead of hanging.
type Client struct {
	tr     transport.Transport
	framer Framer

	timeout    time.Duration
	attempts   int
	appName    string
	echoFrames bool
	logger     *slog.Logger

	// Frames decoded but not yet consumed by a request, e.g. a late
	// response to an attempt that already timed out.
	pending []Frame

	// Firmware variants accept different GET_STATS request shapes.
	// Once a shape works it is cached and reused.
	statsShape []byte

	closed atomic.Bool
}

// NewClient creates a client around the given transport. The transport
// must not be shared; the client owns it until Close.
func NewClient(tr transport.Transport, options ...func(*Client)) *Client {
	c := Client{
		tr:       tr,
		timeout:  DefaultTimeout,
		attempts: DefaultAttempts,
		appName:  DefaultAppName,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Connect opens the underlying transport.
func (c *Client) Connect() error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.tr.Open(); err != nil {
		return fmt.Errorf("opening transport: %w", err)
	}
	return nil
}

// Handshake performs the startup sequence: DEVICE_QUERY to confirm a
// device speaking protocol version 7 is present, then APP_START to open
// an application session. It must complete before any other command.
func (c *Client) Handshake(ctx context.Context) error {
	if _, err := c.Request(ctx, []byte{CmdDeviceQuery, protocolVersion}, RespDeviceInfo); err != nil {
		return fmt.Errorf("%w: device query: %w", ErrHandshake, err)
	}

	appStart := make([]byte, 0, 8+len(c.appName))
	appStart = append(appStart, CmdAppStart, protocolVersion)
	appStart = append(appStart, 0, 0, 0, 0, 0, 0) // reserved
	appStart = append(appStart, c.appName...)

	if _, err := c.Request(ctx, appStart, RespSelfInfo); err != nil {
		return fmt.Errorf("%w: app start: %w", ErrHandshake, err)
	}

	c.logger.Info("handshake complete", slog.String("app", c.appName))
	return nil
}

// Request sends a command payload and waits for a response whose code
// is in expect. An explicit device error response is returned as a
// *ProtocolError. If no matching response arrives within the timeout,
// the identical frame is re-sent, up to the configured attempt budget,
// before ErrTimeout is surfaced. Frames with unexpected codes are
// logged and skipped.
func (c *Client) Request(ctx context.Context, payload []byte, expect ...byte) (Frame, error) {
	if c.closed.Load() {
		return Frame{}, ErrClosed
	}

	encoded := c.framer.Encode(payload)

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		frame, err := c.exchange(encoded, expect)
		if err == nil {
			return frame, nil
		}
		if !errors.Is(err, ErrTimeout) {
			return Frame{}, err
		}

		lastErr = err
		if attempt < c.attempts {
			c.logger.Debug("request timed out, retrying",
				slog.Int("attempt", attempt),
				slog.Int("maxAttempts", c.attempts))
		}
	}

	return Frame{}, fmt.Errorf("no response after %d attempts: %w", c.attempts, lastErr)
}

// exchange performs a single write-then-wait attempt.
func (c *Client) exchange(encoded []byte, expect []byte) (Frame, error) {
	if c.echoFrames {
		c.logger.Debug("TX", slog.String("frame", hex.EncodeToString(encoded)))
	}
	if err := c.tr.Write(encoded); err != nil {
		return Frame{}, c.mapTransportErr(err)
	}

	deadline := time.Now().Add(c.timeout)
	buf := make([]byte, readChunkSize)

	for {
		if frame, ok := c.takePending(expect); ok {
			return frame, nil
		}
		if frame, ok := c.takeErrResponse(); ok {
			var code byte
			if len(frame.Body) > 0 {
				code = frame.Body[0]
			}
			return Frame{}, &ProtocolError{Code: code}
		}

		if !time.Now().Before(deadline) {
			return Frame{}, ErrTimeout
		}

		n, err := c.tr.ReadDeadline(buf, deadline)
		if err != nil {
			return Frame{}, c.mapTransportErr(err)
		}
		if n == 0 {
			return Frame{}, ErrTimeout
		}

		frames, err := c.framer.Decode(buf[:n])
		if err != nil {
			// Malformed bytes do not kill the connection; the framer
			// has already resynchronized on the next marker.
			c.logger.Warn("dropping malformed frame", slog.String("error", err.Error()))
		}
		for _, frame := range frames {
			if c.echoFrames {
				c.logger.Debug("RX",
					slog.Int("code", int(frame.Code)),
					slog.String("body", hex.EncodeToString(frame.Body)))
			}
			c.pending = append(c.pending, frame)
		}
	}
}

// takePending removes and returns the first pending frame whose code is
// in expect, discarding unsolicited frames before it.
func (c *Client) takePending(expect []byte) (Frame, bool) {
	for i := 0; i < len(c.pending); i++ {
		frame := c.pending[i]
		for _, code := range expect {
			if frame.Code == code {
				c.pending = append(c.pending[:i], c.pending[i+1:]...)
				return frame, true
			}
		}
		if frame.Code != RespErr {
			c.logger.Debug("skipping unsolicited frame", slog.Int("code", int(frame.Code)))
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			i--
		}
	}
	return Frame{}, false
}

// takeErrResponse removes and returns the first pending error response.
func (c *Client) takeErrResponse() (Frame, bool) {
	for i, frame := range c.pending {
		if frame.Code == RespErr {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return frame, true
		}
	}
	return Frame{}, false
}

func (c *Client) mapTransportErr(err error) error {
	if c.closed.Load() || errors.Is(err, transport.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("transport failure: %w", err)
}

// SetRadioParams retunes the radio. The settle delay the hardware needs
// after retuning is the caller's concern.
func (c *Client) SetRadioParams(ctx context.Context, p RadioParams) error {
	if _, err := c.Request(ctx, EncodeRadioParams(p), RespOK); err != nil {
		return fmt.Errorf("set radio params (%s): %w", p, err)
	}
	return nil
}

// statsRequestShapes lists the GET_STATS request variants observed
// across firmware builds, most common first: some expect the protocol
// version byte before the stats group, some expect trailing zero
// padding. The stats group is the first candidate dimension.
func statsRequestShapes() [][]byte {
	groups := []byte{1, 0, 2, 3, 4, 5}

	var shapes [][]byte
	for _, g := range groups {
		shapes = append(shapes,
			[]byte{CmdGetStats, g},
			[]byte{CmdGetStats, protocolVersion, g},
			[]byte{CmdGetStats, protocolVersion, g, 0},
			[]byte{CmdGetStats, protocolVersion, g, 0, 0},
			[]byte{CmdGetStats, g, 0},
			[]byte{CmdGetStats, g, 0, 0},
		)
	}
	return shapes
}

// NoiseFloor issues GET_STATS and returns the radio's current noise
// floor reading in dBm. On first use it probes the known request shape
// variants until one succeeds and caches it; if the cached shape stops
// working it re-probes. A device that rejects every shape yields the
// last *ProtocolError, so the caller can inspect the firmware code.
func (c *Client) NoiseFloor(ctx context.Context) (int, error) {
	if c.statsShape != nil {
		nf, err := c.tryStatsShape(ctx, c.statsShape)
		if err == nil {
			return nf, nil
		}
		var pErr *ProtocolError
		if !errors.As(err, &pErr) {
			return 0, err
		}
		c.statsShape = nil // stopped working, re-detect below
	}

	var lastErr error
	for _, shape := range statsRequestShapes() {
		nf, err := c.tryStatsShape(ctx, shape)
		if err == nil {
			c.statsShape = shape
			c.logger.Debug("GET_STATS request shape detected",
				slog.String("shape", hex.EncodeToString(shape)))
			return nf, nil
		}

		var pErr *ProtocolError
		if !errors.As(err, &pErr) {
			return 0, err
		}
		lastErr = err
	}

	return 0, fmt.Errorf("all GET_STATS request shapes rejected: %w", lastErr)
}

func (c *Client) tryStatsShape(ctx context.Context, shape []byte) (int, error) {
	frame, err := c.Request(ctx, shape, RespStats)
	if err != nil {
		return 0, err
	}
	// Body layout: stats group echo, then int16 LE noise floor.
	if len(frame.Body) < 3 {
		return 0, &FrameError{Reason: fmt.Sprintf("stats response body too short: %d bytes", len(frame.Body))}
	}
	return int(int16(binary.LittleEndian.Uint16(frame.Body[1:3]))), nil
}

// Close releases the transport. It is safe to call multiple times; any
// request in flight fails with ErrClosed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}
	if err := c.tr.Close(); err != nil {
		return fmt.Errorf("closing transport: %w", err)
	}
	return nil
}
