package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/meshcore-tools/noisefloor/internal/companion"
)

// Default dwell timings, matching what the companion firmware needs in
// practice: a couple of seconds for the PLL to settle after a retune,
// and a sample cadence slow enough not to flood the link.
const (
	DefaultDwell          = 15 * time.Minute
	DefaultSampleInterval = 5 * time.Second
	DefaultSettleDelay    = 2 * time.Second

	// DefaultFailureThreshold is the number of consecutive failed
	// frequencies tolerated before the scan aborts. It protects
	// against producing an all-empty sweep from a device that has
	// gone offline.
	DefaultFailureThreshold = 3
)

// ErrTooManyFailures is returned when the consecutive per-frequency
// failure threshold is crossed.
var ErrTooManyFailures = errors.New("scan: too many consecutive frequency failures")

// State identifies where in the scan lifecycle the controller is.
type State int

const (
	StateIdle State = iota
	StateHandshaking
	StateSettingParams
	StateDwelling
	StateEmitting
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHandshaking:
		return "handshaking"
	case StateSettingParams:
		return "setting-params"
	case StateDwelling:
		return "dwelling"
	case StateEmitting:
		return "emitting"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Radio is the device surface the controller drives. The companion
// client satisfies it; tests substitute a mock.
type Radio interface {
	Handshake(ctx context.Context) error
	SetRadioParams(ctx context.Context, p companion.RadioParams) error
	NoiseFloor(ctx context.Context) (int, error)
}

// Progress is notified once per frequency before measuring begins. It
// is a passive observer: the scan does not depend on it.
type Progress func(index, total int, freqMHz float64)

// WithDwell sets how long each frequency is sampled.
func WithDwell(d time.Duration) func(*Controller) {
	return func(c *Controller) {
		c.dwell = d
	}
}

// WithSampleInterval sets the pause between consecutive GET_STATS
// samples within one dwell.
func WithSampleInterval(d time.Duration) func(*Controller) {
	return func(c *Controller) {
		c.interval = d
	}
}

// WithSettleDelay sets the pause between a successful retune and the
// first sample.
func WithSettleDelay(d time.Duration) func(*Controller) {
	return func(c *Controller) {
		c.settle = d
	}
}

// WithFailureThreshold sets how many consecutive frequencies may fail
// before the scan aborts.
func WithFailureThreshold(n int) func(*Controller) {
	return func(c *Controller) {
		if n > 0 {
			c.failureThreshold = n
		}
	}
}

// WithSink adds a record sink. Sinks are invoked in registration order,
// synchronously, before the scan advances to the next frequency.
func WithSink(sink RecordSink) func(*Controller) {
	return func(c *Controller) {
		c.sinks = append(c.sinks, sink)
	}
}

// WithProgress sets the per-frequency progress observer.
func WithProgress(p Progress) func(*Controller) {
	return func(c *Controller) {
		c.progress = p
	}
}

// WithLogger sets the logger for the controller.
func WithLogger(logger *slog.Logger) func(*Controller) {
	return func(c *Controller) {
		c.logger = logger
	}
}

// Controller runs one scan: for every frequency in the plan it retunes
// the radio, dwell-samples the noise floor, and emits one finalized
// Record to the sinks before moving on. Scan state lives on the
// instance, never in globals, so scans run in isolation.
//
// The scan is strictly sequential: one frequency at a time, one request
// in flight at a time. A Controller instance is single-use.
type Controller struct {
	radio  Radio
	plan   Plan
	params companion.RadioParams // FrequencyMHz is set per frequency

	dwell            time.Duration
	interval         time.Duration
	settle           time.Duration
	failureThreshold int

	sinks    []RecordSink
	progress Progress
	logger   *slog.Logger

	state   State
	agg     Aggregator
	records []Record
}

// NewController creates a controller for one scan over the given plan.
// params carries the bandwidth, spreading factor and coding rate to
// apply at every frequency; its FrequencyMHz field is ignored.
func NewController(radio Radio, plan Plan, params companion.RadioParams, options ...func(*Controller)) *Controller {
	c := Controller{
		radio:            radio,
		plan:             plan,
		params:           params,
		dwell:            DefaultDwell,
		interval:         DefaultSampleInterval,
		settle:           DefaultSettleDelay,
		failureThreshold: DefaultFailureThreshold,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		state:            StateIdle,
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// Run executes the scan and returns the ordered records, one per
// measured frequency. Records already emitted are returned even when
// Run fails partway, so partial results survive. Cancellation is
// honored between frequencies and between samples; the in-flight
// request is allowed to finish or time out first.
func (c *Controller) Run(ctx context.Context) ([]Record, error) {
	if c.state != StateIdle {
		return nil, fmt.Errorf("scan: controller already used (state %s)", c.state)
	}

	c.state = StateHandshaking
	if err := c.radio.Handshake(ctx); err != nil {
		c.state = StateFailed
		return nil, fmt.Errorf("handshaking: %w", err)
	}

	total := c.plan.Count()
	if total == 0 {
		c.logger.Warn("scan plan is empty, nothing to measure", slog.String("plan", c.plan.String()))
		c.state = StateFinished
		return nil, nil
	}

	consecutiveFailures := 0
	index := 0
	for freq := range c.plan.Frequencies() {
		index++

		if err := ctx.Err(); err != nil {
			// Graceful stop between frequencies: keep what we have.
			c.logger.Info("scan stopped", slog.Int("measured", len(c.records)), slog.Int("total", total))
			c.state = StateFinished
			return c.records, err
		}

		if c.progress != nil {
			c.progress(index, total, freq)
		}

		failed, err := c.measure(ctx, freq)
		if err != nil {
			c.state = StateFailed
			return c.records, fmt.Errorf("measuring %.3f MHz: %w", freq, err)
		}

		if failed {
			consecutiveFailures++
			if consecutiveFailures >= c.failureThreshold {
				c.state = StateFailed
				return c.records, fmt.Errorf("%w: %d in a row, device presumed offline", ErrTooManyFailures, consecutiveFailures)
			}
		} else {
			consecutiveFailures = 0
		}
	}

	c.state = StateFinished
	return c.records, nil
}

// measure runs the SettingParams -> Dwelling -> Emitting sequence for
// one frequency. The failed result reports a recoverable per-frequency
// failure (counted toward the consecutive-failure threshold); err is
// reserved for fatal conditions that must abort the whole scan.
func (c *Controller) measure(ctx context.Context, freq float64) (failed bool, err error) {
	c.state = StateSettingParams

	params := c.params
	params.FrequencyMHz = freq

	if err := c.radio.SetRadioParams(ctx, params); err != nil {
		if isFatal(ctx, err) {
			return false, fmt.Errorf("setting radio params: %w", err)
		}
		// Skip this frequency, preserve the rest of the sweep.
		c.logger.Warn("failed to set radio params, skipping frequency",
			slog.Float64("freqMHz", freq),
			slog.String("error", err.Error()))
		return true, nil
	}

	// The radio needs time to retune before readings mean anything.
	if err := sleepContext(ctx, c.settle); err != nil {
		return false, nil // stop is handled at the frequency boundary
	}

	c.state = StateDwelling
	c.agg.Reset()

	dwellFailed, err := c.dwellSample(ctx, freq)
	if err != nil {
		return false, err
	}

	c.state = StateEmitting
	c.emit(freq)

	return dwellFailed && c.agg.Count() == 0, nil
}

// dwellSample collects GET_STATS readings for one dwell window. The
// sample count is fixed up front (dwell / interval, at least one) so a
// dwell always attempts the same number of readings. An error response
// or timeout aborts the dwell for this frequency only; whatever samples
// were collected still count.
func (c *Controller) dwellSample(ctx context.Context, freq float64) (aborted bool, err error) {
	samples := 1
	if c.interval > 0 && c.dwell > c.interval {
		samples = int(c.dwell / c.interval)
	}

	for i := 0; i < samples; i++ {
		if ctx.Err() != nil {
			return false, nil
		}

		nf, err := c.radio.NoiseFloor(ctx)
		if err != nil {
			if isFatal(ctx, err) {
				return false, fmt.Errorf("reading noise floor: %w", err)
			}
			c.logger.Warn("noise floor read failed, aborting dwell for this frequency",
				slog.Float64("freqMHz", freq),
				slog.Int("collected", c.agg.Count()),
				slog.String("error", err.Error()))
			return true, nil
		}
		c.agg.Observe(nf)

		if i < samples-1 {
			if err := sleepContext(ctx, c.interval); err != nil {
				return false, nil
			}
		}
	}
	return false, nil
}

// emit finalizes the record for freq and hands it to every sink
// synchronously, so a crash after frequency k leaves records 1..k
// persisted. An empty record is emitted, not suppressed: the output
// must reflect what was attempted.
func (c *Controller) emit(freq float64) {
	s := c.agg.Finalize()
	rec := Record{
		FrequencyMHz: freq,
		Samples:      s.Count,
		Avg:          s.Avg,
		Min:          s.Min,
		Max:          s.Max,
		StdDev:       s.StdDev,
	}

	for _, sink := range c.sinks {
		if err := sink.Append(rec); err != nil {
			c.logger.Warn("record sink failed",
				slog.Float64("freqMHz", freq),
				slog.String("error", err.Error()))
		}
	}

	c.records = append(c.records, rec)
}

// isFatal separates errors the scan can survive at per-frequency
// granularity (device error responses, response timeouts) from ones
// that invalidate the whole session (closed client, broken transport,
// cancellation).
func isFatal(ctx context.Context, err error) bool {
	var pErr *companion.ProtocolError
	if errors.As(err, &pErr) {
		return false
	}
	if errors.Is(err, companion.ErrTimeout) {
		return false
	}
	if ctx.Err() != nil {
		return false // surfaced as a graceful stop at the frequency boundary
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
