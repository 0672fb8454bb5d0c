// Package scan contains the sweep control loop: the frequency plan,
// per-frequency statistics aggregation and the controller state machine
// that drives a radio through a scan.
package scan

import (
	"fmt"
	"iter"
	"math"
)

// Plan is an ordered sweep of frequencies derived from an inclusive
// start/end range and a step, all in MHz. A plan with step <= 0 or
// start > end is empty and scanning it is a no-op.
type Plan struct {
	StartMHz float64
	EndMHz   float64
	StepMHz  float64
}

func (p Plan) String() string {
	return fmt.Sprintf("%g-%g MHz step %g MHz", p.StartMHz, p.EndMHz, p.StepMHz)
}

// Count returns the number of frequencies the plan visits.
func (p Plan) Count() int {
	if p.StepMHz <= 0 || p.StartMHz > p.EndMHz {
		return 0
	}
	// The epsilon keeps the end frequency in the plan when the span is
	// an exact multiple of the step, despite float rounding.
	return int((p.EndMHz-p.StartMHz)/p.StepMHz+1e-9) + 1
}

// Frequencies yields the plan's frequencies in ascending order. Each
// value is computed from the index rather than accumulated, so float
// drift does not compound across a long sweep.
func (p Plan) Frequencies() iter.Seq[float64] {
	return func(yield func(float64) bool) {
		count := p.Count()
		for i := 0; i < count; i++ {
			if !yield(roundMHz(p.StartMHz + float64(i)*p.StepMHz)) {
				return
			}
		}
	}
}

// roundMHz rounds to 1 Hz resolution, enough to cancel float noise in
// start + i*step while preserving any real fractional step.
func roundMHz(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
