package scan

import "math"

// Aggregator accumulates running statistics over the noise-floor
// samples of a single dwell window. It uses Welford's algorithm so the
// mean and variance stay numerically stable regardless of sample count.
//
// The zero value is ready to use. It must be Reset between frequencies;
// stale state from a previous dwell must never leak into the next.
type Aggregator struct {
	count int
	mean  float64
	m2    float64
	min   int
	max   int
}

// Reset discards all observed samples.
func (a *Aggregator) Reset() {
	*a = Aggregator{}
}

// Observe feeds one noise-floor sample (dBm) into the running
// statistics.
func (a *Aggregator) Observe(sample int) {
	if a.count == 0 || sample < a.min {
		a.min = sample
	}
	if a.count == 0 || sample > a.max {
		a.max = sample
	}

	a.count++
	delta := float64(sample) - a.mean
	a.mean += delta / float64(a.count)
	a.m2 += delta * (float64(sample) - a.mean)
}

// Count returns the number of samples observed since the last Reset.
func (a *Aggregator) Count() int {
	return a.count
}

// Summary is the finalized statistics of one dwell window.
type Summary struct {
	Count  int
	Avg    float64
	Min    int
	Max    int
	StdDev float64
}

// Finalize computes the dwell statistics. The standard deviation uses
// the population formula. With zero samples every derived field is
// zero; an empty dwell is reported, never a division by zero.
func (a *Aggregator) Finalize() Summary {
	if a.count == 0 {
		return Summary{}
	}
	return Summary{
		Count:  a.count,
		Avg:    a.mean,
		Min:    a.min,
		Max:    a.max,
		StdDev: math.Sqrt(a.m2 / float64(a.count)),
	}
}
