package scan

import (
	"math"
	"testing"
)

func TestAggregator_ZeroSamples(t *testing.T) {
	var agg Aggregator

	s := agg.Finalize()
	if s.Count != 0 || s.Avg != 0 || s.Min != 0 || s.Max != 0 || s.StdDev != 0 {
		t.Errorf("zero samples must finalize to zeroes, got %+v", s)
	}
}

func TestAggregator_ConstantSamples(t *testing.T) {
	var agg Aggregator
	for i := 0; i < 3; i++ {
		agg.Observe(10)
	}

	s := agg.Finalize()
	if s.Count != 3 {
		t.Errorf("expected count 3, got %d", s.Count)
	}
	if s.Avg != 10 || s.Min != 10 || s.Max != 10 {
		t.Errorf("expected avg/min/max of 10, got %+v", s)
	}
	if s.StdDev != 0 {
		t.Errorf("constant samples must have stdev 0, got %v", s.StdDev)
	}
}

func TestAggregator_NoiseFloorSamples(t *testing.T) {
	var agg Aggregator
	for _, nf := range []int{-110, -108, -112} {
		agg.Observe(nf)
	}

	s := agg.Finalize()
	if s.Count != 3 {
		t.Errorf("expected count 3, got %d", s.Count)
	}
	if s.Avg != -110 {
		t.Errorf("expected avg -110, got %v", s.Avg)
	}
	if s.Min != -112 {
		t.Errorf("expected min -112, got %d", s.Min)
	}
	if s.Max != -108 {
		t.Errorf("expected max -108, got %d", s.Max)
	}

	// Population stdev of {-110, -108, -112} = sqrt(8/3).
	want := math.Sqrt(8.0 / 3.0)
	if math.Abs(s.StdDev-want) > 1e-9 {
		t.Errorf("expected stdev %v, got %v", want, s.StdDev)
	}
}

func TestAggregator_SingleSample(t *testing.T) {
	var agg Aggregator
	agg.Observe(-97)

	s := agg.Finalize()
	if s.Count != 1 || s.Avg != -97 || s.Min != -97 || s.Max != -97 || s.StdDev != 0 {
		t.Errorf("unexpected single-sample summary: %+v", s)
	}
}

func TestAggregator_Reset(t *testing.T) {
	var agg Aggregator
	agg.Observe(-150)
	agg.Observe(-50)

	agg.Reset()
	agg.Observe(-100)

	s := agg.Finalize()
	if s.Count != 1 {
		t.Errorf("expected count 1 after reset, got %d", s.Count)
	}
	if s.Min != -100 || s.Max != -100 {
		t.Errorf("stale min/max leaked through Reset: %+v", s)
	}
}

func TestAggregator_MatchesDirectFormula(t *testing.T) {
	samples := []int{-103, -110, -99, -121, -108, -108, -97, -115}

	var agg Aggregator
	var sum float64
	for _, v := range samples {
		agg.Observe(v)
		sum += float64(v)
	}

	mean := sum / float64(len(samples))
	var sq float64
	for _, v := range samples {
		d := float64(v) - mean
		sq += d * d
	}
	wantStdDev := math.Sqrt(sq / float64(len(samples)))

	s := agg.Finalize()
	if math.Abs(s.Avg-mean) > 1e-9 {
		t.Errorf("expected avg %v, got %v", mean, s.Avg)
	}
	if math.Abs(s.StdDev-wantStdDev) > 1e-9 {
		t.Errorf("expected stdev %v, got %v", wantStdDev, s.StdDev)
	}
}
