package scan

// Record is the finalized noise-floor statistics for one frequency.
// It is created when the frequency's dwell window ends and is immutable
// once emitted. A record with zero samples is still a record: it means
// the frequency was attempted and produced no readings.
type Record struct {
	FrequencyMHz float64
	Samples      int
	Avg          float64
	Min          int
	Max          int
	StdDev       float64
}

// RecordSink receives records one at a time, in frequency order. A sink
// is expected to persist each record durably before the controller
// produces the next one; a sink failure is reported as a warning and
// never aborts the scan.
type RecordSink interface {
	Append(rec Record) error
}
