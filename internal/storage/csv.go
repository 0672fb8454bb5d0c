package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/meshcore-tools/noisefloor/internal/scan"
)

var csvHeader = []string{
	"freq_mhz",
	"samples",
	"noise_floor_avg",
	"noise_floor_min",
	"noise_floor_max",
	"noise_floor_stdev",
}

// CSVSink appends noise-floor records to a CSV file, flushing after
// every record so each row is on disk before the next frequency is
// measured.
type CSVSink struct {
	f *os.File
	w *csv.Writer

	closeOnce sync.Once
	closeErr  error
}

// NewCSVSink creates (or truncates) the file at path and writes the
// header row.
func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating CSV file: %w", err)
	}

	w := csv.NewWriter(f)
	if err = w.Write(csvHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing CSV header: %w", err)
	}
	w.Flush()
	if err = w.Error(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flushing CSV header: %w", err)
	}

	return &CSVSink{f: f, w: w}, nil
}

// Append writes one record as a CSV row and flushes it to the file.
func (s *CSVSink) Append(rec scan.Record) error {
	row := []string{
		strconv.FormatFloat(rec.FrequencyMHz, 'f', 3, 64),
		strconv.Itoa(rec.Samples),
		strconv.FormatFloat(rec.Avg, 'f', 2, 64),
		strconv.Itoa(rec.Min),
		strconv.Itoa(rec.Max),
		strconv.FormatFloat(rec.StdDev, 'f', 2, 64),
	}

	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("writing CSV row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flushing CSV row: %w", err)
	}
	return nil
}

// Close flushes any buffered data and closes the file. It is safe to
// call multiple times.
func (s *CSVSink) Close() error {
	s.closeOnce.Do(func() {
		s.w.Flush()
		flushErr := s.w.Error()

		closeErr := s.f.Close()

		switch {
		case flushErr != nil:
			s.closeErr = flushErr
		case closeErr != nil:
			s.closeErr = closeErr
		}
	})

	return s.closeErr
}
