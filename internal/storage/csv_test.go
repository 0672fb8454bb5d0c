package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/meshcore-tools/noisefloor/internal/scan"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening CSV: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading CSV: %v", err)
	}
	return rows
}

func TestCSVSink_WritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noisefloor.csv")

	sink, err := NewCSVSink(path)
	if err != nil {
		t.Fatalf("NewCSVSink failed: %v", err)
	}

	records := []scan.Record{
		{FrequencyMHz: 915.0, Samples: 3, Avg: -110, Min: -112, Max: -108, StdDev: 1.63},
		{FrequencyMHz: 915.125, Samples: 0},
	}
	for _, rec := range records {
		if err := sink.Append(rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d rows", len(rows))
	}
	if !slices.Equal(rows[0], csvHeader) {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if !slices.Equal(rows[1], []string{"915.000", "3", "-110.00", "-112", "-108", "1.63"}) {
		t.Errorf("unexpected first row: %v", rows[1])
	}
	if !slices.Equal(rows[2], []string{"915.125", "0", "0.00", "0", "0", "0.00"}) {
		t.Errorf("unexpected zero-sample row: %v", rows[2])
	}
}

// Rows must be readable before Close: the sink flushes per record so a
// crash loses nothing already measured.
func TestCSVSink_FlushesPerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noisefloor.csv")

	sink, err := NewCSVSink(path)
	if err != nil {
		t.Fatalf("NewCSVSink failed: %v", err)
	}
	defer sink.Close()

	if err := sink.Append(scan.Record{FrequencyMHz: 868.5, Samples: 1, Avg: -100, Min: -100, Max: -100}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 2 {
		t.Fatalf("expected header plus 1 row before Close, got %d rows", len(rows))
	}
}

func TestCSVSink_CloseIdempotent(t *testing.T) {
	sink, err := NewCSVSink(filepath.Join(t.TempDir(), "noisefloor.csv"))
	if err != nil {
		t.Fatalf("NewCSVSink failed: %v", err)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
