package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewConfigFromArgs_Defaults(t *testing.T) {
	config, err := NewConfigFromArgs([]string{"-usb", "/dev/ttyUSB0"})
	if err != nil {
		t.Fatalf("NewConfigFromArgs failed: %v", err)
	}

	if config.Serial.Device != "/dev/ttyUSB0" {
		t.Errorf("unexpected serial device: %q", config.Serial.Device)
	}
	if config.Serial.Baud != defaultBaudRate {
		t.Errorf("expected default baud rate, got %d", config.Serial.Baud)
	}
	if config.Scan.StartMHz != 915.0 || config.Scan.EndMHz != 928.0 || config.Scan.StepMHz != 0.125 {
		t.Errorf("unexpected default plan: %+v", config.Scan)
	}
	if time.Duration(config.Scan.Dwell) != 15*time.Minute {
		t.Errorf("expected 15m default dwell, got %v", time.Duration(config.Scan.Dwell))
	}
	if config.Radio.BandwidthKHz != 250 || config.Radio.SpreadingFactor != 10 || config.Radio.CodingRate != 5 {
		t.Errorf("unexpected default radio params: %+v", config.Radio)
	}
	if config.Level() != slog.LevelInfo {
		t.Errorf("expected info level, got %v", config.Level())
	}
}

func TestNewConfigFromArgs_Validation(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"no transport", []string{}},
		{"both transports", []string{"-usb", "/dev/ttyUSB0", "-tcp", "host:4242"}},
		{"zero step", []string{"-usb", "/dev/ttyUSB0", "-step-mhz", "0"}},
		{"inverted range", []string{"-usb", "/dev/ttyUSB0", "-start-mhz", "928", "-end-mhz", "915"}},
		{"bad spreading factor", []string{"-usb", "/dev/ttyUSB0", "-sf", "13"}},
		{"bad coding rate", []string{"-usb", "/dev/ttyUSB0", "-cr", "4"}},
		{"bad log level", []string{"-usb", "/dev/ttyUSB0", "-log-level", "loud"}},
		{"negative dwell", []string{"-usb", "/dev/ttyUSB0", "-dwell", "-1m"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewConfigFromArgs(tc.args); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestNewConfigFromArgs_FlagsOverrideFile(t *testing.T) {
	configYAML := `
logLevel: debug
tcp: 192.168.1.50:4242
scan:
  startMHz: 868.0
  endMHz: 868.6
  stepMHz: 0.2
  dwell: 1m
  sampleInterval: 2s
radio:
  bandwidthKHz: 125
  spreadingFactor: 7
`
	path := filepath.Join(t.TempDir(), "scan.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	config, err := NewConfigFromArgs([]string{"-c", path, "-step-mhz", "0.1", "-sf", "8"})
	if err != nil {
		t.Fatalf("NewConfigFromArgs failed: %v", err)
	}

	// File values survive where no flag was given.
	if config.TCP != "192.168.1.50:4242" {
		t.Errorf("unexpected TCP target: %q", config.TCP)
	}
	if config.Scan.StartMHz != 868.0 || config.Scan.EndMHz != 868.6 {
		t.Errorf("unexpected plan range: %+v", config.Scan)
	}
	if time.Duration(config.Scan.Dwell) != time.Minute {
		t.Errorf("expected 1m dwell from file, got %v", time.Duration(config.Scan.Dwell))
	}
	if config.Radio.BandwidthKHz != 125 {
		t.Errorf("expected 125 kHz bandwidth from file, got %v", config.Radio.BandwidthKHz)
	}
	if config.Level() != slog.LevelDebug {
		t.Errorf("expected debug level from file, got %v", config.Level())
	}

	// Explicit flags win over the file.
	if config.Scan.StepMHz != 0.1 {
		t.Errorf("expected flag step 0.1, got %v", config.Scan.StepMHz)
	}
	if config.Radio.SpreadingFactor != 8 {
		t.Errorf("expected flag SF 8, got %d", config.Radio.SpreadingFactor)
	}
}

func TestOutputPaths(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)

	config := NewConfig()
	csvPath, dbPath, chartPath := outputPaths(config, now)
	if csvPath != "noisefloor-250-10-5_20260828-103000.csv" {
		t.Errorf("unexpected auto CSV name: %q", csvPath)
	}
	if dbPath != "noisefloor-250-10-5_20260828-103000.db" {
		t.Errorf("unexpected auto DB name: %q", dbPath)
	}
	if chartPath != "noisefloor-250-10-5_20260828-103000.png" {
		t.Errorf("unexpected auto chart name: %q", chartPath)
	}

	config.Output.CSV = "sweep.csv"
	csvPath, dbPath, chartPath = outputPaths(config, now)
	if csvPath != "sweep.csv" || dbPath != "sweep.db" || chartPath != "sweep.png" {
		t.Errorf("expected names derived from the CSV stem, got %q %q %q", csvPath, dbPath, chartPath)
	}

	config.Output.DB = "custom.sqlite"
	_, dbPath, _ = outputPaths(config, now)
	if dbPath != "custom.sqlite" {
		t.Errorf("explicit DB path must win, got %q", dbPath)
	}
}
