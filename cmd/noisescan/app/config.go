package app

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultStartMHz     = 915.0
	defaultEndMHz       = 928.0
	defaultStepMHz      = 0.125
	defaultBandwidthKHz = 250.0
	defaultSpreading    = 10
	defaultCodingRate   = 5
	defaultBaudRate     = 115200

	defaultDwell          = 15 * time.Minute
	defaultSampleInterval = 5 * time.Second
	defaultSettleDelay    = 2 * time.Second
)

// Duration wraps time.Duration so it can be read from YAML as a string
// like "15m" or "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// SerialConfig selects a local serial device.
type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// ScanConfig describes the frequency plan and dwell timings.
type ScanConfig struct {
	StartMHz       float64  `yaml:"startMHz"`
	EndMHz         float64  `yaml:"endMHz"`
	StepMHz        float64  `yaml:"stepMHz"`
	Dwell          Duration `yaml:"dwell"`
	SampleInterval Duration `yaml:"sampleInterval"`
	SettleDelay    Duration `yaml:"settleDelay"`
}

// RadioConfig carries the LoRa parameters applied at every frequency.
type RadioConfig struct {
	BandwidthKHz    float64 `yaml:"bandwidthKHz"`
	SpreadingFactor int     `yaml:"spreadingFactor"`
	CodingRate      int     `yaml:"codingRate"`
}

// OutputConfig names the artifacts produced by a scan.
type OutputConfig struct {
	CSV   string `yaml:"csv"`
	DB    string `yaml:"db"`
	Chart string `yaml:"chart"`
	Font  string `yaml:"font"`
}

// Config is the scanner configuration, assembled from an optional YAML
// file and CLI flags. Flags that were explicitly set override the file.
type Config struct {
	LogLevel string       `yaml:"logLevel"`
	Debug    bool         `yaml:"debug"`
	Serial   SerialConfig `yaml:"serial"`
	TCP      string       `yaml:"tcp"`
	Scan     ScanConfig   `yaml:"scan"`
	Radio    RadioConfig  `yaml:"radio"`
	Output   OutputConfig `yaml:"output"`
}

// NewConfig returns a configuration with the scanner defaults applied.
func NewConfig() *Config {
	return &Config{
		LogLevel: "info",
		Serial:   SerialConfig{Baud: defaultBaudRate},
		Scan: ScanConfig{
			StartMHz:       defaultStartMHz,
			EndMHz:         defaultEndMHz,
			StepMHz:        defaultStepMHz,
			Dwell:          Duration(defaultDwell),
			SampleInterval: Duration(defaultSampleInterval),
			SettleDelay:    Duration(defaultSettleDelay),
		},
		Radio: RadioConfig{
			BandwidthKHz:    defaultBandwidthKHz,
			SpreadingFactor: defaultSpreading,
			CodingRate:      defaultCodingRate,
		},
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file: %w", err)
	}

	config := NewConfig()
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing configuration file: %w", err)
	}
	return config, nil
}

// NewConfigFromArgs builds the configuration from CLI arguments. When
// -c names a YAML file it is loaded first; any other flag explicitly
// present on the command line overrides the file value.
func NewConfigFromArgs(args []string) (*Config, error) {
	defaults := NewConfig()

	fs := flag.NewFlagSet("noisescan", flag.ContinueOnError)

	var (
		configPath     string
		logLevel       string
		debug          bool
		serialDevice   string
		baud           int
		tcpAddr        string
		startMHz       float64
		endMHz         float64
		stepMHz        float64
		dwell          time.Duration
		sampleInterval time.Duration
		settleDelay    time.Duration
		bandwidthKHz   float64
		sf             int
		cr             int
		outCSV         string
		outDB          string
		outChart       string
		fontPath       string
	)

	fs.StringVar(&configPath, "c", "", "Path to an optional YAML configuration file")
	fs.StringVar(&logLevel, "log-level", defaults.LogLevel, "Log level. [debug, info, warn, error]")
	fs.BoolVar(&debug, "debug", false, "Log raw protocol frames in hex")
	fs.StringVar(&serialDevice, "usb", "", "USB serial device (e.g. /dev/ttyUSB0)")
	fs.IntVar(&baud, "baud", defaults.Serial.Baud, "Serial baud rate")
	fs.StringVar(&tcpAddr, "tcp", "", "TCP target HOST:PORT (e.g. 192.168.1.50:4242)")
	fs.Float64Var(&startMHz, "start-mhz", defaults.Scan.StartMHz, "First frequency of the sweep, MHz")
	fs.Float64Var(&endMHz, "end-mhz", defaults.Scan.EndMHz, "Last frequency of the sweep, MHz")
	fs.Float64Var(&stepMHz, "step-mhz", defaults.Scan.StepMHz, "Sweep step, MHz")
	fs.DurationVar(&dwell, "dwell", time.Duration(defaults.Scan.Dwell), "Dwell time per frequency")
	fs.DurationVar(&sampleInterval, "sample-interval", time.Duration(defaults.Scan.SampleInterval), "Pause between samples within a dwell")
	fs.DurationVar(&settleDelay, "settle", time.Duration(defaults.Scan.SettleDelay), "Pause after a retune before the first sample")
	fs.Float64Var(&bandwidthKHz, "bw-khz", defaults.Radio.BandwidthKHz, "LoRa bandwidth, kHz")
	fs.IntVar(&sf, "sf", defaults.Radio.SpreadingFactor, "LoRa spreading factor")
	fs.IntVar(&cr, "cr", defaults.Radio.CodingRate, "LoRa coding rate")
	fs.StringVar(&outCSV, "out", "", "Output CSV filename (default auto-generated)")
	fs.StringVar(&outDB, "db", "", "Output Sqlite database (default derived from CSV name)")
	fs.StringVar(&outChart, "chart", "", "Output chart image (default derived from CSV name)")
	fs.StringVar(&fontPath, "font", "", "TTF font for chart labels (optional)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	config := defaults
	if configPath != "" {
		loaded, err := LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			config.LogLevel = logLevel
		case "debug":
			config.Debug = debug
		case "usb":
			config.Serial.Device = serialDevice
		case "baud":
			config.Serial.Baud = baud
		case "tcp":
			config.TCP = tcpAddr
		case "start-mhz":
			config.Scan.StartMHz = startMHz
		case "end-mhz":
			config.Scan.EndMHz = endMHz
		case "step-mhz":
			config.Scan.StepMHz = stepMHz
		case "dwell":
			config.Scan.Dwell = Duration(dwell)
		case "sample-interval":
			config.Scan.SampleInterval = Duration(sampleInterval)
		case "settle":
			config.Scan.SettleDelay = Duration(settleDelay)
		case "bw-khz":
			config.Radio.BandwidthKHz = bandwidthKHz
		case "sf":
			config.Radio.SpreadingFactor = sf
		case "cr":
			config.Radio.CodingRate = cr
		case "out":
			config.Output.CSV = outCSV
		case "db":
			config.Output.DB = outDB
		case "chart":
			config.Output.Chart = outChart
		case "font":
			config.Output.Font = fontPath
		}
	})

	if err := config.Validate(); err != nil {
		fs.Usage()
		return nil, err
	}
	return config, nil
}

// Validate checks the assembled configuration for contradictions.
func (c *Config) Validate() error {
	if c.Serial.Device == "" && c.TCP == "" {
		return errors.New("either a serial device (-usb) or a TCP target (-tcp) is required")
	}
	if c.Serial.Device != "" && c.TCP != "" {
		return errors.New("serial device and TCP target are mutually exclusive")
	}
	if c.Serial.Device != "" && c.Serial.Baud <= 0 {
		return errors.New("baud rate must be positive")
	}

	if c.Scan.StepMHz <= 0 {
		return errors.New("step must be positive")
	}
	if c.Scan.EndMHz < c.Scan.StartMHz {
		return errors.New("end frequency must not be below start frequency")
	}
	if c.Scan.Dwell <= 0 {
		return errors.New("dwell must be positive")
	}
	if c.Scan.SampleInterval <= 0 {
		return errors.New("sample interval must be positive")
	}

	if c.Radio.BandwidthKHz <= 0 {
		return errors.New("bandwidth must be positive")
	}
	if c.Radio.SpreadingFactor < 5 || c.Radio.SpreadingFactor > 12 {
		return fmt.Errorf("invalid spreading factor: %d", c.Radio.SpreadingFactor)
	}
	if c.Radio.CodingRate < 5 || c.Radio.CodingRate > 8 {
		return fmt.Errorf("invalid coding rate: %d", c.Radio.CodingRate)
	}

	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	level, _ := parseLogLevel(c.LogLevel)
	return level
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}
