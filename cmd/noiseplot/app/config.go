package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/meshcore-tools/noisefloor/internal/chart"
)

var validImageFormats = map[chart.Format]struct{}{
	chart.FormatPNG:  {},
	chart.FormatJPEG: {},
}

// Config is the chart CLI configuration.
type Config struct {
	DBPath     string
	SessionID  int64
	OutputFile string
	Format     chart.Format
	FontPath   string
	Width      int
	Height     int
	Verbose    bool
}

// NewConfigFromArgs parses the CLI arguments. A session ID of 0 selects
// the most recent session in the database.
func NewConfigFromArgs(args []string) (*Config, error) {
	c := Config{Format: chart.FormatPNG}

	fs := flag.NewFlagSet("noiseplot", flag.ContinueOnError)

	var imageFormat string
	fs.StringVar(&c.DBPath, "db", "", "Path to the scan database file")
	fs.Int64Var(&c.SessionID, "s", 0, "Session ID (0 for the most recent session)")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output image (default derived from the database name)")
	fs.StringVar(&imageFormat, "f", string(chart.FormatPNG), "Output image format. [png, jpeg]")
	fs.StringVar(&c.FontPath, "font", "", "TTF font for chart labels (optional)")
	fs.IntVar(&c.Width, "w", 0, "Image width in pixels (0 for default)")
	fs.IntVar(&c.Height, "h", 0, "Image height in pixels (0 for default)")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)

	var err error
	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID < 0 {
		err = errors.New("session id must not be negative")
	} else if _, ok := validImageFormats[chart.Format(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = chart.Format(imageFormat)
	if c.OutputFile == "" {
		c.OutputFile = fmt.Sprintf("%s.%s", strings.TrimSuffix(c.DBPath, ".db"), c.Format)
	}
	return &c, nil
}
