package chart

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	"github.com/dustin/go-humanize"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/meshcore-tools/noisefloor/internal/scan"
)

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// Format selects the output image encoding.
type Format string

const (
	defaultWidth    = 1200
	defaultHeight   = 600
	defaultFontSize = 12.0

	tickMarkLength = 5
	pixelsPerXTick = 150
	pixelsPerYTick = 60
	jpegQuality    = 98

	// Border sizes in pixels
	topBorder    = 20
	leftBorder   = 80
	bottomBorder = 70
	rightBorder  = 20
)

var (
	// ErrNoData is returned when there is nothing to plot.
	ErrNoData = errors.New("chart: no records with samples to plot")

	avgColor      = color.RGBA{R: 0x1f, G: 0x4e, B: 0x9e, A: 0xff}
	envelopeColor = color.RGBA{R: 0xb8, G: 0xcc, B: 0xe8, A: 0xff}
	gridColor     = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
)

// Config holds the renderer options. Zero values fall back to sensible
// defaults; FontPath is optional and selects a TTF for axis labels.
type Config struct {
	Width    int
	Height   int
	FontSize float64
	FontPath string
	Title    string
}

// Renderer draws a noise-floor line chart: average noise floor per
// frequency with a min/max envelope behind it.
type Renderer struct {
	config Config
	face   font.Face
}

// NewRenderer creates a renderer with the given configuration.
func NewRenderer(config Config) (*Renderer, error) {
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.FontSize == 0 {
		config.FontSize = defaultFontSize
	}

	face, err := loadFace(config.FontPath, config.FontSize)
	if err != nil {
		return nil, fmt.Errorf("loading font face: %w", err)
	}

	return &Renderer{config: config, face: face}, nil
}

// Close releases the font face resources.
func (r *Renderer) Close() error {
	if r.face != nil {
		return r.face.Close()
	}
	return nil
}

// Render draws the chart for the given records. Records must be in
// frequency order; zero-sample records produce gaps in the line.
func (r *Renderer) Render(records []scan.Record) (*image.RGBA, error) {
	plotted := 0
	for _, rec := range records {
		if rec.Samples > 0 {
			plotted++
		}
	}
	if plotted == 0 {
		return nil, ErrNoData
	}

	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(
		leftBorder,
		topBorder,
		r.config.Width-rightBorder,
		r.config.Height-bottomBorder,
	)

	scale := newPlotScale(area, records)

	r.drawFrequencyScale(img, area, scale)
	r.drawNoiseFloorScale(img, area, scale)
	r.drawEnvelope(img, area, scale, records)
	r.drawAverageLine(img, scale, records)
	r.drawAxes(img, area)
	r.drawInfoBar(img, records, plotted)

	return img, nil
}

// Encode writes the image in the requested format.
func Encode(w io.Writer, img image.Image, format Format) error {
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	default:
		return fmt.Errorf("chart: unsupported image format %q", format)
	}
}

// plotScale maps frequencies and noise-floor values onto plot-area
// pixels.
type plotScale struct {
	area image.Rectangle

	freqMin, freqMax float64
	nfMin, nfMax     float64
}

func newPlotScale(area image.Rectangle, records []scan.Record) plotScale {
	s := plotScale{
		area:    area,
		freqMin: math.Inf(1),
		freqMax: math.Inf(-1),
		nfMin:   math.Inf(1),
		nfMax:   math.Inf(-1),
	}

	for _, rec := range records {
		s.freqMin = math.Min(s.freqMin, rec.FrequencyMHz)
		s.freqMax = math.Max(s.freqMax, rec.FrequencyMHz)

		if rec.Samples == 0 {
			continue
		}
		s.nfMin = math.Min(s.nfMin, float64(rec.Min))
		s.nfMax = math.Max(s.nfMax, float64(rec.Max))
	}

	// Pad the vertical range so the line never touches the frame.
	pad := (s.nfMax - s.nfMin) * 0.1
	if pad < 2 {
		pad = 2
	}
	s.nfMin -= pad
	s.nfMax += pad

	if s.freqMax == s.freqMin {
		s.freqMin -= 0.5
		s.freqMax += 0.5
	}

	return s
}

func (s plotScale) x(freqMHz float64) int {
	ratio := (freqMHz - s.freqMin) / (s.freqMax - s.freqMin)
	return s.area.Min.X + int(ratio*float64(s.area.Dx()))
}

func (s plotScale) y(nf float64) int {
	ratio := (nf - s.nfMin) / (s.nfMax - s.nfMin)
	return s.area.Max.Y - int(ratio*float64(s.area.Dy()))
}

func (r *Renderer) drawFrequencyScale(img *image.RGBA, area image.Rectangle, scale plotScale) {
	rangeMHz := scale.freqMax - scale.freqMin
	step := niceStep(rangeMHz, area.Dx()/pixelsPerXTick)
	start := math.Ceil(scale.freqMin/step) * step

	for freq := start; freq <= scale.freqMax+step*1e-6; freq += step {
		x := scale.x(freq)

		// Vertical gridline across the plot, tick below it.
		for y := area.Min.Y; y < area.Max.Y; y++ {
			img.Set(x, y, gridColor)
		}
		for y := area.Max.Y; y < area.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		fract, suffix := humanize.ComputeSI(freq * 1e6)
		label := fmt.Sprintf("%0.3f %sHz", fract, suffix)

		width := font.MeasureString(r.face, label).Round()
		r.drawString(img, label, x-width/2, area.Max.Y+tickMarkLength+r.fontHeight())
	}
}

func (r *Renderer) drawNoiseFloorScale(img *image.RGBA, area image.Rectangle, scale plotScale) {
	rangeDBm := scale.nfMax - scale.nfMin
	step := niceStep(rangeDBm, area.Dy()/pixelsPerYTick)
	start := math.Ceil(scale.nfMin/step) * step

	for nf := start; nf <= scale.nfMax+step*1e-6; nf += step {
		y := scale.y(nf)

		for x := area.Min.X; x < area.Max.X; x++ {
			img.Set(x, y, gridColor)
		}
		for x := area.Min.X - tickMarkLength; x < area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := fmt.Sprintf("%.0f dBm", nf)
		width := font.MeasureString(r.face, label).Round()
		r.drawString(img, label, area.Min.X-tickMarkLength-width-3, y+r.fontHeight()/2-2)
	}
}

// drawEnvelope fills the min..max band behind the average line.
func (r *Renderer) drawEnvelope(img *image.RGBA, area image.Rectangle, scale plotScale, records []scan.Record) {
	var prev *scan.Record
	for i := range records {
		rec := &records[i]
		if rec.Samples == 0 {
			prev = nil
			continue
		}
		if prev != nil {
			fillBand(img, area,
				scale.x(prev.FrequencyMHz), scale.y(float64(prev.Min)), scale.y(float64(prev.Max)),
				scale.x(rec.FrequencyMHz), scale.y(float64(rec.Min)), scale.y(float64(rec.Max)))
		}
		prev = rec
	}
}

func (r *Renderer) drawAverageLine(img *image.RGBA, scale plotScale, records []scan.Record) {
	havePrev := false
	var prevX, prevY int

	for _, rec := range records {
		if rec.Samples == 0 {
			havePrev = false // gap: the frequency produced no readings
			continue
		}

		x, y := scale.x(rec.FrequencyMHz), scale.y(rec.Avg)
		if havePrev {
			drawLine(img, prevX, prevY, x, y, avgColor)
		}
		drawMarker(img, x, y, avgColor)

		prevX, prevY = x, y
		havePrev = true
	}
}

func (r *Renderer) drawAxes(img *image.RGBA, area image.Rectangle) {
	for x := area.Min.X; x <= area.Max.X; x++ {
		img.Set(x, area.Max.Y, color.Black)
	}
	for y := area.Min.Y; y <= area.Max.Y; y++ {
		img.Set(area.Min.X, y, color.Black)
	}
}

func (r *Renderer) drawInfoBar(img *image.RGBA, records []scan.Record, plotted int) {
	info := fmt.Sprintf("%d frequencies, %d measured", len(records), plotted)
	if empty := len(records) - plotted; empty > 0 {
		info += fmt.Sprintf(" (%d empty)", empty)
	}
	if r.config.Title != "" {
		info = r.config.Title + "; " + info
	}

	r.drawString(img, info, leftBorder, img.Bounds().Max.Y-10)
}

func (r *Renderer) drawString(img *image.RGBA, s string, x, y int) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: r.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func (r *Renderer) fontHeight() int {
	metrics := r.face.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

// niceStep picks a 1/2/5-series step that yields at most maxTicks ticks
// over the given range.
func niceStep(rangeVal float64, maxTicks int) float64 {
	if maxTicks < 1 {
		maxTicks = 1
	}

	target := rangeVal / float64(maxTicks)
	magnitude := math.Pow(10, math.Floor(math.Log10(target)))

	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= target {
			return step
		}
	}
	return 10 * magnitude
}

// drawLine draws a straight line using Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)

	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}

	err := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// drawMarker draws a small filled square centered on the point.
func drawMarker(img *image.RGBA, x, y int, c color.Color) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			img.Set(x+dx, y+dy, c)
		}
	}
}

// fillBand fills the quad between two (x, yMin..yMax) columns by
// interpolating the band edges across the x span.
func fillBand(img *image.RGBA, area image.Rectangle, x0, yMin0, yMax0, x1, yMin1, yMax1 int) {
	if x1 == x0 {
		fillColumn(img, area, x0, min(yMin0, yMin1), max(yMax0, yMax1))
		return
	}

	for x := x0; x <= x1; x++ {
		t := float64(x-x0) / float64(x1-x0)
		yA := yMin0 + int(t*float64(yMin1-yMin0))
		yB := yMax0 + int(t*float64(yMax1-yMax0))
		fillColumn(img, area, x, yA, yB)
	}
}

func fillColumn(img *image.RGBA, area image.Rectangle, x, y0, y1 int) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		if (image.Point{X: x, Y: y}).In(area) {
			img.Set(x, y, envelopeColor)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
