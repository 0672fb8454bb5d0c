package chart

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"testing"

	"github.com/meshcore-tools/noisefloor/internal/scan"
)

func testRecords() []scan.Record {
	return []scan.Record{
		{FrequencyMHz: 915.0, Samples: 3, Avg: -110, Min: -112, Max: -108, StdDev: 1.63},
		{FrequencyMHz: 915.125, Samples: 3, Avg: -109, Min: -111, Max: -107, StdDev: 1.5},
		{FrequencyMHz: 915.25, Samples: 0},
		{FrequencyMHz: 915.375, Samples: 3, Avg: -111, Min: -113, Max: -109, StdDev: 1.2},
	}
}

func TestRenderer_Render(t *testing.T) {
	r, err := NewRenderer(Config{Width: 640, Height: 320})
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	defer r.Close()

	img, err := r.Render(testRecords())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 640 || bounds.Dy() != 320 {
		t.Errorf("expected 640x320 image, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	// Corners lie in the border area and must stay white.
	if img.At(0, 0) != (color.RGBA{0xff, 0xff, 0xff, 0xff}) {
		t.Errorf("expected a white background, got %v", img.At(0, 0))
	}

	// Something must have been drawn inside the plot area.
	painted := false
	for y := bounds.Min.Y; y < bounds.Max.Y && !painted; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if img.At(x, y) == (color.RGBA(avgColor)) {
				painted = true
				break
			}
		}
	}
	if !painted {
		t.Error("expected the average line to be drawn")
	}
}

func TestRenderer_NoData(t *testing.T) {
	r, err := NewRenderer(Config{})
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	defer r.Close()

	if _, err := r.Render(nil); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData for nil records, got %v", err)
	}

	empty := []scan.Record{{FrequencyMHz: 915.0, Samples: 0}}
	if _, err := r.Render(empty); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData for zero-sample records, got %v", err)
	}
}

func TestRenderer_SingleRecord(t *testing.T) {
	r, err := NewRenderer(Config{Width: 320, Height: 200})
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	defer r.Close()

	records := []scan.Record{{FrequencyMHz: 868.5, Samples: 1, Avg: -100, Min: -100, Max: -100}}
	if _, err := r.Render(records); err != nil {
		t.Fatalf("Render failed for a single record: %v", err)
	}
}

func TestEncode(t *testing.T) {
	r, err := NewRenderer(Config{Width: 320, Height: 200})
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	defer r.Close()

	img, err := r.Render(testRecords())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, img, FormatPNG); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decoding PNG failed: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("decoded bounds %v differ from source %v", decoded.Bounds(), img.Bounds())
	}

	buf.Reset()
	if err := Encode(&buf, img, FormatJPEG); err != nil {
		t.Fatalf("JPEG Encode failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected JPEG bytes")
	}

	if err := Encode(&buf, img, Format("bmp")); err == nil {
		t.Error("expected an error for an unsupported format")
	}
}

func TestNiceStep(t *testing.T) {
	testCases := []struct {
		name     string
		rangeVal float64
		maxTicks int
		want     float64
	}{
		{"sub-MHz band", 13.0, 8, 2},
		{"single channel", 1.0, 8, 0.2},
		{"noise floor span", 20.0, 5, 5},
		{"degenerate tick budget", 10.0, 0, 10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := niceStep(tc.rangeVal, tc.maxTicks); got != tc.want {
				t.Errorf("niceStep(%v, %d): expected %v, got %v", tc.rangeVal, tc.maxTicks, got, tc.want)
			}
		})
	}
}
