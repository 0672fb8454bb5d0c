package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/meshcore-tools/noisefloor/internal/chart"
	"github.com/meshcore-tools/noisefloor/internal/companion"
	"github.com/meshcore-tools/noisefloor/internal/scan"
	"github.com/meshcore-tools/noisefloor/internal/storage"
	"github.com/meshcore-tools/noisefloor/internal/transport"
)

// Run executes one scan: it connects to the device, sweeps the plan,
// persists every record to CSV and Sqlite as it is measured, and
// renders a chart of whatever was collected.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	tr, device := newTransport(config)

	plan := scan.Plan{
		StartMHz: config.Scan.StartMHz,
		EndMHz:   config.Scan.EndMHz,
		StepMHz:  config.Scan.StepMHz,
	}
	params := companion.RadioParams{
		BandwidthKHz:    config.Radio.BandwidthKHz,
		SpreadingFactor: uint8(config.Radio.SpreadingFactor),
		CodingRate:      uint8(config.Radio.CodingRate),
	}

	csvPath, dbPath, chartPath := outputPaths(config, time.Now())

	logger.Info("starting noise floor scan",
		slog.String("device", device),
		slog.Group("plan",
			slog.Float64("startMHz", plan.StartMHz),
			slog.Float64("endMHz", plan.EndMHz),
			slog.Float64("stepMHz", plan.StepMHz),
			slog.Int("frequencies", plan.Count()),
		),
		slog.Group("radio",
			slog.Float64("bandwidthKHz", params.BandwidthKHz),
			slog.Int("sf", int(params.SpreadingFactor)),
			slog.Int("cr", int(params.CodingRate)),
		),
		slog.Group("output",
			slog.String("csv", csvPath),
			slog.String("db", dbPath),
			slog.String("chart", chartPath),
		),
	)

	client := companion.NewClient(tr,
		companion.WithLogger(logger),
		companion.WithFrameEcho(config.Debug),
	)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connecting to %s: %w", device, err)
	}
	defer client.Close()

	csvSink, err := storage.NewCSVSink(csvPath)
	if err != nil {
		return fmt.Errorf("creating CSV output: %w", err)
	}
	defer csvSink.Close()

	store := storage.NewSqliteStore(dbPath)
	defer store.Close()

	sessionID, err := store.CreateSession(ctx, device, sessionConfig(plan, params, config))
	if err != nil {
		return fmt.Errorf("creating scan session: %w", err)
	}

	controller := scan.NewController(client, plan, params,
		scan.WithDwell(time.Duration(config.Scan.Dwell)),
		scan.WithSampleInterval(time.Duration(config.Scan.SampleInterval)),
		scan.WithSettleDelay(time.Duration(config.Scan.SettleDelay)),
		scan.WithSink(csvSink),
		scan.WithSink(store.Sink(ctx, sessionID)),
		scan.WithSink(printSink{}),
		scan.WithProgress(printProgress),
		scan.WithLogger(logger),
	)

	records, err := controller.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		logger.Info("scan interrupted, keeping partial results", slog.Int("records", len(records)))
	default:
		// Render whatever was measured before surfacing the failure.
		if chartErr := renderChart(chartPath, config, plan, params, records); chartErr != nil {
			logger.Warn("rendering chart failed", slog.String("error", chartErr.Error()))
		}
		return fmt.Errorf("running scan: %w", err)
	}

	logger.Info("scan complete",
		slog.Int("records", len(records)),
		slog.Int64("session", sessionID))

	if err := renderChart(chartPath, config, plan, params, records); err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	return nil
}

func newTransport(config *Config) (transport.Transport, string) {
	if config.TCP != "" {
		return transport.NewTCP(config.TCP), "tcp:" + config.TCP
	}
	return transport.NewSerial(config.Serial.Device, config.Serial.Baud), "serial:" + config.Serial.Device
}

// outputPaths resolves the CSV, database and chart filenames. Unset
// paths are derived from the CSV name so one scan's artifacts share a
// stem.
func outputPaths(config *Config, now time.Time) (csvPath, dbPath, chartPath string) {
	csvPath = config.Output.CSV
	if csvPath == "" {
		csvPath = fmt.Sprintf("noisefloor-%s-%d-%d_%s.csv",
			strconv.FormatFloat(config.Radio.BandwidthKHz, 'f', -1, 64),
			config.Radio.SpreadingFactor,
			config.Radio.CodingRate,
			now.Format("20060102-150405"))
	}

	stem := strings.TrimSuffix(csvPath, ".csv")

	dbPath = config.Output.DB
	if dbPath == "" {
		dbPath = stem + ".db"
	}
	chartPath = config.Output.Chart
	if chartPath == "" {
		chartPath = stem + ".png"
	}
	return csvPath, dbPath, chartPath
}

// sessionConfig is the JSON document stored with the session row.
func sessionConfig(plan scan.Plan, params companion.RadioParams, config *Config) map[string]any {
	return map[string]any{
		"start_mhz":         plan.StartMHz,
		"end_mhz":           plan.EndMHz,
		"step_mhz":          plan.StepMHz,
		"bandwidth_khz":     params.BandwidthKHz,
		"spreading_factor":  params.SpreadingFactor,
		"coding_rate":       params.CodingRate,
		"dwell_seconds":     time.Duration(config.Scan.Dwell).Seconds(),
		"sample_interval_s": time.Duration(config.Scan.SampleInterval).Seconds(),
		"settle_delay_s":    time.Duration(config.Scan.SettleDelay).Seconds(),
	}
}

func renderChart(path string, config *Config, plan scan.Plan, params companion.RadioParams, records []scan.Record) error {
	if len(records) == 0 {
		return nil
	}

	renderer, err := chart.NewRenderer(chart.Config{
		FontPath: config.Output.Font,
		Title: fmt.Sprintf("Noise floor %s, BW %.0f kHz SF%d CR%d",
			plan.String(), params.BandwidthKHz, params.SpreadingFactor, params.CodingRate),
	})
	if err != nil {
		return err
	}
	defer renderer.Close()

	img, err := renderer.Render(records)
	if err != nil {
		if errors.Is(err, chart.ErrNoData) {
			return nil // every dwell came back empty, nothing to draw
		}
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	return chart.Encode(out, img, chart.FormatPNG)
}

func printProgress(index, total int, freqMHz float64) {
	fmt.Printf("[%d/%d] Measuring %.3f MHz\n", index, total, freqMHz)
}

// printSink echoes each finalized record to stdout, next to the
// progress line for its frequency.
type printSink struct{}

func (printSink) Append(rec scan.Record) error {
	if rec.Samples == 0 {
		fmt.Printf("  no samples\n")
		return nil
	}
	fmt.Printf("  avg=%.1f dBm min=%d max=%d stdev=%.2f (%d samples)\n",
		rec.Avg, rec.Min, rec.Max, rec.StdDev, rec.Samples)
	return nil
}
