package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/meshcore-tools/noisefloor/internal/chart"
	"github.com/meshcore-tools/noisefloor/internal/storage"
)

// Run renders a stored scan session as a chart image.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	sessionID := config.SessionID
	if sessionID == 0 {
		id, err := store.LastSessionID(ctx)
		if err != nil {
			return fmt.Errorf("finding the most recent session: %w", err)
		}
		sessionID = id
	}

	session, err := store.Session(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading session %d: %w", sessionID, err)
	}

	records, err := store.Records(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}

	logger.Info("loaded session",
		slog.Int64("session", session.ID),
		slog.String("device", session.Device),
		slog.String("started", session.StartTime.Local().Format(time.DateTime)),
		slog.Int("records", len(records)))

	renderer, err := chart.NewRenderer(chart.Config{
		Width:    config.Width,
		Height:   config.Height,
		FontPath: config.FontPath,
		Title: fmt.Sprintf("Session %d (%s, %s)",
			session.ID, session.Device, session.StartTime.Local().Format(time.DateTime)),
	})
	if err != nil {
		return fmt.Errorf("creating chart renderer: %w", err)
	}
	defer renderer.Close()

	img, err := renderer.Render(records)
	if err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}

	logger.Info("rendering chart",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
		))

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	return chart.Encode(out, img, config.Format)
}
