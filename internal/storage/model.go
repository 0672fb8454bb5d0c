package storage

import (
	"database/sql"
	"time"
)

// Session describes one scan run. Config holds the JSON-encoded radio
// parameters and plan the session was started with, when recorded.
type Session struct {
	ID        int64
	StartTime time.Time
	Device    string
	Config    *string
}

// recordData is the database row shape for one noise-floor record.
// Avg, Min, Max and StdDev are NULL for zero-sample records.
type recordData struct {
	SessionID    int64
	CreatedAt    time.Time
	FrequencyMHz float64
	Samples      int
	Avg          sql.NullFloat64
	Min          sql.NullInt64
	Max          sql.NullInt64
	StdDev       sql.NullFloat64
}
