package storage

import (
	"database/sql"
	"time"

	"github.com/meshcore-tools/noisefloor/internal/scan"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func toRecordData(sessionID int64, rec scan.Record) *recordData {
	data := recordData{
		SessionID:    sessionID,
		CreatedAt:    time.Now().UTC(),
		FrequencyMHz: rec.FrequencyMHz,
		Samples:      rec.Samples,
	}

	// Statistics of an empty dwell are stored as NULL, not zero: a
	// noise floor of 0 dBm is a valid (if alarming) reading.
	if rec.Samples > 0 {
		data.Avg = sql.NullFloat64{Float64: rec.Avg, Valid: true}
		data.Min = sql.NullInt64{Int64: int64(rec.Min), Valid: true}
		data.Max = sql.NullInt64{Int64: int64(rec.Max), Valid: true}
		data.StdDev = sql.NullFloat64{Float64: rec.StdDev, Valid: true}
	}

	return &data
}

func fromRecordData(data recordData) scan.Record {
	rec := scan.Record{
		FrequencyMHz: data.FrequencyMHz,
		Samples:      data.Samples,
	}

	if data.Avg.Valid {
		rec.Avg = data.Avg.Float64
	}
	if data.Min.Valid {
		rec.Min = int(data.Min.Int64)
	}
	if data.Max.Valid {
		rec.Max = int(data.Max.Int64)
	}
	if data.StdDev.Valid {
		rec.StdDev = data.StdDev.Float64
	}

	return rec
}
