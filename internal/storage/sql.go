package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      device,
                      config)
VALUES (?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    device,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    device,
    config
FROM sessions
ORDER BY start_time`

	selectLastSessionIDSQL = `
SELECT id
FROM sessions
ORDER BY start_time DESC, id DESC
LIMIT 1`

	insertRecordSQL = `
INSERT INTO records (session_id,
                     created_at,
                     frequency_mhz,
                     samples,
                     noise_floor_avg,
                     noise_floor_min,
                     noise_floor_max,
                     noise_floor_stdev)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectRecordsSQL = `
SELECT
    frequency_mhz,
    samples,
    noise_floor_avg,
    noise_floor_min,
    noise_floor_max,
    noise_floor_stdev
FROM records
WHERE
    session_id = ?
ORDER BY frequency_mhz`
)

//go:embed schema.sql
var schemaSQL string
