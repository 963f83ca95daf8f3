package database

import (
	"context"
	"time"
)

// ProcessingJobCount returns the number of jobs currently in the processing
// state. Used by the metrics collector at scrape time.
func (db *DB) ProcessingJobCount() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var n int64
	err := db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM transcriptions WHERE status = 'processing'`).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}

// PendingCheckCount returns the number of scheduled status checks not yet run.
func (db *DB) PendingCheckCount() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var n int64
	err := db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM transcription_checks WHERE NOT done`).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}
