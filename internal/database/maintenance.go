package database

import (
	"context"
	"time"
)

// PruneFinishedChecks deletes check rows that are done and older than the
// retention period. The reconciler calls this periodically so the schedule
// table does not grow without bound.
func (db *DB) PruneFinishedChecks(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM transcription_checks WHERE done AND due_at < now() - $1::interval`,
		retention.String())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
