package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job lifecycle states.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusError      = "error"
)

// JobMetadata carries the request-time parameters for a transcription job.
// Stored as jsonb; terminal updates merge into it rather than replacing it.
type JobMetadata struct {
	SourceURL         string   `json:"source_url,omitempty"`
	CustomVocabulary  []string `json:"custom_vocabulary,omitempty"`
	SpeakerLabels     bool     `json:"speaker_labels,omitempty"`
	SpeakersExpected  int      `json:"speakers_expected,omitempty"`
	SentimentAnalysis bool     `json:"sentiment_analysis,omitempty"`
	CreditsUsed       int      `json:"credits_used,omitempty"`
}

// MarshalMetadata encodes request-time job metadata for the jsonb column.
func MarshalMetadata(m JobMetadata) (json.RawMessage, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal job metadata: %w", err)
	}
	return json.RawMessage(b), nil
}

// TranscriptionJob is one user-submitted transcription request and its
// lifecycle record.
type TranscriptionJob struct {
	ID             uuid.UUID       `json:"id"`
	UserID         string          `json:"user_id"`
	TranscriptID   string          `json:"transcript_id"`
	Status         string          `json:"status"` // pending, processing, completed, error
	FileName       string          `json:"file_name"`
	FileSize       int64           `json:"file_size"`
	FileType       string          `json:"file_type"`
	Duration       float64         `json:"duration"`
	Text           string          `json:"transcription_text"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	WordCount      int             `json:"word_count"`
	UtteranceCount int             `json:"utterance_count"`
	SpeakerCount   int             `json:"speaker_count"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// CompletionUpdate is the terminal state copied from the vendor.
type CompletionUpdate struct {
	Status         string // "completed" or "error"
	Text           string
	Duration       float64
	ErrorMessage   string
	WordCount      int
	UtteranceCount int
	SpeakerCount   int
	MetadataPatch  map[string]any // merged into existing metadata keys
}

const jobColumns = `id, user_id, transcript_id, status, file_name, file_size,
	file_type, duration, transcription_text, error_message,
	word_count, utterance_count, speaker_count, metadata, created_at, completed_at`

func scanJob(row interface{ Scan(...any) error }) (*TranscriptionJob, error) {
	var j TranscriptionJob
	err := row.Scan(
		&j.ID, &j.UserID, &j.TranscriptID, &j.Status, &j.FileName, &j.FileSize,
		&j.FileType, &j.Duration, &j.Text, &j.ErrorMessage,
		&j.WordCount, &j.UtteranceCount, &j.SpeakerCount, &j.Metadata, &j.CreatedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// InsertTranscriptionJob creates a job row in "processing" state together
// with its reconciliation check ladder, in one transaction. checkDelays are
// offsets from now at which the reconciler should poll the vendor.
func (db *DB) InsertTranscriptionJob(ctx context.Context, job *TranscriptionJob, checkDelays []time.Duration) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	metadata := job.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO transcriptions (
			id, user_id, transcript_id, status, file_name, file_size,
			file_type, duration, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`,
		job.ID, job.UserID, job.TranscriptID, job.Status, job.FileName, job.FileSize,
		job.FileType, job.Duration, metadata,
	).Scan(&job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transcription: %w", err)
	}

	for _, d := range checkDelays {
		_, err = tx.Exec(ctx, `
			INSERT INTO transcription_checks (transcription_id, due_at)
			VALUES ($1, now() + $2)
		`, job.ID, d)
		if err != nil {
			return fmt.Errorf("insert check: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetTranscriptionJob returns a job by ID.
func (db *DB) GetTranscriptionJob(ctx context.Context, id uuid.UUID) (*TranscriptionJob, error) {
	return scanJob(db.Pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM transcriptions WHERE id = $1`, id))
}

// ListTranscriptionJobs returns a user's jobs, newest first.
func (db *DB) ListTranscriptionJobs(ctx context.Context, userID string, limit, offset int) ([]TranscriptionJob, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM transcriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TranscriptionJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *j)
	}
	if result == nil {
		result = []TranscriptionJob{}
	}
	return result, rows.Err()
}

// CompleteTranscriptionJob applies a terminal vendor state to a job row.
// Metadata keys are merged (jsonb ||), never replaced, so request-time
// parameters survive completion. Only rows still in a non-terminal state
// are touched; re-applying a terminal update is a no-op. Returns true if
// the row transitioned.
func (db *DB) CompleteTranscriptionJob(ctx context.Context, id uuid.UUID, upd CompletionUpdate) (bool, error) {
	patch := upd.MetadataPatch
	if patch == nil {
		patch = map[string]any{}
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return false, fmt.Errorf("marshal metadata patch: %w", err)
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE transcriptions SET
			status = $2,
			transcription_text = $3,
			duration = $4,
			error_message = $5,
			word_count = $6,
			utterance_count = $7,
			speaker_count = $8,
			metadata = metadata || $9::jsonb,
			completed_at = now()
		WHERE id = $1 AND status NOT IN ('completed', 'error')
	`, id, upd.Status, upd.Text, upd.Duration, upd.ErrorMessage,
		upd.WordCount, upd.UtteranceCount, upd.SpeakerCount, patchJSON)
	if err != nil {
		return false, fmt.Errorf("complete transcription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteDuplicateJobs removes other "processing" rows for the same
// (user_id, file_name), treating keepID as the canonical attempt.
// Returns the number of rows removed.
func (db *DB) DeleteDuplicateJobs(ctx context.Context, userID, fileName string, keepID uuid.UUID) (int64, error) {
	if fileName == "" {
		return 0, nil
	}
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM transcriptions
		WHERE user_id = $1 AND file_name = $2 AND status = 'processing' AND id <> $3
	`, userID, fileName, keepID)
	if err != nil {
		return 0, fmt.Errorf("delete duplicate jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClaimDueChecks marks up to limit due reconciliation checks as done and
// returns the IDs of the jobs they belong to. FOR UPDATE SKIP LOCKED keeps
// concurrent pollers from claiming the same check twice.
func (db *DB) ClaimDueChecks(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := db.Pool.Query(ctx, `
		UPDATE transcription_checks SET done = true
		WHERE id IN (
			SELECT id FROM transcription_checks
			WHERE NOT done AND due_at <= now()
			ORDER BY due_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING transcription_id
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due checks: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CancelPendingChecks marks all remaining checks for a job as done. Called
// once the job reaches a terminal state.
func (db *DB) CancelPendingChecks(ctx context.Context, transcriptionID uuid.UUID) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE transcription_checks SET done = true
		WHERE transcription_id = $1 AND NOT done
	`, transcriptionID)
	if err != nil {
		return fmt.Errorf("cancel pending checks: %w", err)
	}
	return nil
}
