// Package reconcile copies terminal vendor transcript state into local job
// rows. Checks are durable rows with a due_at ladder written at submission
// time; a background loop claims due checks and polls the vendor, so
// reconciliation survives process restarts. A pull path does the same work
// synchronously when a client asks for a job.
package reconcile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/2cloudlabs/yolo-transcript/internal/assemblyai"
	"github.com/2cloudlabs/yolo-transcript/internal/database"
	"github.com/2cloudlabs/yolo-transcript/internal/ledger"
	"github.com/2cloudlabs/yolo-transcript/internal/metrics"
)

// DefaultCheckDelays is the ladder of delayed status checks scheduled at
// submission time.
var DefaultCheckDelays = []time.Duration{
	2 * time.Second,
	20 * time.Second,
	60 * time.Second,
	180 * time.Second,
}

// ErrJobNotFound is returned by Sync for an unknown or foreign job.
var ErrJobNotFound = errors.New("transcription job not found")

// Provider fetches the vendor's current transcript state.
type Provider interface {
	Get(ctx context.Context, id string) (*assemblyai.Transcript, error)
}

// Store is the persistence surface the reconciler needs.
type Store interface {
	GetTranscriptionJob(ctx context.Context, id uuid.UUID) (*database.TranscriptionJob, error)
	CompleteTranscriptionJob(ctx context.Context, id uuid.UUID, upd database.CompletionUpdate) (bool, error)
	CancelPendingChecks(ctx context.Context, transcriptionID uuid.UUID) error
	ClaimDueChecks(ctx context.Context, limit int) ([]uuid.UUID, error)
	DeleteDuplicateJobs(ctx context.Context, userID, fileName string, keepID uuid.UUID) (int64, error)
	HasUsageForTranscription(ctx context.Context, transcriptionID uuid.UUID) (bool, error)
}

// CreditLedger finalizes the charge once a job completes.
type CreditLedger interface {
	Deduct(ctx context.Context, userID string, amount int, transcriptionID *uuid.UUID, description string) (int, error)
}

// Reconciler polls due checks and applies terminal vendor state.
type Reconciler struct {
	store    Store
	provider Provider
	credits  CreditLedger
	interval time.Duration
	batch    int
	log      zerolog.Logger
	stop     chan struct{}
}

func New(store Store, provider Provider, credits CreditLedger, interval time.Duration, batch int, log zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batch <= 0 {
		batch = 20
	}
	return &Reconciler{
		store:    store,
		provider: provider,
		credits:  credits,
		interval: interval,
		batch:    batch,
		log:      log.With().Str("component", "reconciler").Logger(),
		stop:     make(chan struct{}),
	}
}

func (r *Reconciler) Start() { go r.loop() }
func (r *Reconciler) Stop()  { close(r.stop) }

func (r *Reconciler) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	prune := time.NewTicker(time.Hour)
	defer prune.Stop()
	for {
		select {
		case <-ticker.C:
			r.runDueChecks()
		case <-prune.C:
			r.pruneFinishedChecks()
		case <-r.stop:
			return
		}
	}
}

// pruneFinishedChecks trims old done rows when the store supports it.
func (r *Reconciler) pruneFinishedChecks() {
	pruner, ok := r.store.(interface {
		PruneFinishedChecks(ctx context.Context, retention time.Duration) (int64, error)
	})
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := pruner.PruneFinishedChecks(ctx, 7*24*time.Hour)
	if err != nil {
		r.log.Warn().Err(err).Msg("prune finished checks failed")
		return
	}
	if n > 0 {
		r.log.Debug().Int64("rows", n).Msg("finished checks pruned")
	}
}

func (r *Reconciler) runDueChecks() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ids, err := r.store.ClaimDueChecks(ctx, r.batch)
	if err != nil {
		r.log.Warn().Err(err).Msg("claim due checks failed")
		return
	}

	for _, id := range ids {
		if err := r.Check(ctx, id); err != nil {
			metrics.ReconcileChecksTotal.WithLabelValues("error").Inc()
			r.log.Warn().Err(err).Str("job_id", id.String()).Msg("status check failed")
			continue
		}
		metrics.ReconcileChecksTotal.WithLabelValues("ok").Inc()
	}
}

// Check fetches the vendor state for one job and applies it if terminal.
// A non-terminal vendor status is not an error; the next ladder rung (if
// any) retries. A job whose ladder runs out stays "processing" until the
// pull path observes it.
func (r *Reconciler) Check(ctx context.Context, jobID uuid.UUID) error {
	job, err := r.store.GetTranscriptionJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == database.JobStatusCompleted || job.Status == database.JobStatusError {
		return r.store.CancelPendingChecks(ctx, jobID)
	}
	if job.TranscriptID == "" {
		return nil
	}

	tr, err := r.provider.Get(ctx, job.TranscriptID)
	if err != nil {
		return err
	}

	_, err = r.Apply(ctx, job, tr)
	return err
}

// Sync is the pull path: fetch live vendor state for a user's job, apply
// terminal updates, and clean up duplicate "processing" rows for the same
// (user_id, file_name). Returns the refreshed job and the live vendor
// transcript (for response-only fields such as sentiment).
func (r *Reconciler) Sync(ctx context.Context, jobID uuid.UUID, userID string) (*database.TranscriptionJob, *assemblyai.Transcript, error) {
	job, err := r.store.GetTranscriptionJob(ctx, jobID)
	if err != nil {
		return nil, nil, ErrJobNotFound
	}
	if job.UserID != userID {
		return nil, nil, ErrJobNotFound
	}

	var tr *assemblyai.Transcript
	if job.TranscriptID != "" {
		tr, err = r.provider.Get(ctx, job.TranscriptID)
		if err != nil {
			return nil, nil, err
		}
		changed, err := r.Apply(ctx, job, tr)
		if err != nil {
			return nil, nil, err
		}
		if changed {
			job, err = r.store.GetTranscriptionJob(ctx, jobID)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	// This lookup is authoritative evidence of which retry attempt won.
	removed, err := r.store.DeleteDuplicateJobs(ctx, job.UserID, job.FileName, job.ID)
	if err != nil {
		return nil, nil, err
	}
	if removed > 0 {
		r.log.Info().
			Str("job_id", job.ID.String()).
			Str("file_name", job.FileName).
			Int64("removed", removed).
			Msg("duplicate processing rows removed")
	}

	return job, tr, nil
}

// Apply copies a terminal vendor transcript into the job row and finalizes
// the charge. Returns true if the row transitioned. Idempotent: a job that
// is already terminal neither transitions again nor charges again.
func (r *Reconciler) Apply(ctx context.Context, job *database.TranscriptionJob, tr *assemblyai.Transcript) (bool, error) {
	if !tr.IsTerminal() {
		return false, nil
	}

	upd := database.CompletionUpdate{Status: tr.Status}
	creditsUsed := 0
	if tr.Status == assemblyai.StatusCompleted {
		upd.Text = tr.Text
		upd.Duration = tr.AudioDuration
		if upd.Duration == 0 {
			upd.Duration = job.Duration
		}
		upd.WordCount = wordCount(tr)
		upd.UtteranceCount = len(tr.Utterances)
		upd.SpeakerCount = SpeakerCount(tr.Utterances)
		creditsUsed = ledger.CreditsNeeded(upd.Duration)
		upd.MetadataPatch = map[string]any{"credits_used": creditsUsed}
	} else {
		upd.ErrorMessage = tr.Error
	}

	transitioned, err := r.store.CompleteTranscriptionJob(ctx, job.ID, upd)
	if err != nil {
		return false, err
	}
	if transitioned {
		if err := r.store.CancelPendingChecks(ctx, job.ID); err != nil {
			r.log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("cancel pending checks failed")
		}
		metrics.TranscriptionsCompletedTotal.WithLabelValues(tr.Status).Inc()
	}

	// The charge runs on already-terminal rows too: a Deduct that failed on
	// the transition pass leaves the job completed but uncharged, and the
	// pull path retries it here. The usage record is the guard against
	// charging twice.
	if tr.Status == assemblyai.StatusCompleted && r.credits != nil {
		charged, err := r.store.HasUsageForTranscription(ctx, job.ID)
		if err != nil {
			return transitioned, err
		}
		if !charged {
			id := job.ID
			if _, err := r.credits.Deduct(ctx, job.UserID, creditsUsed, &id, "Transcription: "+job.FileName); err != nil {
				return transitioned, err
			}
			metrics.CreditsDeductedTotal.Add(float64(creditsUsed))
		}
	}

	if !transitioned {
		return false, nil
	}

	r.log.Info().
		Str("job_id", job.ID.String()).
		Str("status", tr.Status).
		Int("credits", creditsUsed).
		Msg("job reconciled")
	return true, nil
}

// SpeakerCount is the number of distinct speaker labels observed across
// utterances, not a vendor-reported count.
func SpeakerCount(utterances []assemblyai.Utterance) int {
	seen := make(map[string]struct{})
	for _, u := range utterances {
		if u.Speaker == "" {
			continue
		}
		seen[u.Speaker] = struct{}{}
	}
	return len(seen)
}

func wordCount(tr *assemblyai.Transcript) int {
	if len(tr.Words) > 0 {
		return len(tr.Words)
	}
	return len(strings.Fields(tr.Text))
}
