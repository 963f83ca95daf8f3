package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/2cloudlabs/yolo-transcript/internal/assemblyai"
	"github.com/2cloudlabs/yolo-transcript/internal/database"
	"github.com/2cloudlabs/yolo-transcript/internal/ledger"
	"github.com/2cloudlabs/yolo-transcript/internal/metrics"
	"github.com/2cloudlabs/yolo-transcript/internal/reconcile"
)

// TranscriptionStore is the slice of the database the transcription
// endpoints need.
type TranscriptionStore interface {
	InsertTranscriptionJob(ctx context.Context, job *database.TranscriptionJob, checkDelays []time.Duration) error
	ListTranscriptionJobs(ctx context.Context, userID string, limit, offset int) ([]database.TranscriptionJob, error)
}

// Submitter submits audio URLs to the transcription vendor.
type Submitter interface {
	Submit(ctx context.Context, req assemblyai.SubmitRequest) (*assemblyai.Transcript, error)
}

// Syncer pulls live vendor state for a job and applies terminal updates.
type Syncer interface {
	Sync(ctx context.Context, jobID uuid.UUID, userID string) (*database.TranscriptionJob, *assemblyai.Transcript, error)
}

type TranscriptionsHandler struct {
	store  TranscriptionStore
	vendor Submitter
	syncer Syncer
	ledger *ledger.Ledger
	delays []time.Duration
	log    zerolog.Logger
}

func NewTranscriptionsHandler(store TranscriptionStore, vendor Submitter, syncer Syncer, l *ledger.Ledger, log zerolog.Logger) *TranscriptionsHandler {
	return &TranscriptionsHandler{
		store:  store,
		vendor: vendor,
		syncer: syncer,
		ledger: l,
		delays: reconcile.DefaultCheckDelays,
		log:    log.With().Str("component", "transcriptions_api").Logger(),
	}
}

func (h *TranscriptionsHandler) Routes(r chi.Router) {
	r.Post("/transcribe-url", h.TranscribeURL)
	r.Get("/transcription/{id}", h.GetTranscription)
	r.Get("/transcriptions", h.ListTranscriptions)
}

type diarizationOptions struct {
	SpeakerLabels    bool `json:"speaker_labels"`
	SpeakersExpected int  `json:"speakers_expected"`
}

type transcribeURLRequest struct {
	URL               string             `json:"url"`
	FileName          string             `json:"file_name"`
	FileSize          int64              `json:"file_size"`
	FileType          string             `json:"file_type"`
	DurationInSeconds float64            `json:"durationInSeconds"`
	Diarization       diarizationOptions `json:"diarization_options"`
	CustomVocabulary  []string           `json:"custom_vocabulary"`
	SentimentAnalysis bool               `json:"sentiment_analysis"`
}

func (h *TranscriptionsHandler) TranscribeURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req transcribeURLRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		WriteError(w, http.StatusBadRequest, "url is required")
		return
	}

	needed := ledger.CreditsNeeded(req.DurationInSeconds)
	enough, err := h.ledger.HasSufficientCredits(r.Context(), userID, needed)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("credit check failed")
		WriteError(w, http.StatusInternalServerError, "credit check failed")
		return
	}
	if !enough {
		balance, _ := h.ledger.Balance(r.Context(), userID)
		WriteErrorDetail(w, http.StatusForbidden, "insufficient credits",
			fmt.Sprintf("need %d credits, have %d", needed, balance))
		return
	}

	tr, err := h.vendor.Submit(r.Context(), assemblyai.SubmitRequest{
		AudioURL:          req.URL,
		SpeakerLabels:     req.Diarization.SpeakerLabels,
		SpeakersExpected:  req.Diarization.SpeakersExpected,
		WordBoost:         req.CustomVocabulary,
		SentimentAnalysis: req.SentimentAnalysis,
	})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("vendor submission failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = req.URL
	}

	meta, err := database.MarshalMetadata(database.JobMetadata{
		SourceURL:         req.URL,
		CustomVocabulary:  req.CustomVocabulary,
		SpeakerLabels:     req.Diarization.SpeakerLabels,
		SpeakersExpected:  req.Diarization.SpeakersExpected,
		SentimentAnalysis: req.SentimentAnalysis,
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to encode job metadata")
		return
	}

	job := &database.TranscriptionJob{
		ID:           uuid.New(),
		UserID:       userID,
		TranscriptID: tr.ID,
		Status:       database.JobStatusProcessing,
		FileName:     fileName,
		FileSize:     req.FileSize,
		FileType:     req.FileType,
		Duration:     req.DurationInSeconds,
		Metadata:     meta,
	}
	if err := h.store.InsertTranscriptionJob(r.Context(), job, h.delays); err != nil {
		h.log.Error().Err(err).Str("transcript_id", tr.ID).Msg("failed to insert transcription job")
		WriteError(w, http.StatusInternalServerError, "failed to create transcription job")
		return
	}

	metrics.TranscriptionsSubmittedTotal.Inc()
	h.log.Info().
		Str("user_id", userID).
		Str("job_id", job.ID.String()).
		Str("transcript_id", tr.ID).
		Int("credits_needed", needed).
		Msg("transcription submitted")

	WriteJSON(w, http.StatusOK, map[string]any{
		"transcriptionId": job.ID,
		"status":          job.Status,
		"creditsUsed":     needed,
	})
}

// transcriptResponse is the flattened payload for a single transcription.
// Utterances and sentiment come from the live vendor transcript when one was
// fetched; sentiment is echoed but never stored.
type transcriptResponse struct {
	ID             uuid.UUID                    `json:"id"`
	Status         string                       `json:"status"`
	Text           string                       `json:"text,omitempty"`
	FileName       string                       `json:"file_name"`
	Duration       float64                      `json:"duration"`
	WordCount      int                          `json:"word_count"`
	UtteranceCount int                          `json:"utterance_count"`
	SpeakerCount   int                          `json:"speaker_count"`
	ErrorMessage   string                       `json:"error_message,omitempty"`
	CreatedAt      time.Time                    `json:"created_at"`
	CompletedAt    *time.Time                   `json:"completed_at,omitempty"`
	Utterances     []assemblyai.Utterance       `json:"utterances,omitempty"`
	Sentiment      []assemblyai.SentimentResult `json:"sentiment_analysis_results,omitempty"`
}

func (h *TranscriptionsHandler) GetTranscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := PathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid transcription id")
		return
	}

	job, tr, err := h.syncer.Sync(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, reconcile.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "transcription not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", id.String()).Msg("transcription sync failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := transcriptResponse{
		ID:             job.ID,
		Status:         job.Status,
		Text:           job.Text,
		FileName:       job.FileName,
		Duration:       job.Duration,
		WordCount:      job.WordCount,
		UtteranceCount: job.UtteranceCount,
		SpeakerCount:   job.SpeakerCount,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt,
		CompletedAt:    job.CompletedAt,
	}
	if tr != nil {
		resp.Utterances = tr.Utterances
		resp.Sentiment = tr.SentimentAnalysisResults
	}

	WriteJSON(w, http.StatusOK, resp)
}

func (h *TranscriptionsHandler) ListTranscriptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, err := h.store.ListTranscriptionJobs(r.Context(), userID, p.Limit, p.Offset)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to list transcriptions")
		WriteError(w, http.StatusInternalServerError, "failed to list transcriptions")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"transcriptions": jobs,
		"limit":          p.Limit,
		"offset":         p.Offset,
	})
}
