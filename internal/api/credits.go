package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/2cloudlabs/yolo-transcript/internal/database"
	"github.com/2cloudlabs/yolo-transcript/internal/ledger"
	"github.com/2cloudlabs/yolo-transcript/internal/metrics"
)

// CreditAccounts is the slice of the database the credits handler needs.
type CreditAccounts interface {
	GetOrCreateCreditAccount(ctx context.Context, userID string) (*database.CreditAccount, error)
}

type CreditsHandler struct {
	accounts CreditAccounts
	ledger   *ledger.Ledger
	log      zerolog.Logger
}

func NewCreditsHandler(accounts CreditAccounts, l *ledger.Ledger, log zerolog.Logger) *CreditsHandler {
	return &CreditsHandler{accounts: accounts, ledger: l, log: log.With().Str("component", "credits_api").Logger()}
}

func (h *CreditsHandler) Routes(r chi.Router) {
	r.Get("/credits", h.GetBalance)
	r.Post("/credits", h.Action)
}

func (h *CreditsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	acct, err := h.accounts.GetOrCreateCreditAccount(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to load credit account")
		WriteError(w, http.StatusInternalServerError, "failed to load credit account")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"credits_balance": acct.CreditsBalance})
}

type creditActionRequest struct {
	Action            string    `json:"action"`
	DurationInSeconds float64   `json:"durationInSeconds"`
	TranscriptionID   uuid.UUID `json:"transcriptionId"`
}

func (h *CreditsHandler) Action(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req creditActionRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case "check":
		needed := ledger.CreditsNeeded(req.DurationInSeconds)
		enough, err := h.ledger.HasSufficientCredits(r.Context(), userID, needed)
		if err != nil {
			h.log.Error().Err(err).Str("user_id", userID).Msg("credit check failed")
			WriteError(w, http.StatusInternalServerError, "credit check failed")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"hasEnoughCredits": enough,
			"creditsNeeded":    needed,
		})

	case "deduct":
		needed := ledger.CreditsNeeded(req.DurationInSeconds)
		var tid *uuid.UUID
		if req.TranscriptionID != uuid.Nil {
			tid = &req.TranscriptionID
		}
		if _, err := h.ledger.Deduct(r.Context(), userID, needed, tid, "manual deduction"); err != nil {
			h.log.Error().Err(err).Str("user_id", userID).Msg("credit deduction failed")
			WriteError(w, http.StatusInternalServerError, "credit deduction failed")
			return
		}
		metrics.CreditsDeductedTotal.Add(float64(needed))
		WriteJSON(w, http.StatusOK, map[string]any{
			"success":         true,
			"creditsDeducted": needed,
		})

	case "history":
		// Usage history is intentionally disabled.
		WriteJSON(w, http.StatusOK, map[string]any{
			"transactions": []any{},
			"usage":        []any{},
		})

	default:
		WriteError(w, http.StatusBadRequest, "unknown action")
	}
}
