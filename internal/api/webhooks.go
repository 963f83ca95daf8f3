package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/2cloudlabs/yolo-transcript/internal/ledger"
	"github.com/2cloudlabs/yolo-transcript/internal/metrics"
	"github.com/2cloudlabs/yolo-transcript/internal/paddle"
)

const maxWebhookBody = 1 << 20 // 1 MiB

type WebhooksHandler struct {
	secret string
	ledger *ledger.Ledger
	log    zerolog.Logger
}

func NewWebhooksHandler(secret string, l *ledger.Ledger, log zerolog.Logger) *WebhooksHandler {
	return &WebhooksHandler{secret: secret, ledger: l, log: log.With().Str("component", "webhooks_api").Logger()}
}

func (h *WebhooksHandler) Routes(r chi.Router) {
	r.Post("/webhook/paddle", h.Paddle)
	r.Post("/webhook/test-event", h.TestEvent)
	r.Get("/webhook/test-secret", h.TestSecret)
}

// Paddle handles the payment processor's signed callbacks. A verified
// transaction.completed event credits the purchased amount.
func (h *WebhooksHandler) Paddle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := paddle.Verify(h.secret, r.Header.Get("Paddle-Signature"), body); err != nil {
		h.log.Warn().Err(err).Msg("webhook signature rejected")
		WriteError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	event, err := paddle.ParseEvent(body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid event payload")
		return
	}
	metrics.WebhookEventsTotal.WithLabelValues(event.EventType).Inc()

	if event.EventType != paddle.EventTransactionCompleted {
		h.log.Debug().Str("event_type", event.EventType).Msg("webhook event ignored")
		WriteJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	custom := event.Data.CustomData
	if custom.UserID == "" || custom.Credits <= 0 {
		WriteError(w, http.StatusBadRequest, "event has no user or credit amount")
		return
	}

	balance, err := h.ledger.Credit(r.Context(), custom.UserID, custom.Credits)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", custom.UserID).Msg("failed to credit purchase")
		WriteError(w, http.StatusInternalServerError, "failed to credit purchase")
		return
	}
	metrics.CreditsPurchasedTotal.Add(float64(custom.Credits))

	h.log.Info().
		Str("event_id", event.EventID).
		Str("transaction_id", event.Data.ID).
		Str("user_id", custom.UserID).
		Int("credits", custom.Credits).
		Int("balance", balance).
		Msg("purchase credited")

	WriteJSON(w, http.StatusOK, map[string]any{"received": true, "credits_balance": balance})
}

// TestEvent simulates a signed callback: it signs the posted body with the
// configured secret and reports whether the verifier accepts it.
func (h *WebhooksHandler) TestEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	ts := fmt.Sprintf("%d", time.Now().Unix())
	header := paddle.Sign(h.secret, ts, body)
	verifyErr := paddle.Verify(h.secret, header, body)

	resp := map[string]any{
		"signature": header,
		"timestamp": ts,
		"verified":  verifyErr == nil,
	}
	if verifyErr != nil {
		resp["error"] = verifyErr.Error()
	}
	WriteJSON(w, http.StatusOK, resp)
}

// TestSecret reports whether a webhook secret is configured, without
// revealing it.
func (h *WebhooksHandler) TestSecret(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"configured":    h.secret != "",
		"secret_length": len(h.secret),
	})
}
