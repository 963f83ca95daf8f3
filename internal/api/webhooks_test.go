package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/2cloudlabs/yolo-transcript/internal/ledger"
	"github.com/2cloudlabs/yolo-transcript/internal/paddle"
)

// balanceStore is an in-memory ledger.Store for handler tests.
type balanceStore struct {
	balances map[string]int
	deducted []int
}

func newBalanceStore() *balanceStore {
	return &balanceStore{balances: make(map[string]int)}
}

func (s *balanceStore) GetCreditBalance(ctx context.Context, userID string) (int, error) {
	return s.balances[userID], nil
}

func (s *balanceStore) DeductCredits(ctx context.Context, userID string, amount int, transcriptionID *uuid.UUID, description string) (int, error) {
	b := s.balances[userID] - amount
	if b < 0 {
		b = 0
	}
	s.balances[userID] = b
	s.deducted = append(s.deducted, amount)
	return b, nil
}

func (s *balanceStore) CreditBalance(ctx context.Context, userID string, amount int) (int, error) {
	s.balances[userID] += amount
	return s.balances[userID], nil
}

func signedWebhookRequest(secret, body string) *http.Request {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	req := httptest.NewRequest("POST", "/api/webhook/paddle", strings.NewReader(body))
	req.Header.Set("Paddle-Signature", paddle.Sign(secret, ts, []byte(body)))
	return req
}

func TestPaddleWebhook(t *testing.T) {
	const secret = "whsec_test"

	t.Run("completed_transaction_credits_user", func(t *testing.T) {
		store := newBalanceStore()
		h := NewWebhooksHandler(secret, ledger.New(store, nil, zerolog.Nop()), zerolog.Nop())

		body := `{"event_id":"evt_1","event_type":"transaction.completed","data":{"id":"txn_1","status":"completed","custom_data":{"user_id":"user-1","credits":10}}}`
		rec := httptest.NewRecorder()
		h.Paddle(rec, signedWebhookRequest(secret, body))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if store.balances["user-1"] != 10 {
			t.Errorf("expected balance 10, got %d", store.balances["user-1"])
		}
	})

	t.Run("bad_signature_rejected", func(t *testing.T) {
		store := newBalanceStore()
		h := NewWebhooksHandler(secret, ledger.New(store, nil, zerolog.Nop()), zerolog.Nop())

		body := `{"event_type":"transaction.completed","data":{"custom_data":{"user_id":"user-1","credits":10}}}`
		req := httptest.NewRequest("POST", "/api/webhook/paddle", strings.NewReader(body))
		req.Header.Set("Paddle-Signature", "ts=123;h1=deadbeef")
		rec := httptest.NewRecorder()
		h.Paddle(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if store.balances["user-1"] != 0 {
			t.Error("balance must not change on a rejected signature")
		}
	})

	t.Run("missing_signature_rejected", func(t *testing.T) {
		h := NewWebhooksHandler(secret, ledger.New(newBalanceStore(), nil, zerolog.Nop()), zerolog.Nop())
		req := httptest.NewRequest("POST", "/api/webhook/paddle", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.Paddle(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("other_event_types_acknowledged_without_credit", func(t *testing.T) {
		store := newBalanceStore()
		h := NewWebhooksHandler(secret, ledger.New(store, nil, zerolog.Nop()), zerolog.Nop())

		body := `{"event_type":"subscription.created","data":{"custom_data":{"user_id":"user-1","credits":10}}}`
		rec := httptest.NewRecorder()
		h.Paddle(rec, signedWebhookRequest(secret, body))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if store.balances["user-1"] != 0 {
			t.Error("non-completed events must not credit")
		}
	})

	t.Run("completed_without_user_rejected", func(t *testing.T) {
		h := NewWebhooksHandler(secret, ledger.New(newBalanceStore(), nil, zerolog.Nop()), zerolog.Nop())
		body := `{"event_type":"transaction.completed","data":{"custom_data":{"credits":10}}}`
		rec := httptest.NewRecorder()
		h.Paddle(rec, signedWebhookRequest(secret, body))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestWebhookTestEndpoints(t *testing.T) {
	h := NewWebhooksHandler("whsec_test", ledger.New(newBalanceStore(), nil, zerolog.Nop()), zerolog.Nop())

	t.Run("test_event_round_trips", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/webhook/test-event", strings.NewReader(`{"hello":"world"}`))
		rec := httptest.NewRecorder()
		h.TestEvent(rec, req)

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("response is not valid JSON: %v", err)
		}
		if body["verified"] != true {
			t.Errorf("self-signed event must verify, got %v", body)
		}
		sig, _ := body["signature"].(string)
		if !strings.HasPrefix(sig, "ts=") || !strings.Contains(sig, ";h1=") {
			t.Errorf("unexpected signature format: %q", sig)
		}
	})

	t.Run("test_secret_reports_configured", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.TestSecret(rec, httptest.NewRequest("GET", "/api/webhook/test-secret", nil))

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("response is not valid JSON: %v", err)
		}
		if body["configured"] != true {
			t.Errorf("expected configured=true, got %v", body)
		}
	})
}
