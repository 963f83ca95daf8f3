package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestCreditsNeeded(t *testing.T) {
	tests := []struct {
		seconds float64
		want    int
	}{
		{0, 1},
		{-5, 1},
		{1, 1},
		{359, 1},
		{360, 1},
		{361, 2},
		{600, 2},
		{720, 2},
		{721, 3},
		{3600, 10},
	}
	for _, tt := range tests {
		if got := CreditsNeeded(tt.seconds); got != tt.want {
			t.Errorf("CreditsNeeded(%v) = %d, want %d", tt.seconds, got, tt.want)
		}
	}
}

// fakeStore is an in-memory Store with the same clamp-at-zero semantics as
// the SQL implementation.
type fakeStore struct {
	balances map[string]int
	usage    []int // credits_used per record, in insert order
	failNext error
}

func newFakeStore() *fakeStore {
	return &fakeStore{balances: make(map[string]int)}
}

func (s *fakeStore) GetCreditBalance(_ context.Context, userID string) (int, error) {
	if s.failNext != nil {
		return 0, s.failNext
	}
	return s.balances[userID], nil
}

func (s *fakeStore) DeductCredits(_ context.Context, userID string, amount int, _ *uuid.UUID, _ string) (int, error) {
	if s.failNext != nil {
		return 0, s.failNext
	}
	s.usage = append(s.usage, amount)
	b := s.balances[userID] - amount
	if b < 0 {
		b = 0
	}
	s.balances[userID] = b
	return b, nil
}

func (s *fakeStore) CreditBalance(_ context.Context, userID string, amount int) (int, error) {
	if s.failNext != nil {
		return 0, s.failNext
	}
	s.balances[userID] += amount
	return s.balances[userID], nil
}

func newTestLedger(store *fakeStore) *Ledger {
	return New(store, nil, zerolog.Nop())
}

func TestHasSufficientCredits(t *testing.T) {
	store := newFakeStore()
	store.balances["alice"] = 5
	l := newTestLedger(store)
	ctx := context.Background()

	ok, err := l.HasSufficientCredits(ctx, "alice", 5)
	if err != nil || !ok {
		t.Errorf("alice with 5 should afford 5 (ok=%v err=%v)", ok, err)
	}
	ok, _ = l.HasSufficientCredits(ctx, "alice", 6)
	if ok {
		t.Error("alice with 5 should not afford 6")
	}

	// Missing account reads as balance 0
	ok, err = l.HasSufficientCredits(ctx, "nobody", 1)
	if err != nil {
		t.Fatalf("HasSufficientCredits: %v", err)
	}
	if ok {
		t.Error("missing account should be insufficient")
	}
}

func TestDeductClampsAtZero(t *testing.T) {
	store := newFakeStore()
	store.balances["bob"] = 3
	l := newTestLedger(store)
	ctx := context.Background()

	balance, err := l.Deduct(ctx, "bob", 10, nil, "overdraft attempt")
	if err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance = %d, want 0 (clamped)", balance)
	}
	if len(store.usage) != 1 || store.usage[0] != 10 {
		t.Errorf("usage records = %v, want one record of 10", store.usage)
	}
}

func TestDeductAndCredit(t *testing.T) {
	store := newFakeStore()
	l := newTestLedger(store)
	ctx := context.Background()

	balance, err := l.Credit(ctx, "carol", 5)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if balance != 5 {
		t.Errorf("balance after credit = %d, want 5", balance)
	}

	txID := uuid.New()
	balance, err = l.Deduct(ctx, "carol", 2, &txID, "600s transcription")
	if err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	if balance != 3 {
		t.Errorf("balance after deduct = %d, want 3", balance)
	}
}

func TestEndToEndCharge(t *testing.T) {
	// User with balance 5, 600-second file: needs 2, ends at 3.
	store := newFakeStore()
	store.balances["dave"] = 5
	l := newTestLedger(store)
	ctx := context.Background()

	needed := CreditsNeeded(600)
	if needed != 2 {
		t.Fatalf("CreditsNeeded(600) = %d, want 2", needed)
	}
	ok, err := l.HasSufficientCredits(ctx, "dave", needed)
	if err != nil || !ok {
		t.Fatalf("check failed (ok=%v err=%v)", ok, err)
	}
	balance, err := l.Deduct(ctx, "dave", needed, nil, "transcription")
	if err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	if balance != 3 {
		t.Errorf("final balance = %d, want 3", balance)
	}
}

func TestZeroBalanceRejected(t *testing.T) {
	store := newFakeStore()
	l := newTestLedger(store)

	needed := CreditsNeeded(1)
	if needed < 1 {
		t.Fatalf("CreditsNeeded(1) = %d, want >= 1", needed)
	}
	ok, err := l.HasSufficientCredits(context.Background(), "eve", needed)
	if err != nil {
		t.Fatalf("HasSufficientCredits: %v", err)
	}
	if ok {
		t.Error("zero-balance user should be rejected")
	}
}
