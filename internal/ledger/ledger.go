// Package ledger implements the prepaid credit bookkeeping: duration-based
// pricing, balance checks, and atomic deductions with an append-only usage
// trail.
package ledger

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SecondsPerCredit is how much media one credit buys.
const SecondsPerCredit = 360

// ErrInsufficientCredits is returned when a check-and-deduct fails the check.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Store is the persistence surface the ledger needs.
type Store interface {
	GetCreditBalance(ctx context.Context, userID string) (int, error)
	DeductCredits(ctx context.Context, userID string, amount int, transcriptionID *uuid.UUID, description string) (int, error)
	CreditBalance(ctx context.Context, userID string, amount int) (int, error)
}

// Cache is an optional read-through balance cache. Writes invalidate.
type Cache interface {
	GetBalance(ctx context.Context, userID string) (int, bool)
	SetBalance(ctx context.Context, userID string, balance int)
	Invalidate(ctx context.Context, userID string)
}

type Ledger struct {
	store Store
	cache Cache // may be nil
	log   zerolog.Logger
}

func New(store Store, cache Cache, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, cache: cache, log: log}
}

// CreditsNeeded returns the charge for a media duration: one credit per
// started 360-second unit, minimum 1 even for zero or unknown duration.
func CreditsNeeded(durationSeconds float64) int {
	if durationSeconds <= 0 {
		return 1
	}
	n := int(math.Ceil(durationSeconds / SecondsPerCredit))
	if n < 1 {
		return 1
	}
	return n
}

// Balance returns the user's current balance. A missing account reads as 0.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	if l.cache != nil {
		if b, ok := l.cache.GetBalance(ctx, userID); ok {
			return b, nil
		}
	}
	b, err := l.store.GetCreditBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	if l.cache != nil {
		l.cache.SetBalance(ctx, userID, b)
	}
	return b, nil
}

// HasSufficientCredits reports whether the user can afford a charge.
func (l *Ledger) HasSufficientCredits(ctx context.Context, userID string, needed int) (bool, error) {
	b, err := l.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return b >= needed, nil
}

// Deduct writes one usage record and subtracts amount from the balance,
// clamping at 0. The store performs both writes in a single transaction.
// Returns the balance after the deduction.
func (l *Ledger) Deduct(ctx context.Context, userID string, amount int, transcriptionID *uuid.UUID, description string) (int, error) {
	balance, err := l.store.DeductCredits(ctx, userID, amount, transcriptionID, description)
	if err != nil {
		return 0, err
	}
	if l.cache != nil {
		l.cache.Invalidate(ctx, userID)
	}
	l.log.Info().
		Str("user_id", userID).
		Int("credits", amount).
		Int("balance", balance).
		Msg("credits deducted")
	return balance, nil
}

// Credit adds a top-up (payment webhook path) and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int) (int, error) {
	balance, err := l.store.CreditBalance(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	if l.cache != nil {
		l.cache.Invalidate(ctx, userID)
	}
	l.log.Info().
		Str("user_id", userID).
		Int("credits", amount).
		Int("balance", balance).
		Msg("credits added")
	return balance, nil
}
