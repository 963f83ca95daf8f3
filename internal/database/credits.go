package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreditAccount is a user's prepaid credit balance.
type CreditAccount struct {
	UserID         string    `json:"user_id"`
	CreditsBalance int       `json:"credits_balance"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreditUsageRecord is one append-only deduction audit entry.
type CreditUsageRecord struct {
	ID              uuid.UUID  `json:"id"`
	UserID          string     `json:"user_id"`
	TranscriptionID *uuid.UUID `json:"transcription_id,omitempty"`
	CreditsUsed     int        `json:"credits_used"`
	Description     string     `json:"description"`
	CreatedAt       time.Time  `json:"created_at"`
}

// GetOrCreateCreditAccount returns the user's credit account, creating a
// zero-balance row on first access.
func (db *DB) GetOrCreateCreditAccount(ctx context.Context, userID string) (*CreditAccount, error) {
	var a CreditAccount
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO user_credits (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, credits_balance, updated_at
	`, userID).Scan(&a.UserID, &a.CreditsBalance, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get or create credit account: %w", err)
	}
	return &a, nil
}

// GetCreditBalance returns the user's balance. A missing account reads as 0.
func (db *DB) GetCreditBalance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := db.Pool.QueryRow(ctx, `
		SELECT COALESCE(
			(SELECT credits_balance FROM user_credits WHERE user_id = $1), 0)
	`, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("get credit balance: %w", err)
	}
	return balance, nil
}

// DeductCredits writes one usage record and clamps the balance at 0, in a
// single transaction. The clamp happens inside the UPDATE so concurrent
// deductions for the same user can never drive the balance negative.
// Returns the balance after the deduction.
func (db *DB) DeductCredits(ctx context.Context, userID string, amount int, transcriptionID *uuid.UUID, description string) (int, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO credit_usage (id, user_id, transcription_id, credits_used, description)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), userID, transcriptionID, amount, description)
	if err != nil {
		return 0, fmt.Errorf("insert usage record: %w", err)
	}

	var balance int
	err = tx.QueryRow(ctx, `
		INSERT INTO user_credits (user_id, credits_balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO UPDATE SET
			credits_balance = GREATEST(0, user_credits.credits_balance - $2),
			updated_at = now()
		RETURNING credits_balance
	`, userID, amount).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("deduct balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return balance, nil
}

// CreditBalance adds a top-up to the user's balance and returns the new
// balance. Creates the account if missing.
func (db *DB) CreditBalance(ctx context.Context, userID string, amount int) (int, error) {
	var balance int
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO user_credits (user_id, credits_balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			credits_balance = user_credits.credits_balance + $2,
			updated_at = now()
		RETURNING credits_balance
	`, userID, amount).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return balance, nil
}

// HasUsageForTranscription reports whether a usage record already exists for
// the given transcription. Used to keep terminal reconciliation idempotent.
func (db *DB) HasUsageForTranscription(ctx context.Context, transcriptionID uuid.UUID) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM credit_usage WHERE transcription_id = $1)
	`, transcriptionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check usage record: %w", err)
	}
	return exists, nil
}
