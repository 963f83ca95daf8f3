package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Integration is a per-user connection to an external storage provider.
type Integration struct {
	ID          uuid.UUID       `json:"id"`
	UserID      string          `json:"user_id"`
	Provider    string          `json:"provider"`
	Status      string          `json:"status"` // connected, disconnected
	Settings    json.RawMessage `json:"settings"`
	ConnectedAt time.Time       `json:"connected_at"`
	LastSync    *time.Time      `json:"last_sync,omitempty"`
}

const integrationColumns = `id, user_id, provider, status, settings, connected_at, last_sync`

func scanIntegration(row interface{ Scan(...any) error }) (*Integration, error) {
	var i Integration
	err := row.Scan(&i.ID, &i.UserID, &i.Provider, &i.Status, &i.Settings, &i.ConnectedAt, &i.LastSync)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// UpsertIntegration creates or replaces the user's integration for a
// provider. Used by the OAuth callback.
func (db *DB) UpsertIntegration(ctx context.Context, userID, provider string, settings json.RawMessage) (*Integration, error) {
	return scanIntegration(db.Pool.QueryRow(ctx, `
		INSERT INTO integrations (id, user_id, provider, status, settings)
		VALUES ($1, $2, $3, 'connected', $4)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			status = 'connected',
			settings = EXCLUDED.settings,
			connected_at = now()
		RETURNING `+integrationColumns,
		uuid.New(), userID, provider, settings))
}

// GetIntegration returns the user's integration for a provider.
func (db *DB) GetIntegration(ctx context.Context, userID, provider string) (*Integration, error) {
	return scanIntegration(db.Pool.QueryRow(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE user_id = $1 AND provider = $2`,
		userID, provider))
}

// UpdateIntegrationSettings replaces the settings blob (e.g. after a token
// refresh).
func (db *DB) UpdateIntegrationSettings(ctx context.Context, id uuid.UUID, settings json.RawMessage) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE integrations SET settings = $2 WHERE id = $1`, id, settings)
	if err != nil {
		return fmt.Errorf("update integration settings: %w", err)
	}
	return nil
}

// TouchIntegrationSync records a successful sync against the provider.
func (db *DB) TouchIntegrationSync(ctx context.Context, id uuid.UUID) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE integrations SET last_sync = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch integration sync: %w", err)
	}
	return nil
}

// DisconnectIntegration marks the integration disconnected and clears its
// stored tokens.
func (db *DB) DisconnectIntegration(ctx context.Context, userID, provider string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE integrations SET status = 'disconnected', settings = '{}'::jsonb
		WHERE user_id = $1 AND provider = $2
	`, userID, provider)
	if err != nil {
		return fmt.Errorf("disconnect integration: %w", err)
	}
	return nil
}
