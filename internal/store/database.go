package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"salesforce-lead-backend/internal/db"
	"salesforce-lead-backend/internal/types"
)

// DatabaseStore stores the Salesforce token set in PostgreSQL, one row per
// connected app (keyed by OAuth client id).
type DatabaseStore struct {
	db       *db.DB
	clientID string
}

func NewDatabaseStore(database *db.DB, clientID string) *DatabaseStore {
	return &DatabaseStore{db: database, clientID: clientID}
}

// Write saves or replaces the token set for the connected app.
func (ds *DatabaseStore) Write(ctx context.Context, tok *types.TokenSet) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("access_token is required")
	}
	if ds.clientID == "" {
		return fmt.Errorf("client_id is required")
	}

	query := `
		INSERT INTO salesforce_tokens (client_id, access_token, refresh_token, instance_url, token_type, issued_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (client_id)
		DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), salesforce_tokens.refresh_token),
			instance_url = EXCLUDED.instance_url,
			token_type = EXCLUDED.token_type,
			issued_at = EXCLUDED.issued_at,
			updated_at = NOW()
	`
	_, err := ds.db.ExecContext(ctx, query, ds.clientID, tok.AccessToken, tok.RefreshToken, tok.InstanceURL, tok.TokenType, tok.IssuedAt)
	if err != nil {
		return fmt.Errorf("failed to save salesforce token: %w", err)
	}
	return nil
}

// Read returns the stored token set, or nil when none has been saved.
func (ds *DatabaseStore) Read(ctx context.Context) (*types.TokenSet, error) {
	var tok types.TokenSet
	query := `
		SELECT access_token, refresh_token, instance_url, token_type, issued_at
		FROM salesforce_tokens
		WHERE client_id = $1
	`
	err := ds.db.QueryRowContext(ctx, query, ds.clientID).Scan(
		&tok.AccessToken,
		&tok.RefreshToken,
		&tok.InstanceURL,
		&tok.TokenType,
		&tok.IssuedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get salesforce token: %w", err)
	}
	return &tok, nil
}

// Clear removes the stored token set.
func (ds *DatabaseStore) Clear(ctx context.Context) error {
	if _, err := ds.db.ExecContext(ctx, `DELETE FROM salesforce_tokens WHERE client_id = $1`, ds.clientID); err != nil {
		return fmt.Errorf("failed to delete salesforce token: %w", err)
	}
	return nil
}
