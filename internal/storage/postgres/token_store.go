package postgres

import (
	"context"
	"fmt"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Get retrieves the token for an API profile. Returns ErrNotFound if not exists.
func (s *TokenStore) Get(ctx context.Context, apiName string) (*domain.Token, error) {
	query := `
		SELECT api_name, access_token, refresh_token, access_expiry, refresh_expiry, updated_at
		FROM tokens
		WHERE api_name = $1
	`

	var t domain.Token
	err := s.pool.QueryRow(ctx, query, apiName).Scan(
		&t.APIName, &t.AccessToken, &t.RefreshToken,
		&t.AccessExpiry, &t.RefreshExpiry, &t.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &t, nil
}

// Upsert creates or replaces the token for its APIName.
func (s *TokenStore) Upsert(ctx context.Context, t *domain.Token) error {
	if t == nil || t.APIName == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tokens (api_name, access_token, refresh_token, access_expiry, refresh_expiry, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (api_name) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			access_expiry = EXCLUDED.access_expiry,
			refresh_expiry = EXCLUDED.refresh_expiry,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		t.APIName, t.AccessToken, t.RefreshToken,
		t.AccessExpiry, t.RefreshExpiry, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}
