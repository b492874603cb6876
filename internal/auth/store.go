// Package auth owns credential state for named API profiles and keeps
// access tokens fresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// ErrRefreshFailed is returned when a refresh call fails. The previous
// token is retained as stale; callers decide whether to fail fast or
// degrade.
var ErrRefreshFailed = errors.New("token refresh failed")

// RefreshResult is the authorization endpoint's answer to a refresh call.
type RefreshResult struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        time.Duration
	RefreshExpiresIn time.Duration
}

// RefreshClient performs the refresh call against the authorization
// endpoint.
type RefreshClient interface {
	RefreshToken(ctx context.Context, refreshToken string) (*RefreshResult, error)
}

// Store serves tokens per API profile and transparently refreshes them
// when their remaining access life drops below the threshold. Refreshes
// for the same profile are single-flight: concurrent callers observe
// exactly one in-flight refresh call.
type Store struct {
	tokens    storage.TokenStore
	client    RefreshClient
	threshold time.Duration
	group     singleflight.Group
	now       func() time.Time
	log       zerolog.Logger
}

// NewStore creates a token store backed by the given persistent store
// and refresh client.
func NewStore(tokens storage.TokenStore, client RefreshClient, threshold time.Duration, log zerolog.Logger) *Store {
	return &Store{
		tokens:    tokens,
		client:    client,
		threshold: threshold,
		now:       time.Now,
		log:       log.With().Str("component", "auth").Logger(),
	}
}

// Get retrieves the stored token for a profile without refreshing it.
// Returns storage.ErrNotFound if the profile was never authorized.
func (s *Store) Get(ctx context.Context, apiName string) (*domain.Token, error) {
	return s.tokens.Get(ctx, apiName)
}

// EnsureFresh returns a token whose remaining access life is at least
// the refresh threshold, performing a refresh call if needed.
func (s *Store) EnsureFresh(ctx context.Context, apiName string) (*domain.Token, error) {
	token, err := s.tokens.Get(ctx, apiName)
	if err != nil {
		return nil, err
	}
	if !token.NearExpiry(s.now(), s.threshold) {
		return token, nil
	}

	v, err, _ := s.group.Do(apiName, func() (interface{}, error) {
		return s.refresh(ctx, apiName, false)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Token), nil
}

// ForceRefresh refreshes a profile's token regardless of its remaining
// life. Used when the upstream rejects a token that still looks fresh.
func (s *Store) ForceRefresh(ctx context.Context, apiName string) (*domain.Token, error) {
	v, err, _ := s.group.Do(apiName, func() (interface{}, error) {
		return s.refresh(ctx, apiName, true)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Token), nil
}

// refresh re-reads the token and refreshes it if still near expiry.
// The re-read covers callers that queued behind a completed flight.
func (s *Store) refresh(ctx context.Context, apiName string, force bool) (*domain.Token, error) {
	token, err := s.tokens.Get(ctx, apiName)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !force && !token.NearExpiry(now, s.threshold) {
		return token, nil
	}
	if token.RefreshExpired(now) {
		return nil, fmt.Errorf("%w: refresh token for %s expired, re-authorization required", ErrRefreshFailed, apiName)
	}

	result, err := s.client.RefreshToken(ctx, token.RefreshToken)
	if err != nil {
		s.log.Error().Err(err).Str("api_name", apiName).Msg("refresh call failed, keeping stale token")
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	updated := &domain.Token{
		APIName:       apiName,
		AccessToken:   result.AccessToken,
		RefreshToken:  result.RefreshToken,
		AccessExpiry:  now.Add(result.ExpiresIn),
		RefreshExpiry: token.RefreshExpiry,
		UpdatedAt:     now,
	}
	// Some authorization servers rotate the refresh token, some echo
	// nothing back. Keep the old one unless a new one arrived.
	if updated.RefreshToken == "" {
		updated.RefreshToken = token.RefreshToken
	}
	if result.RefreshExpiresIn > 0 {
		updated.RefreshExpiry = now.Add(result.RefreshExpiresIn)
	}

	if err := s.tokens.Upsert(ctx, updated); err != nil {
		return nil, fmt.Errorf("persist refreshed token for %s: %w", apiName, err)
	}

	s.log.Info().
		Str("api_name", apiName).
		Time("access_expiry", updated.AccessExpiry).
		Msg("token refreshed")

	return updated, nil
}
