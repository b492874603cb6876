package memory

import (
	"context"
	"sync"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Token // keyed by api_name
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		data: make(map[string]*domain.Token),
	}
}

// Get retrieves the token for an API profile. Returns ErrNotFound if not exists.
func (s *TokenStore) Get(_ context.Context, apiName string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[apiName]
	if !ok {
		return nil, storage.ErrNotFound
	}
	tokenCopy := *t
	return &tokenCopy, nil
}

// Upsert creates or replaces the token for its APIName.
func (s *TokenStore) Upsert(_ context.Context, t *domain.Token) error {
	if t == nil || t.APIName == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tokenCopy := *t
	s.data[t.APIName] = &tokenCopy
	return nil
}

var _ storage.TokenStore = (*TokenStore)(nil)
