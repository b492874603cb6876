package memory

import (
	"context"
	"fmt"
	"sync"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// SessionWindowStore is an in-memory implementation of storage.SessionWindowStore.
type SessionWindowStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SessionWindow // keyed by (market_date, session_type)
}

// NewSessionWindowStore creates a new in-memory session window store.
func NewSessionWindowStore() *SessionWindowStore {
	return &SessionWindowStore{
		data: make(map[string]*domain.SessionWindow),
	}
}

func windowKey(marketDate, sessionType string) string {
	return fmt.Sprintf("%s|%s", marketDate, sessionType)
}

// GetWindow retrieves the window for (marketDate, sessionType).
// Returns ErrNotFound if the calendar has no row for that key.
func (s *SessionWindowStore) GetWindow(_ context.Context, marketDate, sessionType string) (*domain.SessionWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.data[windowKey(marketDate, sessionType)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	windowCopy := *w
	return &windowCopy, nil
}

// Upsert creates or replaces a window.
func (s *SessionWindowStore) Upsert(_ context.Context, w *domain.SessionWindow) error {
	if w == nil || w.MarketDate == "" || w.SessionType == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	windowCopy := *w
	s.data[windowKey(w.MarketDate, w.SessionType)] = &windowCopy
	return nil
}

var _ storage.SessionWindowStore = (*SessionWindowStore)(nil)
