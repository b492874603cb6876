package memory

import (
	"context"
	"sort"
	"sync"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// StagingStore is an in-memory implementation of storage.StagingStore.
type StagingStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.RawTick // keyed by market_date
}

// NewStagingStore creates a new in-memory staging store.
func NewStagingStore() *StagingStore {
	return &StagingStore{
		data: make(map[string][]*domain.RawTick),
	}
}

// InsertBulk appends raw ticks for a market date.
func (s *StagingStore) InsertBulk(_ context.Context, marketDate string, ticks []*domain.RawTick) error {
	if marketDate == "" {
		return storage.ErrInvalidInput
	}
	if len(ticks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range ticks {
		if t == nil || t.Symbol == "" {
			return storage.ErrInvalidInput
		}
		tickCopy := *t
		s.data[marketDate] = append(s.data[marketDate], &tickCopy)
	}
	return nil
}

// GetByDate retrieves all staged ticks for a date, ordered by quote time ASC.
func (s *StagingStore) GetByDate(_ context.Context, marketDate string) ([]*domain.RawTick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RawTick
	for _, t := range s.data[marketDate] {
		tickCopy := *t
		result = append(result, &tickCopy)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].QuoteTimeMs < result[j].QuoteTimeMs
	})

	return result, nil
}

// Clear removes all staged ticks for a date.
func (s *StagingStore) Clear(_ context.Context, marketDate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, marketDate)
	return nil
}

var _ storage.StagingStore = (*StagingStore)(nil)
