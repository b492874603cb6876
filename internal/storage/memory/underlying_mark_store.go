package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// UnderlyingMarkStore is an in-memory implementation of storage.UnderlyingMarkStore.
type UnderlyingMarkStore struct {
	mu   sync.RWMutex
	data map[string]*domain.UnderlyingMark // keyed by (symbol, timestamp)
}

// NewUnderlyingMarkStore creates a new in-memory underlying mark store.
func NewUnderlyingMarkStore() *UnderlyingMarkStore {
	return &UnderlyingMarkStore{
		data: make(map[string]*domain.UnderlyingMark),
	}
}

func underlyingMarkKey(symbol string, ts time.Time) string {
	return fmt.Sprintf("%s|%d", symbol, ts.UnixMilli())
}

// InsertMissing adds marks with unseen keys, skipping the rest.
// Returns the number inserted.
func (s *UnderlyingMarkStore) InsertMissing(_ context.Context, marks []*domain.UnderlyingMark) (int, error) {
	if len(marks) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, m := range marks {
		if m == nil || m.Symbol == "" {
			return inserted, storage.ErrInvalidInput
		}
		key := underlyingMarkKey(m.Symbol, m.Timestamp)
		if _, exists := s.data[key]; exists {
			continue
		}
		markCopy := *m
		s.data[key] = &markCopy
		inserted++
	}
	return inserted, nil
}

// GetSeries retrieves marks for a symbol within [start, end] (inclusive).
func (s *UnderlyingMarkStore) GetSeries(_ context.Context, symbol string, start, end time.Time) ([]*domain.UnderlyingMark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.UnderlyingMark
	for _, m := range s.data {
		if m.Symbol == symbol && !m.Timestamp.Before(start) && !m.Timestamp.After(end) {
			markCopy := *m
			result = append(result, &markCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

// GetPriceRange returns the min and max price for a symbol within [start, end].
// Returns ErrNotFound when no marks exist in range.
func (s *UnderlyingMarkStore) GetPriceRange(_ context.Context, symbol string, start, end time.Time) (float64, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		low, high float64
		found     bool
	)
	for _, m := range s.data {
		if m.Symbol != symbol || m.Timestamp.Before(start) || m.Timestamp.After(end) {
			continue
		}
		if !found {
			low, high = m.Price, m.Price
			found = true
			continue
		}
		if m.Price < low {
			low = m.Price
		}
		if m.Price > high {
			high = m.Price
		}
	}

	if !found {
		return 0, 0, storage.ErrNotFound
	}
	return low, high, nil
}

var _ storage.UnderlyingMarkStore = (*UnderlyingMarkStore)(nil)
