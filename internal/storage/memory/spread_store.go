package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// SpreadStore is an in-memory implementation of storage.SpreadStore.
type SpreadStore struct {
	mu     sync.RWMutex
	nextID int64
	byKey  map[string]*domain.VerticalSpread // keyed by (short_instrument_id, long_instrument_id)
}

// NewSpreadStore creates a new in-memory spread store.
func NewSpreadStore() *SpreadStore {
	return &SpreadStore{
		nextID: 1,
		byKey:  make(map[string]*domain.VerticalSpread),
	}
}

func spreadKey(shortID, longID int64) string {
	return fmt.Sprintf("%d|%d", shortID, longID)
}

// Ensure inserts the spread if unseen and returns its ID either way.
func (s *SpreadStore) Ensure(_ context.Context, spread *domain.VerticalSpread) (int64, error) {
	if spread == nil || spread.ShortInstrumentID == 0 || spread.LongInstrumentID == 0 || spread.Width <= 0 {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := spreadKey(spread.ShortInstrumentID, spread.LongInstrumentID)
	if existing, ok := s.byKey[key]; ok {
		return existing.ID, nil
	}

	spreadCopy := *spread
	spreadCopy.ID = s.nextID
	s.nextID++
	s.byKey[key] = &spreadCopy
	return spreadCopy.ID, nil
}

// ListByExpiry retrieves all spreads for an expiry, ordered by short strike ASC.
func (s *SpreadStore) ListByExpiry(_ context.Context, expiry string) ([]*domain.VerticalSpread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.VerticalSpread
	for _, spread := range s.byKey {
		if spread.Expiry == expiry {
			spreadCopy := *spread
			result = append(result, &spreadCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ShortStrike != result[j].ShortStrike {
			return result[i].ShortStrike < result[j].ShortStrike
		}
		return result[i].CallPut < result[j].CallPut
	})

	return result, nil
}

var _ storage.SpreadStore = (*SpreadStore)(nil)
