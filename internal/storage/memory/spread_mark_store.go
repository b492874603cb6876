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

// SpreadMarkStore is an in-memory implementation of storage.SpreadMarkStore.
type SpreadMarkStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SpreadMark // keyed by (spread_id, timestamp)
}

// NewSpreadMarkStore creates a new in-memory spread mark store.
func NewSpreadMarkStore() *SpreadMarkStore {
	return &SpreadMarkStore{
		data: make(map[string]*domain.SpreadMark),
	}
}

func spreadMarkKey(spreadID int64, ts time.Time) string {
	return fmt.Sprintf("%d|%d", spreadID, ts.UnixMilli())
}

// InsertMissing adds marks with unseen keys, skipping the rest.
// Returns the number inserted.
func (s *SpreadMarkStore) InsertMissing(_ context.Context, marks []*domain.SpreadMark) (int, error) {
	if len(marks) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, m := range marks {
		if m == nil || m.SpreadID == 0 {
			return inserted, storage.ErrInvalidInput
		}
		key := spreadMarkKey(m.SpreadID, m.Timestamp)
		if _, exists := s.data[key]; exists {
			continue
		}
		markCopy := *m
		s.data[key] = &markCopy
		inserted++
	}
	return inserted, nil
}

// GetSeries retrieves marks for a spread within [start, end] (inclusive).
func (s *SpreadMarkStore) GetSeries(_ context.Context, spreadID int64, start, end time.Time) ([]*domain.SpreadMark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SpreadMark
	for _, m := range s.data {
		if m.SpreadID == spreadID && !m.Timestamp.Before(start) && !m.Timestamp.After(end) {
			markCopy := *m
			result = append(result, &markCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

var _ storage.SpreadMarkStore = (*SpreadMarkStore)(nil)
