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

// InstrumentMarkStore is an in-memory implementation of storage.InstrumentMarkStore.
type InstrumentMarkStore struct {
	mu   sync.RWMutex
	data map[string]*domain.InstrumentMark // keyed by (instrument_id, timestamp)
}

// NewInstrumentMarkStore creates a new in-memory instrument mark store.
func NewInstrumentMarkStore() *InstrumentMarkStore {
	return &InstrumentMarkStore{
		data: make(map[string]*domain.InstrumentMark),
	}
}

func instrumentMarkKey(instrumentID int64, ts time.Time) string {
	return fmt.Sprintf("%d|%d", instrumentID, ts.UnixMilli())
}

// InsertMissing adds marks with unseen keys, skipping the rest.
// Returns the number inserted.
func (s *InstrumentMarkStore) InsertMissing(_ context.Context, marks []*domain.InstrumentMark) (int, error) {
	if len(marks) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, m := range marks {
		if m == nil || m.InstrumentID == 0 {
			return inserted, storage.ErrInvalidInput
		}
		key := instrumentMarkKey(m.InstrumentID, m.Timestamp)
		if _, exists := s.data[key]; exists {
			continue
		}
		markCopy := *m
		s.data[key] = &markCopy
		inserted++
	}
	return inserted, nil
}

// GetSeries retrieves marks for an instrument within [start, end] (inclusive).
func (s *InstrumentMarkStore) GetSeries(_ context.Context, instrumentID int64, start, end time.Time) ([]*domain.InstrumentMark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.InstrumentMark
	for _, m := range s.data {
		if m.InstrumentID == instrumentID && !m.Timestamp.Before(start) && !m.Timestamp.After(end) {
			markCopy := *m
			result = append(result, &markCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

var _ storage.InstrumentMarkStore = (*InstrumentMarkStore)(nil)
