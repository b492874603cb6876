package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// InstrumentStore is an in-memory implementation of storage.InstrumentStore.
type InstrumentStore struct {
	mu     sync.RWMutex
	nextID int64
	byKey  map[string]*domain.Instrument // keyed by (strike, call_put, expiry)
}

// NewInstrumentStore creates a new in-memory instrument store.
func NewInstrumentStore() *InstrumentStore {
	return &InstrumentStore{
		nextID: 1,
		byKey:  make(map[string]*domain.Instrument),
	}
}

func instrumentKey(strike float64, callPut, expiry string) string {
	return fmt.Sprintf("%.3f|%s|%s", strike, callPut, expiry)
}

// Ensure inserts the instrument if unseen and returns its ID either way.
func (s *InstrumentStore) Ensure(_ context.Context, inst *domain.Instrument) (int64, error) {
	if inst == nil || inst.CallPut == "" || inst.Expiry == "" || inst.Strike <= 0 {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := instrumentKey(inst.Strike, inst.CallPut, inst.Expiry)
	if existing, ok := s.byKey[key]; ok {
		return existing.ID, nil
	}

	instCopy := *inst
	instCopy.ID = s.nextID
	s.nextID++
	s.byKey[key] = &instCopy
	return instCopy.ID, nil
}

// GetByKey retrieves an instrument by identity. Returns ErrNotFound if not exists.
func (s *InstrumentStore) GetByKey(_ context.Context, strike float64, callPut, expiry string) (*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.byKey[instrumentKey(strike, callPut, expiry)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	instCopy := *inst
	return &instCopy, nil
}

// ListByExpiry retrieves all instruments for an expiry, ordered by strike ASC.
func (s *InstrumentStore) ListByExpiry(_ context.Context, expiry string) ([]*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Instrument
	for _, inst := range s.byKey {
		if inst.Expiry == expiry {
			instCopy := *inst
			result = append(result, &instCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Strike != result[j].Strike {
			return result[i].Strike < result[j].Strike
		}
		return result[i].CallPut < result[j].CallPut
	})

	return result, nil
}

var _ storage.InstrumentStore = (*InstrumentStore)(nil)
