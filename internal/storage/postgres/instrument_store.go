package postgres

import (
	"context"
	"fmt"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// InstrumentStore implements storage.InstrumentStore using PostgreSQL.
type InstrumentStore struct {
	pool *Pool
}

// NewInstrumentStore creates a new InstrumentStore.
func NewInstrumentStore(pool *Pool) *InstrumentStore {
	return &InstrumentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.InstrumentStore = (*InstrumentStore)(nil)

// Ensure inserts the instrument if unseen and returns its ID either way.
// Concurrent calls for the same identity resolve to the same row via the
// unique constraint on (strike, call_put, expiry).
func (s *InstrumentStore) Ensure(ctx context.Context, inst *domain.Instrument) (int64, error) {
	if inst == nil || inst.CallPut == "" || inst.Expiry == "" || inst.Strike <= 0 {
		return 0, storage.ErrInvalidInput
	}

	insert := `
		INSERT INTO instruments (root, strike, call_put, expiry)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (strike, call_put, expiry) DO NOTHING
		RETURNING id
	`

	var id int64
	err := s.pool.QueryRow(ctx, insert, inst.Root, inst.Strike, inst.CallPut, inst.Expiry).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !isNotFoundError(err) {
		return 0, fmt.Errorf("ensure instrument: %w", err)
	}

	// Row already existed; RETURNING yields nothing on conflict.
	query := `SELECT id FROM instruments WHERE strike = $1 AND call_put = $2 AND expiry = $3`
	if err := s.pool.QueryRow(ctx, query, inst.Strike, inst.CallPut, inst.Expiry).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensure instrument lookup: %w", err)
	}
	return id, nil
}

// GetByKey retrieves an instrument by identity. Returns ErrNotFound if not exists.
func (s *InstrumentStore) GetByKey(ctx context.Context, strike float64, callPut, expiry string) (*domain.Instrument, error) {
	query := `
		SELECT id, root, strike, call_put, expiry
		FROM instruments
		WHERE strike = $1 AND call_put = $2 AND expiry = $3
	`

	var inst domain.Instrument
	err := s.pool.QueryRow(ctx, query, strike, callPut, expiry).Scan(
		&inst.ID, &inst.Root, &inst.Strike, &inst.CallPut, &inst.Expiry,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get instrument by key: %w", err)
	}
	return &inst, nil
}

// ListByExpiry retrieves all instruments for an expiry, ordered by strike ASC.
func (s *InstrumentStore) ListByExpiry(ctx context.Context, expiry string) ([]*domain.Instrument, error) {
	query := `
		SELECT id, root, strike, call_put, expiry
		FROM instruments
		WHERE expiry = $1
		ORDER BY strike ASC, call_put ASC
	`

	rows, err := s.pool.Query(ctx, query, expiry)
	if err != nil {
		return nil, fmt.Errorf("list instruments by expiry: %w", err)
	}
	defer rows.Close()

	var insts []*domain.Instrument
	for rows.Next() {
		var inst domain.Instrument
		if err := rows.Scan(&inst.ID, &inst.Root, &inst.Strike, &inst.CallPut, &inst.Expiry); err != nil {
			return nil, fmt.Errorf("scan instrument row: %w", err)
		}
		insts = append(insts, &inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instrument rows: %w", err)
	}

	return insts, nil
}
