package postgres

import (
	"context"
	"fmt"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// SpreadStore implements storage.SpreadStore using PostgreSQL.
type SpreadStore struct {
	pool *Pool
}

// NewSpreadStore creates a new SpreadStore.
func NewSpreadStore(pool *Pool) *SpreadStore {
	return &SpreadStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SpreadStore = (*SpreadStore)(nil)

// Ensure inserts the spread if unseen and returns its ID either way.
func (s *SpreadStore) Ensure(ctx context.Context, spread *domain.VerticalSpread) (int64, error) {
	if spread == nil || spread.ShortInstrumentID == 0 || spread.LongInstrumentID == 0 || spread.Width <= 0 {
		return 0, storage.ErrInvalidInput
	}

	insert := `
		INSERT INTO vertical_spreads (short_instrument_id, long_instrument_id, short_strike, width, call_put, expiry)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (short_instrument_id, long_instrument_id) DO NOTHING
		RETURNING id
	`

	var id int64
	err := s.pool.QueryRow(ctx, insert,
		spread.ShortInstrumentID, spread.LongInstrumentID,
		spread.ShortStrike, spread.Width, spread.CallPut, spread.Expiry,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !isNotFoundError(err) {
		return 0, fmt.Errorf("ensure spread: %w", err)
	}

	query := `SELECT id FROM vertical_spreads WHERE short_instrument_id = $1 AND long_instrument_id = $2`
	if err := s.pool.QueryRow(ctx, query, spread.ShortInstrumentID, spread.LongInstrumentID).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensure spread lookup: %w", err)
	}
	return id, nil
}

// ListByExpiry retrieves all spreads for an expiry, ordered by short strike ASC.
func (s *SpreadStore) ListByExpiry(ctx context.Context, expiry string) ([]*domain.VerticalSpread, error) {
	query := `
		SELECT id, short_instrument_id, long_instrument_id, short_strike, width, call_put, expiry
		FROM vertical_spreads
		WHERE expiry = $1
		ORDER BY short_strike ASC, call_put ASC
	`

	rows, err := s.pool.Query(ctx, query, expiry)
	if err != nil {
		return nil, fmt.Errorf("list spreads by expiry: %w", err)
	}
	defer rows.Close()

	var spreads []*domain.VerticalSpread
	for rows.Next() {
		var sp domain.VerticalSpread
		if err := rows.Scan(&sp.ID, &sp.ShortInstrumentID, &sp.LongInstrumentID, &sp.ShortStrike, &sp.Width, &sp.CallPut, &sp.Expiry); err != nil {
			return nil, fmt.Errorf("scan spread row: %w", err)
		}
		spreads = append(spreads, &sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spread rows: %w", err)
	}

	return spreads, nil
}
