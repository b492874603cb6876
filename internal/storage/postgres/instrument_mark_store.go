package postgres

import (
	"context"
	"fmt"
	"time"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// InstrumentMarkStore implements storage.InstrumentMarkStore using PostgreSQL.
type InstrumentMarkStore struct {
	pool *Pool
}

// NewInstrumentMarkStore creates a new InstrumentMarkStore.
func NewInstrumentMarkStore(pool *Pool) *InstrumentMarkStore {
	return &InstrumentMarkStore{pool: pool}
}

// Compile-time interface check.
var _ storage.InstrumentMarkStore = (*InstrumentMarkStore)(nil)

// InsertMissing adds marks with unseen (instrument_id, timestamp) keys,
// skipping the rest. The whole batch commits atomically. Returns the
// number inserted.
func (s *InstrumentMarkStore) InsertMissing(ctx context.Context, marks []*domain.InstrumentMark) (int, error) {
	if len(marks) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO instrument_marks (instrument_id, ts, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (instrument_id, ts) DO NOTHING
	`

	inserted := 0
	for _, m := range marks {
		if m == nil || m.InstrumentID == 0 {
			return 0, storage.ErrInvalidInput
		}
		tag, err := tx.Exec(ctx, query, m.InstrumentID, m.Timestamp, m.Price)
		if err != nil {
			return 0, fmt.Errorf("insert instrument mark: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return inserted, nil
}

// GetSeries retrieves marks for an instrument within [start, end] (inclusive).
func (s *InstrumentMarkStore) GetSeries(ctx context.Context, instrumentID int64, start, end time.Time) ([]*domain.InstrumentMark, error) {
	query := `
		SELECT instrument_id, ts, price
		FROM instrument_marks
		WHERE instrument_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`

	rows, err := s.pool.Query(ctx, query, instrumentID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get instrument mark series: %w", err)
	}
	defer rows.Close()

	var marks []*domain.InstrumentMark
	for rows.Next() {
		var m domain.InstrumentMark
		if err := rows.Scan(&m.InstrumentID, &m.Timestamp, &m.Price); err != nil {
			return nil, fmt.Errorf("scan instrument mark row: %w", err)
		}
		marks = append(marks, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instrument mark rows: %w", err)
	}

	return marks, nil
}
