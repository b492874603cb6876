package postgres

import (
	"context"
	"fmt"
	"time"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// UnderlyingMarkStore implements storage.UnderlyingMarkStore using PostgreSQL.
type UnderlyingMarkStore struct {
	pool *Pool
}

// NewUnderlyingMarkStore creates a new UnderlyingMarkStore.
func NewUnderlyingMarkStore(pool *Pool) *UnderlyingMarkStore {
	return &UnderlyingMarkStore{pool: pool}
}

// Compile-time interface check.
var _ storage.UnderlyingMarkStore = (*UnderlyingMarkStore)(nil)

// InsertMissing adds marks with unseen (symbol, timestamp) keys, skipping
// the rest. The whole batch commits atomically. Returns the number inserted.
func (s *UnderlyingMarkStore) InsertMissing(ctx context.Context, marks []*domain.UnderlyingMark) (int, error) {
	if len(marks) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO underlying_marks (symbol, ts, price)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol, ts) DO NOTHING
	`

	inserted := 0
	for _, m := range marks {
		if m == nil || m.Symbol == "" {
			return 0, storage.ErrInvalidInput
		}
		tag, err := tx.Exec(ctx, query, m.Symbol, m.Timestamp, m.Price)
		if err != nil {
			return 0, fmt.Errorf("insert underlying mark: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return inserted, nil
}

// GetSeries retrieves marks for a symbol within [start, end] (inclusive).
func (s *UnderlyingMarkStore) GetSeries(ctx context.Context, symbol string, start, end time.Time) ([]*domain.UnderlyingMark, error) {
	query := `
		SELECT symbol, ts, price
		FROM underlying_marks
		WHERE symbol = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("get underlying mark series: %w", err)
	}
	defer rows.Close()

	var marks []*domain.UnderlyingMark
	for rows.Next() {
		var m domain.UnderlyingMark
		if err := rows.Scan(&m.Symbol, &m.Timestamp, &m.Price); err != nil {
			return nil, fmt.Errorf("scan underlying mark row: %w", err)
		}
		marks = append(marks, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate underlying mark rows: %w", err)
	}

	return marks, nil
}

// GetPriceRange returns the min and max price for a symbol within [start, end].
// Returns ErrNotFound when no marks exist in range.
func (s *UnderlyingMarkStore) GetPriceRange(ctx context.Context, symbol string, start, end time.Time) (float64, float64, error) {
	query := `
		SELECT MIN(price), MAX(price)
		FROM underlying_marks
		WHERE symbol = $1 AND ts >= $2 AND ts <= $3
	`

	var low, high *float64
	if err := s.pool.QueryRow(ctx, query, symbol, start, end).Scan(&low, &high); err != nil {
		return 0, 0, fmt.Errorf("get underlying price range: %w", err)
	}
	if low == nil || high == nil {
		return 0, 0, storage.ErrNotFound
	}
	return *low, *high, nil
}
