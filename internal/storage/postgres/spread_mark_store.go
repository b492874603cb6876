package postgres

import (
	"context"
	"fmt"
	"time"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// SpreadMarkStore implements storage.SpreadMarkStore using PostgreSQL.
type SpreadMarkStore struct {
	pool *Pool
}

// NewSpreadMarkStore creates a new SpreadMarkStore.
func NewSpreadMarkStore(pool *Pool) *SpreadMarkStore {
	return &SpreadMarkStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SpreadMarkStore = (*SpreadMarkStore)(nil)

// InsertMissing adds marks with unseen (spread_id, timestamp) keys,
// skipping the rest. The whole batch commits atomically. Returns the
// number inserted.
func (s *SpreadMarkStore) InsertMissing(ctx context.Context, marks []*domain.SpreadMark) (int, error) {
	if len(marks) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO spread_marks (spread_id, ts, price, rolling_avg)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (spread_id, ts) DO NOTHING
	`

	inserted := 0
	for _, m := range marks {
		if m == nil || m.SpreadID == 0 {
			return 0, storage.ErrInvalidInput
		}
		tag, err := tx.Exec(ctx, query, m.SpreadID, m.Timestamp, m.Price, m.RollingAvg)
		if err != nil {
			return 0, fmt.Errorf("insert spread mark: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return inserted, nil
}

// GetSeries retrieves marks for a spread within [start, end] (inclusive).
func (s *SpreadMarkStore) GetSeries(ctx context.Context, spreadID int64, start, end time.Time) ([]*domain.SpreadMark, error) {
	query := `
		SELECT spread_id, ts, price, rolling_avg
		FROM spread_marks
		WHERE spread_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`

	rows, err := s.pool.Query(ctx, query, spreadID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get spread mark series: %w", err)
	}
	defer rows.Close()

	var marks []*domain.SpreadMark
	for rows.Next() {
		var m domain.SpreadMark
		if err := rows.Scan(&m.SpreadID, &m.Timestamp, &m.Price, &m.RollingAvg); err != nil {
			return nil, fmt.Errorf("scan spread mark row: %w", err)
		}
		marks = append(marks, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spread mark rows: %w", err)
	}

	return marks, nil
}
