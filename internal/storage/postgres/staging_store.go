package postgres

import (
	"context"
	"fmt"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// StagingStore implements storage.StagingStore using PostgreSQL.
type StagingStore struct {
	pool *Pool
}

// NewStagingStore creates a new StagingStore.
func NewStagingStore(pool *Pool) *StagingStore {
	return &StagingStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StagingStore = (*StagingStore)(nil)

// InsertBulk appends raw ticks for a market date.
func (s *StagingStore) InsertBulk(ctx context.Context, marketDate string, ticks []*domain.RawTick) error {
	if marketDate == "" {
		return storage.ErrInvalidInput
	}
	if len(ticks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO staging_ticks (market_date, symbol, service, mark, quote_time_ms, received_at_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	for _, t := range ticks {
		if t == nil || t.Symbol == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query, marketDate, t.Symbol, t.Service, t.Mark, t.QuoteTimeMs, t.ReceivedAtMs)
		if err != nil {
			return fmt.Errorf("insert staging tick: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByDate retrieves all staged ticks for a date, ordered by quote time ASC.
func (s *StagingStore) GetByDate(ctx context.Context, marketDate string) ([]*domain.RawTick, error) {
	query := `
		SELECT symbol, service, mark, quote_time_ms, received_at_ms
		FROM staging_ticks
		WHERE market_date = $1
		ORDER BY quote_time_ms ASC, symbol ASC
	`

	rows, err := s.pool.Query(ctx, query, marketDate)
	if err != nil {
		return nil, fmt.Errorf("get staging ticks by date: %w", err)
	}
	defer rows.Close()

	var ticks []*domain.RawTick
	for rows.Next() {
		var t domain.RawTick
		if err := rows.Scan(&t.Symbol, &t.Service, &t.Mark, &t.QuoteTimeMs, &t.ReceivedAtMs); err != nil {
			return nil, fmt.Errorf("scan staging tick row: %w", err)
		}
		ticks = append(ticks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staging tick rows: %w", err)
	}

	return ticks, nil
}

// Clear removes all staged ticks for a date.
func (s *StagingStore) Clear(ctx context.Context, marketDate string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM staging_ticks WHERE market_date = $1`, marketDate)
	if err != nil {
		return fmt.Errorf("clear staging ticks: %w", err)
	}
	return nil
}
