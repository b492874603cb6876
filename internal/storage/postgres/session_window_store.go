package postgres

import (
	"context"
	"fmt"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// SessionWindowStore implements storage.SessionWindowStore using PostgreSQL.
type SessionWindowStore struct {
	pool *Pool
}

// NewSessionWindowStore creates a new SessionWindowStore.
func NewSessionWindowStore(pool *Pool) *SessionWindowStore {
	return &SessionWindowStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SessionWindowStore = (*SessionWindowStore)(nil)

// GetWindow retrieves the window for (marketDate, sessionType).
// Returns ErrNotFound if the calendar has no row for that key.
func (s *SessionWindowStore) GetWindow(ctx context.Context, marketDate, sessionType string) (*domain.SessionWindow, error) {
	query := `
		SELECT market_date, session_type, start_time, end_time, is_open
		FROM session_windows
		WHERE market_date = $1 AND session_type = $2
	`

	var w domain.SessionWindow
	err := s.pool.QueryRow(ctx, query, marketDate, sessionType).Scan(
		&w.MarketDate, &w.SessionType, &w.StartTime, &w.EndTime, &w.IsOpen,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get session window: %w", err)
	}
	return &w, nil
}

// Upsert creates or replaces a window.
func (s *SessionWindowStore) Upsert(ctx context.Context, w *domain.SessionWindow) error {
	if w == nil || w.MarketDate == "" || w.SessionType == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO session_windows (market_date, session_type, start_time, end_time, is_open)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (market_date, session_type) DO UPDATE SET
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			is_open = EXCLUDED.is_open
	`

	_, err := s.pool.Exec(ctx, query, w.MarketDate, w.SessionType, w.StartTime, w.EndTime, w.IsOpen)
	if err != nil {
		return fmt.Errorf("upsert session window: %w", err)
	}
	return nil
}
