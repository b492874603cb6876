package storage

import (
	"context"
	"time"

	"optionflow/internal/domain"
)

// TokenStore provides access to per-profile credential storage.
type TokenStore interface {
	// Get retrieves the token for an API profile. Returns ErrNotFound if not exists.
	Get(ctx context.Context, apiName string) (*domain.Token, error)

	// Upsert creates or replaces the token for its APIName.
	Upsert(ctx context.Context, t *domain.Token) error
}

// SessionWindowStore provides access to the market calendar.
type SessionWindowStore interface {
	// GetWindow retrieves the window for (marketDate, sessionType).
	// Returns ErrNotFound if the calendar has no row for that key.
	GetWindow(ctx context.Context, marketDate, sessionType string) (*domain.SessionWindow, error)

	// Upsert creates or replaces a window. Used by the calendar loader.
	Upsert(ctx context.Context, w *domain.SessionWindow) error
}

// StagingStore holds raw ticks between stage 1 import and stage 2
// normalization. Contents for a date are replaced wholesale on import
// and cleared once consumed.
type StagingStore interface {
	// InsertBulk appends raw ticks for a market date.
	InsertBulk(ctx context.Context, marketDate string, ticks []*domain.RawTick) error

	// GetByDate retrieves all staged ticks for a date, ordered by quote time ASC.
	GetByDate(ctx context.Context, marketDate string) ([]*domain.RawTick, error)

	// Clear removes all staged ticks for a date.
	Clear(ctx context.Context, marketDate string) error
}

// InstrumentStore provides access to instruments storage. Instrument
// rows are never updated or deleted.
type InstrumentStore interface {
	// Ensure inserts the instrument if its (strike, call_put, expiry)
	// tuple is unseen and returns the surrogate ID either way.
	Ensure(ctx context.Context, inst *domain.Instrument) (int64, error)

	// GetByKey retrieves an instrument by identity. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, strike float64, callPut, expiry string) (*domain.Instrument, error)

	// ListByExpiry retrieves all instruments for an expiry, ordered by strike ASC.
	ListByExpiry(ctx context.Context, expiry string) ([]*domain.Instrument, error)
}

// InstrumentMarkStore provides access to instrument_marks storage.
type InstrumentMarkStore interface {
	// InsertMissing adds marks whose (instrument_id, timestamp) is
	// unseen, skipping the rest. Returns the number inserted.
	InsertMissing(ctx context.Context, marks []*domain.InstrumentMark) (int, error)

	// GetSeries retrieves marks for an instrument within [start, end]
	// (inclusive), ordered by timestamp ASC.
	GetSeries(ctx context.Context, instrumentID int64, start, end time.Time) ([]*domain.InstrumentMark, error)
}

// UnderlyingMarkStore provides access to underlying_marks storage.
type UnderlyingMarkStore interface {
	// InsertMissing adds marks whose (symbol, timestamp) is unseen,
	// skipping the rest. Returns the number inserted.
	InsertMissing(ctx context.Context, marks []*domain.UnderlyingMark) (int, error)

	// GetSeries retrieves marks for a symbol within [start, end]
	// (inclusive), ordered by timestamp ASC.
	GetSeries(ctx context.Context, symbol string, start, end time.Time) ([]*domain.UnderlyingMark, error)

	// GetPriceRange returns the min and max price for a symbol within
	// [start, end]. Returns ErrNotFound when no marks exist in range.
	GetPriceRange(ctx context.Context, symbol string, start, end time.Time) (low, high float64, err error)
}

// SpreadStore provides access to vertical_spreads storage.
type SpreadStore interface {
	// Ensure inserts the spread if its (short_instrument_id,
	// long_instrument_id) pair is unseen and returns the surrogate ID
	// either way.
	Ensure(ctx context.Context, s *domain.VerticalSpread) (int64, error)

	// ListByExpiry retrieves all spreads for an expiry, ordered by short strike ASC.
	ListByExpiry(ctx context.Context, expiry string) ([]*domain.VerticalSpread, error)
}

// SpreadMarkStore provides access to spread_marks storage.
type SpreadMarkStore interface {
	// InsertMissing adds marks whose (spread_id, timestamp) is unseen,
	// skipping the rest. Returns the number inserted.
	InsertMissing(ctx context.Context, marks []*domain.SpreadMark) (int, error)

	// GetSeries retrieves marks for a spread within [start, end]
	// (inclusive), ordered by timestamp ASC.
	GetSeries(ctx context.Context, spreadID int64, start, end time.Time) ([]*domain.SpreadMark, error)
}
