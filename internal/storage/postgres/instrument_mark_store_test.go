package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionflow/internal/domain"
)

func TestInstrumentStore_EnsureIsIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewInstrumentStore(pool)
	ctx := context.Background()

	inst := &domain.Instrument{Root: "SPXW", Strike: 5900, CallPut: domain.Call, Expiry: "2025-01-15"}

	id1, err := store.Ensure(ctx, inst)
	require.NoError(t, err)
	require.NotZero(t, id1)

	id2, err := store.Ensure(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	insts, err := store.ListByExpiry(ctx, "2025-01-15")
	require.NoError(t, err)
	assert.Len(t, insts, 1)
}

func TestInstrumentMarkStore_InsertMissingNeverOverwrites(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	instruments := NewInstrumentStore(pool)
	marks := NewInstrumentMarkStore(pool)
	ctx := context.Background()

	id, err := instruments.Ensure(ctx, &domain.Instrument{Root: "SPXW", Strike: 5900, CallPut: domain.Call, Expiry: "2025-01-15"})
	require.NoError(t, err)

	ts := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	n, err := marks.InsertMissing(ctx, []*domain.InstrumentMark{
		{InstrumentID: id, Timestamp: ts, Price: 12.5},
		{InstrumentID: id, Timestamp: ts.Add(time.Second), Price: 12.6},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Same keys again, different price: nothing inserted, first value kept.
	n, err = marks.InsertMissing(ctx, []*domain.InstrumentMark{
		{InstrumentID: id, Timestamp: ts, Price: 99},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	series, err := marks.GetSeries(ctx, id, ts, ts.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 12.5, series[0].Price)
}

func TestUnderlyingMarkStore_GetPriceRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewUnderlyingMarkStore(pool)
	ctx := context.Background()

	ts := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	_, err := store.InsertMissing(ctx, []*domain.UnderlyingMark{
		{Symbol: "$SPX", Timestamp: ts, Price: 5901.2},
		{Symbol: "$SPX", Timestamp: ts.Add(time.Second), Price: 5899.4},
		{Symbol: "$SPX", Timestamp: ts.Add(2 * time.Second), Price: 5905.8},
	})
	require.NoError(t, err)

	low, high, err := store.GetPriceRange(ctx, "$SPX", ts, ts.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 5899.4, low)
	assert.Equal(t, 5905.8, high)
}
