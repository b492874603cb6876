package transform

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
	"optionflow/internal/storage/memory"
)

type deriveFixture struct {
	instruments *memory.InstrumentStore
	instMarks   *memory.InstrumentMarkStore
	undMarks    *memory.UnderlyingMarkStore
	spreads     *memory.SpreadStore
	spreadMarks *memory.SpreadMarkStore
	deriver     *Deriver
}

func newDeriveFixture(t *testing.T) *deriveFixture {
	t.Helper()
	f := &deriveFixture{
		instruments: memory.NewInstrumentStore(),
		instMarks:   memory.NewInstrumentMarkStore(),
		undMarks:    memory.NewUnderlyingMarkStore(),
		spreads:     memory.NewSpreadStore(),
		spreadMarks: memory.NewSpreadMarkStore(),
	}
	f.deriver = NewDeriver(DeriveConfig{
		UnderlyingSymbol: "$SPX",
		Width:            5,
		GridStep:         time.Second,
		NeighborsBefore:  5,
		NeighborsAfter:   5,
		OutlierThreshold: 0.5,
		RollingWindow:    10,
		Location:         time.UTC,
	}, f.instruments, f.instMarks, f.undMarks, f.spreads, f.spreadMarks, zerolog.Nop())
	return f
}

func (f *deriveFixture) addInstrument(t *testing.T, strike float64, callPut, expiry string) int64 {
	t.Helper()
	id, err := f.instruments.Ensure(context.Background(), &domain.Instrument{
		Root: "SPXW", Strike: strike, CallPut: callPut, Expiry: expiry,
	})
	if err != nil {
		t.Fatalf("Ensure instrument: %v", err)
	}
	return id
}

func (f *deriveFixture) addMarks(t *testing.T, id int64, start time.Time, prices []float64) {
	t.Helper()
	marks := make([]*domain.InstrumentMark, len(prices))
	for i, p := range prices {
		marks[i] = &domain.InstrumentMark{
			InstrumentID: id,
			Timestamp:    start.Add(time.Duration(i) * time.Second),
			Price:        p,
		}
	}
	if _, err := f.instMarks.InsertMissing(context.Background(), marks); err != nil {
		t.Fatalf("InsertMissing marks: %v", err)
	}
}

func (f *deriveFixture) addUnderlying(t *testing.T, ts time.Time, price float64) {
	t.Helper()
	_, err := f.undMarks.InsertMissing(context.Background(), []*domain.UnderlyingMark{
		{Symbol: "$SPX", Timestamp: ts, Price: price},
	})
	if err != nil {
		t.Fatalf("InsertMissing underlying: %v", err)
	}
}

func TestDeriverPairsCallSpread(t *testing.T) {
	const marketDate = "2025-01-15"
	f := newDeriveFixture(t)
	start := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)

	f.addUnderlying(t, start, 5900)
	short := f.addInstrument(t, 5900, domain.Call, marketDate)
	long := f.addInstrument(t, 5895, domain.Call, marketDate)
	f.addMarks(t, short, start, []float64{26.00, 26.00, 26.00, 26.00})
	f.addMarks(t, long, start, []float64{24.50, 24.50, 24.50, 24.50})

	if err := f.deriver.Run(context.Background(), marketDate); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	spreads, err := f.spreads.ListByExpiry(context.Background(), marketDate)
	if err != nil {
		t.Fatalf("ListByExpiry() error: %v", err)
	}
	if len(spreads) != 1 {
		t.Fatalf("spreads = %d, want 1", len(spreads))
	}
	s := spreads[0]
	if s.ShortInstrumentID != short || s.LongInstrumentID != long {
		t.Errorf("spread legs = %d/%d, want %d/%d", s.ShortInstrumentID, s.LongInstrumentID, short, long)
	}
	if s.Width != 5 || s.ShortStrike != 5900 {
		t.Errorf("spread = %+v, want width 5 short strike 5900", s)
	}

	marks, err := f.spreadMarks.GetSeries(context.Background(), s.ID, start.Add(-time.Minute), start.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetSeries() error: %v", err)
	}
	if len(marks) != 4 {
		t.Fatalf("spread marks = %d, want 4 grid points", len(marks))
	}
	for i, m := range marks {
		if math.Abs(m.Price-1.50) > 1e-9 {
			t.Errorf("marks[%d].Price = %v, want 1.50", i, m.Price)
		}
		if math.Abs(m.RollingAvg-1.50) > 1e-9 {
			t.Errorf("marks[%d].RollingAvg = %v, want 1.50", i, m.RollingAvg)
		}
	}
}

func TestDeriverRejectsOutlierPoint(t *testing.T) {
	const marketDate = "2025-01-15"
	f := newDeriveFixture(t)
	start := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)

	f.addUnderlying(t, start, 5900)
	short := f.addInstrument(t, 5900, domain.Call, marketDate)
	long := f.addInstrument(t, 5895, domain.Call, marketDate)

	// Spread series: steady 1.40/1.45 with one 2.10 spike in the middle.
	shortPrices := []float64{25.90, 25.95, 25.90, 25.95, 25.90, 26.60, 25.95, 25.90, 25.95, 25.90, 25.95}
	longPrices := make([]float64, len(shortPrices))
	for i := range longPrices {
		longPrices[i] = 24.50
	}
	f.addMarks(t, short, start, shortPrices)
	f.addMarks(t, long, start, longPrices)

	if err := f.deriver.Run(context.Background(), marketDate); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	spreads, err := f.spreads.ListByExpiry(context.Background(), marketDate)
	if err != nil || len(spreads) != 1 {
		t.Fatalf("spreads = %d (err %v), want 1", len(spreads), err)
	}
	marks, err := f.spreadMarks.GetSeries(context.Background(), spreads[0].ID, start.Add(-time.Minute), start.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetSeries() error: %v", err)
	}
	if len(marks) != len(shortPrices)-1 {
		t.Fatalf("spread marks = %d, want %d (spike excluded)", len(marks), len(shortPrices)-1)
	}
	for i, m := range marks {
		if m.Price > 2.0 {
			t.Errorf("marks[%d].Price = %v, outlier reached storage", i, m.Price)
		}
	}
}

func TestDeriverClampsToWidth(t *testing.T) {
	const marketDate = "2025-01-15"
	f := newDeriveFixture(t)
	start := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)

	f.addUnderlying(t, start, 5900)
	short := f.addInstrument(t, 5900, domain.Call, marketDate)
	long := f.addInstrument(t, 5895, domain.Call, marketDate)
	// Raw spreads of 5.5 exceed the 5 point width and the final -1.0
	// goes below zero; both must be clamped into [0, 5].
	f.addMarks(t, short, start, []float64{30.00, 30.00, 30.00})
	f.addMarks(t, long, start, []float64{24.50, 24.50, 31.00})

	if err := f.deriver.Run(context.Background(), marketDate); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	spreads, err := f.spreads.ListByExpiry(context.Background(), marketDate)
	if err != nil || len(spreads) != 1 {
		t.Fatalf("spreads = %d (err %v), want 1", len(spreads), err)
	}
	marks, err := f.spreadMarks.GetSeries(context.Background(), spreads[0].ID, start.Add(-time.Minute), start.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetSeries() error: %v", err)
	}
	if len(marks) != 3 {
		t.Fatalf("spread marks = %d, want 3", len(marks))
	}
	want := []float64{5, 5, 0}
	for i, m := range marks {
		if math.Abs(m.Price-want[i]) > 1e-9 {
			t.Errorf("marks[%d].Price = %v, want %v", i, m.Price, want[i])
		}
	}
}

func TestDeriverNoUnderlyingDataWritesNothing(t *testing.T) {
	const marketDate = "2025-01-15"
	f := newDeriveFixture(t)
	start := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)

	short := f.addInstrument(t, 5900, domain.Call, marketDate)
	long := f.addInstrument(t, 5895, domain.Call, marketDate)
	f.addMarks(t, short, start, []float64{26.00})
	f.addMarks(t, long, start, []float64{24.50})

	err := f.deriver.Run(context.Background(), marketDate)
	if !errors.Is(err, ErrNoUnderlyingData) {
		t.Fatalf("Run() error = %v, want ErrNoUnderlyingData", err)
	}

	spreads, err := f.spreads.ListByExpiry(context.Background(), marketDate)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("ListByExpiry() error: %v", err)
	}
	if len(spreads) != 0 {
		t.Errorf("spreads = %d after aborted run, want 0", len(spreads))
	}
}

func TestDeriverSkipsStrikesOutsideTradedRange(t *testing.T) {
	const marketDate = "2025-01-15"
	f := newDeriveFixture(t)
	start := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)

	// Underlying never left 5900; a 6000 short strike is out of bounds.
	f.addUnderlying(t, start, 5900)
	short := f.addInstrument(t, 6000, domain.Call, marketDate)
	long := f.addInstrument(t, 5995, domain.Call, marketDate)
	f.addMarks(t, short, start, []float64{2.00, 2.00})
	f.addMarks(t, long, start, []float64{1.50, 1.50})

	if err := f.deriver.Run(context.Background(), marketDate); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	spreads, err := f.spreads.ListByExpiry(context.Background(), marketDate)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("ListByExpiry() error: %v", err)
	}
	if len(spreads) != 0 {
		t.Errorf("spreads = %d for out-of-range strikes, want 0", len(spreads))
	}
}

func TestDeriverRerunIsIdempotent(t *testing.T) {
	const marketDate = "2025-01-15"
	f := newDeriveFixture(t)
	start := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)

	f.addUnderlying(t, start, 5900)
	short := f.addInstrument(t, 5900, domain.Put, marketDate)
	long := f.addInstrument(t, 5905, domain.Put, marketDate)
	f.addMarks(t, short, start, []float64{20.00, 20.00})
	f.addMarks(t, long, start, []float64{21.20, 21.20})

	ctx := context.Background()
	if err := f.deriver.Run(ctx, marketDate); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	if err := f.deriver.Run(ctx, marketDate); err != nil {
		t.Fatalf("second Run() error: %v", err)
	}

	spreads, err := f.spreads.ListByExpiry(ctx, marketDate)
	if err != nil {
		t.Fatalf("ListByExpiry() error: %v", err)
	}
	if len(spreads) != 1 {
		t.Fatalf("spreads = %d after rerun, want 1", len(spreads))
	}
	marks, err := f.spreadMarks.GetSeries(ctx, spreads[0].ID, start.Add(-time.Minute), start.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetSeries() error: %v", err)
	}
	if len(marks) != 2 {
		t.Errorf("spread marks = %d after rerun, want still 2", len(marks))
	}
}
