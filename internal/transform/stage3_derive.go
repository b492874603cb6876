package transform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"optionflow/internal/domain"
	"optionflow/internal/observability"
	"optionflow/internal/storage"
)

// DeriveConfig parameterizes stage 3. The neighborhood and rolling
// window sizes are configuration, not constants, so they can be tuned
// without a code change.
type DeriveConfig struct {
	UnderlyingSymbol string
	// Width is the strike distance between the two legs of a spread.
	Width    float64
	GridStep time.Duration
	// NeighborsBefore/After and OutlierThreshold define the rejection
	// neighborhood: a point further than the threshold from both side
	// averages in the same direction is discarded.
	NeighborsBefore  int
	NeighborsAfter   int
	OutlierThreshold float64
	RollingWindow    int
	Location         *time.Location
}

func (c *DeriveConfig) applyDefaults() {
	if c.Width <= 0 {
		c.Width = 5
	}
	if c.GridStep <= 0 {
		c.GridStep = time.Second
	}
	if c.NeighborsBefore <= 0 {
		c.NeighborsBefore = 5
	}
	if c.NeighborsAfter <= 0 {
		c.NeighborsAfter = 5
	}
	if c.OutlierThreshold <= 0 {
		c.OutlierThreshold = 0.5
	}
	if c.RollingWindow <= 0 {
		c.RollingWindow = 10
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// Deriver is stage 3: per-instrument marks to vertical spread marks on
// a regular grid. Legs are forward-filled, paired at the configured
// width, cleaned of neighborhood outliers, clamped to [0, width] and
// smoothed with a trailing rolling average.
type Deriver struct {
	cfg         DeriveConfig
	instruments storage.InstrumentStore
	instMarks   storage.InstrumentMarkStore
	undMarks    storage.UnderlyingMarkStore
	spreads     storage.SpreadStore
	spreadMarks storage.SpreadMarkStore
	log         zerolog.Logger
}

// NewDeriver wires stage 3 over the stores.
func NewDeriver(cfg DeriveConfig, instruments storage.InstrumentStore, instMarks storage.InstrumentMarkStore, undMarks storage.UnderlyingMarkStore, spreads storage.SpreadStore, spreadMarks storage.SpreadMarkStore, log zerolog.Logger) *Deriver {
	cfg.applyDefaults()
	return &Deriver{
		cfg:         cfg,
		instruments: instruments,
		instMarks:   instMarks,
		undMarks:    undMarks,
		spreads:     spreads,
		spreadMarks: spreadMarks,
		log:         log.With().Str("component", "transform_derive").Logger(),
	}
}

// Run derives spread marks for every pairable instrument on one market
// date. Returns ErrNoUnderlyingData, before writing anything, when the
// underlying has no marks for the date.
func (d *Deriver) Run(ctx context.Context, marketDate string) error {
	started := time.Now()
	err := d.run(ctx, marketDate)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordStageRun("derive", status, time.Since(started).Seconds())
	return err
}

func (d *Deriver) run(ctx context.Context, marketDate string) error {
	day, err := time.ParseInLocation(domain.DateFormat, marketDate, d.cfg.Location)
	if err != nil {
		return fmt.Errorf("parse market date %q: %w", marketDate, err)
	}
	dayStart := day
	dayEnd := day.Add(24*time.Hour - time.Second)

	low, high, err := d.undMarks.GetPriceRange(ctx, d.cfg.UnderlyingSymbol, dayStart, dayEnd)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s on %s", ErrNoUnderlyingData, d.cfg.UnderlyingSymbol, marketDate)
	}
	if err != nil {
		return fmt.Errorf("underlying price range: %w", err)
	}

	instruments, err := d.instruments.ListByExpiry(ctx, marketDate)
	if err != nil {
		return fmt.Errorf("list instruments for %s: %w", marketDate, err)
	}

	byStrike := map[string]map[int64]*domain.Instrument{
		domain.Call: {},
		domain.Put:  {},
	}
	for _, inst := range instruments {
		if side, ok := byStrike[inst.CallPut]; ok {
			side[strikeKey(inst.Strike)] = inst
		}
	}

	// Only strikes the underlying actually visited, widened by one leg
	// width on each side, are worth pairing.
	minStrike := low - d.cfg.Width
	maxStrike := high + d.cfg.Width

	var (
		totalMarks    int
		totalOutliers int
		pairs         int
	)
	for _, short := range instruments {
		if short.Strike < minStrike || short.Strike > maxStrike {
			continue
		}

		// Calls pair down, puts pair up: the long leg sits one width
		// further out of the money than the short leg.
		longStrike := short.Strike - d.cfg.Width
		if short.CallPut == domain.Put {
			longStrike = short.Strike + d.cfg.Width
		}
		long, ok := byStrike[short.CallPut][strikeKey(longStrike)]
		if !ok {
			continue
		}

		marks, outliers, err := d.derivePair(ctx, short, long, dayStart, dayEnd)
		if err != nil {
			return err
		}
		if marks == 0 && outliers == 0 {
			continue
		}
		pairs++
		totalMarks += marks
		totalOutliers += outliers
	}

	observability.RecordOutliersFlagged(totalOutliers)
	observability.RecordMarksInserted("spread_marks", totalMarks)
	d.log.Info().
		Str("market_date", marketDate).
		Int("pairs", pairs).
		Int("spread_marks", totalMarks).
		Int("outliers", totalOutliers).
		Msg("spread marks derived")
	return nil
}

func (d *Deriver) derivePair(ctx context.Context, short, long *domain.Instrument, dayStart, dayEnd time.Time) (int, int, error) {
	shortSeries, err := d.instMarks.GetSeries(ctx, short.ID, dayStart, dayEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("short leg series %d: %w", short.ID, err)
	}
	longSeries, err := d.instMarks.GetSeries(ctx, long.ID, dayStart, dayEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("long leg series %d: %w", long.ID, err)
	}
	if len(shortSeries) == 0 || len(longSeries) == 0 {
		return 0, 0, nil
	}

	gridStart := shortSeries[0].Timestamp
	if longSeries[0].Timestamp.Before(gridStart) {
		gridStart = longSeries[0].Timestamp
	}
	gridEnd := shortSeries[len(shortSeries)-1].Timestamp
	if longSeries[len(longSeries)-1].Timestamp.After(gridEnd) {
		gridEnd = longSeries[len(longSeries)-1].Timestamp
	}

	shortFilled := ForwardFill(toSeries(shortSeries), gridStart, gridEnd, d.cfg.GridStep)
	longFilled := ForwardFill(toSeries(longSeries), gridStart, gridEnd, d.cfg.GridStep)

	longAt := make(map[int64]float64, len(longFilled))
	for _, p := range longFilled {
		longAt[p.Timestamp.Unix()] = p.Price
	}

	// Join on grid points where both legs are defined.
	var (
		timestamps []time.Time
		raw        []float64
	)
	for _, p := range shortFilled {
		longPrice, ok := longAt[p.Timestamp.Unix()]
		if !ok {
			continue
		}
		timestamps = append(timestamps, p.Timestamp)
		raw = append(raw, p.Price-longPrice)
	}
	if len(raw) == 0 {
		return 0, 0, nil
	}

	flags := FlagOutliers(raw, d.cfg.NeighborsBefore, d.cfg.NeighborsAfter, d.cfg.OutlierThreshold)
	var (
		kept     []float64
		keptTs   []time.Time
		outliers int
	)
	for i, v := range raw {
		if flags[i] {
			outliers++
			continue
		}
		kept = append(kept, clamp(v, 0, d.cfg.Width))
		keptTs = append(keptTs, timestamps[i])
	}
	if len(kept) == 0 {
		return 0, outliers, nil
	}
	rolling := RollingAverage(kept, d.cfg.RollingWindow)

	spreadID, err := d.spreads.Ensure(ctx, &domain.VerticalSpread{
		ShortInstrumentID: short.ID,
		LongInstrumentID:  long.ID,
		ShortStrike:       short.Strike,
		Width:             d.cfg.Width,
		CallPut:           short.CallPut,
		Expiry:            short.Expiry,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("ensure spread %d/%d: %w", short.ID, long.ID, err)
	}

	marks := make([]*domain.SpreadMark, len(kept))
	for i := range kept {
		marks[i] = &domain.SpreadMark{
			SpreadID:   spreadID,
			Timestamp:  keptTs[i],
			Price:      kept[i],
			RollingAvg: rolling[i],
		}
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].Timestamp.Before(marks[j].Timestamp) })

	inserted, err := d.spreadMarks.InsertMissing(ctx, marks)
	if err != nil {
		return 0, 0, fmt.Errorf("insert spread marks: %w", err)
	}
	return inserted, outliers, nil
}

func toSeries(marks []*domain.InstrumentMark) []SeriesPoint {
	out := make([]SeriesPoint, len(marks))
	for i, m := range marks {
		out[i] = SeriesPoint{Timestamp: m.Timestamp, Price: m.Price}
	}
	return out
}

func strikeKey(strike float64) int64 {
	return int64(math.Round(strike * 1000))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
