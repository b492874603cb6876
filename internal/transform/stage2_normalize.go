package transform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"optionflow/internal/domain"
	"optionflow/internal/observability"
	"optionflow/internal/storage"
)

// SessionLookup answers which window the session occupies on a date.
type SessionLookup interface {
	WindowFor(marketDate, sessionType string) (*domain.SessionWindow, error)
}

// NormalizeConfig parameterizes stage 2.
type NormalizeConfig struct {
	UnderlyingSymbol string
	SessionType      string
	Location         *time.Location
}

func (c *NormalizeConfig) applyDefaults() {
	if c.SessionType == "" {
		c.SessionType = domain.SessionRegular
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// Normalizer is stage 2: staged raw ticks to per-instrument and
// underlying mark rows. Timestamps are quote times converted to the
// session zone and truncated to seconds; multiple ticks in one second
// keep the highest price. Existing mark rows always win over re-runs.
type Normalizer struct {
	cfg         NormalizeConfig
	staging     storage.StagingStore
	instruments storage.InstrumentStore
	instMarks   storage.InstrumentMarkStore
	undMarks    storage.UnderlyingMarkStore
	sessions    SessionLookup
	log         zerolog.Logger
}

// NewNormalizer wires stage 2 over the stores.
func NewNormalizer(cfg NormalizeConfig, staging storage.StagingStore, instruments storage.InstrumentStore, instMarks storage.InstrumentMarkStore, undMarks storage.UnderlyingMarkStore, sessions SessionLookup, log zerolog.Logger) *Normalizer {
	cfg.applyDefaults()
	return &Normalizer{
		cfg:         cfg,
		staging:     staging,
		instruments: instruments,
		instMarks:   instMarks,
		undMarks:    undMarks,
		sessions:    sessions,
		log:         log.With().Str("component", "transform_normalize").Logger(),
	}
}

// Run normalizes all staged ticks for one market date and clears the
// staging table on success.
func (n *Normalizer) Run(ctx context.Context, marketDate string) error {
	started := time.Now()
	err := n.run(ctx, marketDate)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordStageRun("normalize", status, time.Since(started).Seconds())
	return err
}

func (n *Normalizer) run(ctx context.Context, marketDate string) error {
	ticks, err := n.staging.GetByDate(ctx, marketDate)
	if err != nil {
		return fmt.Errorf("read staged ticks for %s: %w", marketDate, err)
	}

	window, err := n.sessions.WindowFor(marketDate, n.cfg.SessionType)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNoSessionWindow, marketDate, n.cfg.SessionType)
	}
	if err != nil {
		return fmt.Errorf("session window for %s: %w", marketDate, err)
	}

	type instrumentBucket struct {
		key    domain.OptionKey
		prices map[time.Time]float64
	}
	optionBuckets := make(map[string]*instrumentBucket)
	underlying := make(map[time.Time]float64)
	dropped := map[string]int{}

	for _, tick := range ticks {
		if tick.QuoteTimeMs <= 0 {
			dropped["missing_quote_time"]++
			continue
		}
		ts := time.UnixMilli(tick.QuoteTimeMs).In(n.cfg.Location).Truncate(time.Second)
		if !window.Contains(ts) {
			dropped["outside_session"]++
			continue
		}

		if tick.Symbol == n.cfg.UnderlyingSymbol {
			if tick.Mark > underlying[ts] {
				underlying[ts] = tick.Mark
			}
			continue
		}

		key, err := domain.ParseOptionSymbol(tick.Symbol)
		if err != nil {
			dropped["unparseable_symbol"]++
			continue
		}
		bucket, ok := optionBuckets[tick.Symbol]
		if !ok {
			bucket = &instrumentBucket{key: key, prices: make(map[time.Time]float64)}
			optionBuckets[tick.Symbol] = bucket
		}
		if tick.Mark > bucket.prices[ts] {
			bucket.prices[ts] = tick.Mark
		}
	}

	for reason, count := range dropped {
		observability.RecordRowsDropped(reason, count)
		n.log.Warn().Str("reason", reason).Int("rows", count).Msg("ticks dropped during normalization")
	}

	symbols := make([]string, 0, len(optionBuckets))
	for sym := range optionBuckets {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var instMarks []*domain.InstrumentMark
	for _, sym := range symbols {
		bucket := optionBuckets[sym]
		id, err := n.instruments.Ensure(ctx, &domain.Instrument{
			Root:    bucket.key.Root,
			Strike:  bucket.key.Strike,
			CallPut: bucket.key.CallPut,
			Expiry:  bucket.key.Expiry,
		})
		if err != nil {
			return fmt.Errorf("ensure instrument %s: %w", sym, err)
		}
		for ts, price := range bucket.prices {
			instMarks = append(instMarks, &domain.InstrumentMark{
				InstrumentID: id,
				Timestamp:    ts,
				Price:        price,
			})
		}
	}
	sort.Slice(instMarks, func(i, j int) bool {
		if instMarks[i].InstrumentID != instMarks[j].InstrumentID {
			return instMarks[i].InstrumentID < instMarks[j].InstrumentID
		}
		return instMarks[i].Timestamp.Before(instMarks[j].Timestamp)
	})

	var undMarks []*domain.UnderlyingMark
	for ts, price := range underlying {
		undMarks = append(undMarks, &domain.UnderlyingMark{
			Symbol:    n.cfg.UnderlyingSymbol,
			Timestamp: ts,
			Price:     price,
		})
	}
	sort.Slice(undMarks, func(i, j int) bool { return undMarks[i].Timestamp.Before(undMarks[j].Timestamp) })

	instInserted, err := n.instMarks.InsertMissing(ctx, instMarks)
	if err != nil {
		return fmt.Errorf("insert instrument marks: %w", err)
	}
	observability.RecordMarksInserted("instrument_marks", instInserted)

	undInserted, err := n.undMarks.InsertMissing(ctx, undMarks)
	if err != nil {
		return fmt.Errorf("insert underlying marks: %w", err)
	}
	observability.RecordMarksInserted("underlying_marks", undInserted)

	if err := n.staging.Clear(ctx, marketDate); err != nil {
		return fmt.Errorf("clear staging for %s: %w", marketDate, err)
	}

	n.log.Info().
		Str("market_date", marketDate).
		Int("instruments", len(optionBuckets)).
		Int("instrument_marks", instInserted).
		Int("underlying_marks", undInserted).
		Msg("staged ticks normalized")
	return nil
}
