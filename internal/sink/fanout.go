package sink

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"optionflow/internal/domain"
	"optionflow/internal/observability"
)

// Fanout decouples the engine's single consuming task from the sinks
// through two bounded queues. The cache queue drops the oldest buffered
// tick on overflow (latest value matters most); the log queue blocks
// with a bounded timeout and surfaces ErrBackpressure if exceeded
// (durability matters most). A failure in one path never stops the
// other.
type Fanout struct {
	cache      QuoteCache
	logs       []TickLog
	cacheDepth int
	logDepth   int
	logTimeout time.Duration
	log        zerolog.Logger

	mu      sync.Mutex
	cacheCh chan *domain.RawTick
	logCh   chan *domain.RawTick
	pubs    sync.WaitGroup
	wg      sync.WaitGroup
}

// NewFanout creates a fanout over one cache and any number of durable
// logs.
func NewFanout(cache QuoteCache, logs []TickLog, cacheDepth, logDepth int, logTimeout time.Duration, log zerolog.Logger) *Fanout {
	if cacheDepth <= 0 {
		cacheDepth = 1024
	}
	if logDepth <= 0 {
		logDepth = 4096
	}
	if logTimeout <= 0 {
		logTimeout = 2 * time.Second
	}
	return &Fanout{
		cache:      cache,
		logs:       logs,
		cacheDepth: cacheDepth,
		logDepth:   logDepth,
		logTimeout: logTimeout,
		log:        log.With().Str("component", "sink_fanout").Logger(),
	}
}

// Start launches the two sink workers. Safe to call again after Stop.
func (f *Fanout) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cacheCh != nil {
		return
	}

	f.cacheCh = make(chan *domain.RawTick, f.cacheDepth)
	f.logCh = make(chan *domain.RawTick, f.logDepth)

	f.wg.Add(2)
	go f.cacheWorker(f.cacheCh)
	go f.logWorker(f.logCh)
}

// Publish hands one tick to both queues. The returned error is only
// ever ErrBackpressure from the log path; cache overflow is absorbed by
// dropping the oldest buffered tick.
func (f *Fanout) Publish(tick *domain.RawTick) error {
	f.mu.Lock()
	cacheCh, logCh := f.cacheCh, f.logCh
	if cacheCh == nil {
		f.mu.Unlock()
		return nil
	}
	// Registered under the mutex so Stop cannot close these channels
	// while a send is pending.
	f.pubs.Add(1)
	f.mu.Unlock()
	defer f.pubs.Done()

	select {
	case cacheCh <- tick:
	default:
		select {
		case <-cacheCh:
			observability.RecordCacheDrop()
		default:
		}
		select {
		case cacheCh <- tick:
		default:
			observability.RecordCacheDrop()
		}
	}

	select {
	case logCh <- tick:
		return nil
	default:
	}

	timer := time.NewTimer(f.logTimeout)
	defer timer.Stop()
	select {
	case logCh <- tick:
		return nil
	case <-timer.C:
		observability.RecordLogBackpressure()
		return ErrBackpressure
	}
}

// Stop drains both queues, waits for the workers and flushes every
// durable log. Pending writes complete before Stop returns.
func (f *Fanout) Stop(ctx context.Context) error {
	f.mu.Lock()
	cacheCh, logCh := f.cacheCh, f.logCh
	f.cacheCh, f.logCh = nil, nil
	f.mu.Unlock()
	if cacheCh == nil {
		return nil
	}

	// New publishers now see nil channels; wait out the ones that
	// grabbed these before closing them.
	f.pubs.Wait()
	close(cacheCh)
	close(logCh)
	f.wg.Wait()

	var firstErr error
	for _, l := range f.logs {
		if err := l.Flush(ctx); err != nil {
			f.log.Error().Err(err).Msg("log flush on stop failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (f *Fanout) cacheWorker(ch <-chan *domain.RawTick) {
	defer f.wg.Done()
	for tick := range ch {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := f.cache.Put(ctx, tick); err != nil {
			f.log.Warn().Err(err).Str("symbol", tick.Symbol).Msg("cache write failed")
		} else {
			observability.RecordTickCached()
		}
		cancel()
	}
}

func (f *Fanout) logWorker(ch <-chan *domain.RawTick) {
	defer f.wg.Done()
	for tick := range ch {
		for _, l := range f.logs {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := l.Append(ctx, tick); err != nil {
				f.log.Error().Err(err).Str("symbol", tick.Symbol).Msg("log append failed")
			} else {
				observability.RecordTickLogged()
			}
			cancel()
		}
	}
}
