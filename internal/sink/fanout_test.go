package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"optionflow/internal/domain"
)

func tick(symbol string, mark float64) *domain.RawTick {
	return &domain.RawTick{
		Symbol:       symbol,
		Service:      "LEVELONE_OPTIONS",
		Mark:         mark,
		QuoteTimeMs:  1700000000000,
		ReceivedAtMs: 1700000000100,
	}
}

func TestFanoutDeliversToBothSinks(t *testing.T) {
	cache := NewMemoryCache()
	log := NewMemoryLog()
	f := NewFanout(cache, []TickLog{log}, 16, 16, time.Second, zerolog.Nop())
	f.Start()

	for i := 0; i < 5; i++ {
		if err := f.Publish(tick(fmt.Sprintf("SYM%d", i), float64(i))); err != nil {
			t.Fatalf("Publish() error: %v", err)
		}
	}
	if err := f.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if cache.Len() != 5 {
		t.Errorf("cache holds %d symbols, want 5", cache.Len())
	}
	if got := len(log.Ticks()); got != 5 {
		t.Errorf("log holds %d ticks, want 5", got)
	}
	if log.Flushes() == 0 {
		t.Error("Stop() did not flush the durable log")
	}
}

func TestFanoutCacheOverwrites(t *testing.T) {
	cache := NewMemoryCache()
	f := NewFanout(cache, nil, 16, 16, time.Second, zerolog.Nop())
	f.Start()

	if err := f.Publish(tick("SPXW  250115C05900000", 12.5)); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if err := f.Publish(tick("SPXW  250115C05900000", 12.9)); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if err := f.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	got, ok := cache.Get("SPXW  250115C05900000")
	if !ok {
		t.Fatal("symbol missing from cache")
	}
	if got.Mark != 12.9 {
		t.Errorf("cached mark = %v, want 12.9 (last write wins)", got.Mark)
	}
}

// blockingLog blocks every Append until released.
type blockingLog struct {
	MemoryLog
	release chan struct{}
	once    sync.Once
}

func (l *blockingLog) Append(ctx context.Context, tick *domain.RawTick) error {
	<-l.release
	return l.MemoryLog.Append(ctx, tick)
}

func TestFanoutLogBackpressure(t *testing.T) {
	blocked := &blockingLog{release: make(chan struct{})}
	f := NewFanout(NewMemoryCache(), []TickLog{blocked}, 4, 1, 50*time.Millisecond, zerolog.Nop())
	f.Start()

	// One tick in flight inside the worker plus one filling the queue.
	// Everything after that must time out with ErrBackpressure.
	var sawBackpressure bool
	for i := 0; i < 4; i++ {
		if err := f.Publish(tick(fmt.Sprintf("SYM%d", i), 1)); err != nil {
			if !errors.Is(err, ErrBackpressure) {
				t.Fatalf("Publish() error = %v, want ErrBackpressure", err)
			}
			sawBackpressure = true
		}
	}
	if !sawBackpressure {
		t.Error("no Publish() call surfaced ErrBackpressure with a stuck log sink")
	}

	close(blocked.release)
	if err := f.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

func TestFanoutCacheStallDoesNotStopLog(t *testing.T) {
	// A cache sink that takes its time must not prevent log appends.
	slowCache := &slowPutCache{MemoryCache: *NewMemoryCache(), delay: 20 * time.Millisecond}
	log := NewMemoryLog()
	f := NewFanout(slowCache, []TickLog{log}, 1, 64, time.Second, zerolog.Nop())
	f.Start()

	for i := 0; i < 20; i++ {
		if err := f.Publish(tick(fmt.Sprintf("SYM%d", i), float64(i))); err != nil {
			t.Fatalf("Publish() error: %v", err)
		}
	}
	if err := f.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if got := len(log.Ticks()); got != 20 {
		t.Errorf("log holds %d ticks, want all 20 despite slow cache", got)
	}
}

type slowPutCache struct {
	MemoryCache
	delay time.Duration
}

func (c *slowPutCache) Put(ctx context.Context, tick *domain.RawTick) error {
	time.Sleep(c.delay)
	return c.MemoryCache.Put(ctx, tick)
}

func TestFanoutStopDuringBlockedPublish(t *testing.T) {
	blocked := &blockingLog{release: make(chan struct{})}
	f := NewFanout(NewMemoryCache(), []TickLog{blocked}, 4, 1, 50*time.Millisecond, zerolog.Nop())
	f.Start()

	// First tick occupies the worker, second fills the depth-1 queue,
	// so the third parks inside its timed send.
	_ = f.Publish(tick("SYM0", 1))
	_ = f.Publish(tick("SYM1", 1))

	published := make(chan error, 1)
	go func() { published <- f.Publish(tick("SYM2", 1)) }()
	time.Sleep(10 * time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- f.Stop(context.Background()) }()
	close(blocked.release)

	// The pending send must resolve cleanly, as a delivery or a
	// backpressure timeout, never as a send on a closed channel.
	if err := <-published; err != nil && !errors.Is(err, ErrBackpressure) {
		t.Fatalf("Publish() during Stop error: %v", err)
	}
	if err := <-stopped; err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

func TestFanoutPublishAfterStopIsNoop(t *testing.T) {
	f := NewFanout(NewMemoryCache(), nil, 4, 4, time.Second, zerolog.Nop())
	f.Start()
	if err := f.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if err := f.Publish(tick("SYM", 1)); err != nil {
		t.Fatalf("Publish() after Stop error: %v", err)
	}
}
