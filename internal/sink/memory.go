package sink

import (
	"context"
	"sync"

	"optionflow/internal/domain"
)

// MemoryCache is an in-memory QuoteCache for tests.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]domain.RawTick
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]domain.RawTick)}
}

// Put overwrites the cached quote for the tick's symbol.
func (c *MemoryCache) Put(_ context.Context, tick *domain.RawTick) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[tick.Symbol] = *tick
	return nil
}

// Get returns the cached quote for a symbol.
func (c *MemoryCache) Get(symbol string) (domain.RawTick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.data[symbol]
	return t, ok
}

// Len returns the number of cached symbols.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Close is a no-op.
func (c *MemoryCache) Close() error { return nil }

var _ QuoteCache = (*MemoryCache)(nil)

// MemoryLog is an in-memory TickLog for tests.
type MemoryLog struct {
	mu      sync.RWMutex
	ticks   []*domain.RawTick
	flushes int
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append records one tick.
func (l *MemoryLog) Append(_ context.Context, tick *domain.RawTick) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	tickCopy := *tick
	l.ticks = append(l.ticks, &tickCopy)
	return nil
}

// Flush counts flush calls.
func (l *MemoryLog) Flush(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushes++
	return nil
}

// Close is a no-op.
func (l *MemoryLog) Close() error { return nil }

// Ticks returns a copy of everything appended so far.
func (l *MemoryLog) Ticks() []*domain.RawTick {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*domain.RawTick, len(l.ticks))
	copy(out, l.ticks)
	return out
}

// Flushes returns how many times Flush was called.
func (l *MemoryLog) Flushes() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.flushes
}

var _ TickLog = (*MemoryLog)(nil)
