// Package sessionclock answers whether the market is open at a point in
// time, using a preloaded calendar of session windows.
package sessionclock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// Clock is a pure lookup over preloaded session windows. Dates with no
// loaded window read as closed, never as an error, so callers fall back
// to a conservative default instead of blocking.
type Clock struct {
	store storage.SessionWindowStore
	loc   *time.Location

	mu      sync.RWMutex
	windows map[string]*domain.SessionWindow
}

// New creates a clock reading calendar rows from the given store.
// Times are interpreted in loc when deriving the market date.
func New(store storage.SessionWindowStore, loc *time.Location) *Clock {
	return &Clock{
		store:   store,
		loc:     loc,
		windows: make(map[string]*domain.SessionWindow),
	}
}

func cacheKey(marketDate, sessionType string) string {
	return marketDate + "|" + sessionType
}

// Reload loads the windows for one market date into the clock. Session
// types missing from the calendar are simply not cached; any other
// store failure is returned so the caller can retry.
func (c *Clock) Reload(ctx context.Context, marketDate string, sessionTypes ...string) error {
	if len(sessionTypes) == 0 {
		sessionTypes = []string{domain.SessionRegular}
	}

	loaded := make(map[string]*domain.SessionWindow, len(sessionTypes))
	for _, st := range sessionTypes {
		w, err := c.store.GetWindow(ctx, marketDate, st)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reload calendar for %s/%s: %w", marketDate, st, err)
		}
		loaded[cacheKey(marketDate, st)] = w
	}

	c.mu.Lock()
	for k, w := range loaded {
		c.windows[k] = w
	}
	c.mu.Unlock()

	return nil
}

// IsOpen reports whether the session is open at now. A date whose
// calendar has not been loaded reads as closed.
func (c *Clock) IsOpen(now time.Time, sessionType string) bool {
	w, err := c.WindowFor(now.In(c.loc).Format(domain.DateFormat), sessionType)
	if err != nil {
		return false
	}
	return w.Contains(now)
}

// WindowFor returns the loaded window for (marketDate, sessionType).
// Returns storage.ErrNotFound when the calendar has not been loaded for
// that date.
func (c *Clock) WindowFor(marketDate, sessionType string) (*domain.SessionWindow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w, ok := c.windows[cacheKey(marketDate, sessionType)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	windowCopy := *w
	return &windowCopy, nil
}
