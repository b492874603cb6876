// Package supervisor keeps the streaming engine aligned with the
// trading calendar. The controller decides when an engine should exist;
// the monitor decides whether the existing one is healthy. The two run
// as independent loops so a wedged engine cannot take the scheduling
// logic down with it.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"optionflow/internal/domain"
	"optionflow/internal/observability"
	"optionflow/internal/storage"
	"optionflow/internal/stream"
)

// Runner is the engine lifecycle as the supervisor drives it.
type Runner interface {
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() stream.Health
}

// EngineFactory builds a fresh runner for the session ending at
// deadline. Called once per engine start; a restart gets a new runner.
// A construction error skips the start; the next tick retries.
type EngineFactory func(window *domain.SessionWindow, deadline time.Time) (Runner, error)

// SessionSource is the calendar lookup the controller schedules by.
type SessionSource interface {
	Reload(ctx context.Context, marketDate string, sessionTypes ...string) error
	WindowFor(marketDate, sessionType string) (*domain.SessionWindow, error)
}

// CalendarSync pulls the upstream trading calendar into local state for
// one market date.
type CalendarSync interface {
	Sync(ctx context.Context, marketDate string) error
}

// ControllerConfig parameterizes the scheduling loop.
type ControllerConfig struct {
	PollInterval time.Duration
	// PreOpenPad starts the engine this long before the session opens
	// so the first ticks of the session are not missed.
	PreOpenPad  time.Duration
	SessionType string
	Location    *time.Location
}

func (c *ControllerConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.PreOpenPad < 0 {
		c.PreOpenPad = 0
	}
	if c.SessionType == "" {
		c.SessionType = domain.SessionRegular
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// Controller starts the engine inside the session window (padded at the
// open) and stops it outside. Every poll tick is independent; a failed
// tick logs and waits for the next one, it never ends the loop.
type Controller struct {
	cfg      ControllerConfig
	sessions SessionSource
	calendar CalendarSync
	factory  EngineFactory
	now      func() time.Time
	log      zerolog.Logger

	mu         sync.Mutex
	runner     Runner
	runDone    chan struct{}
	startedAt  time.Time
	loadedDate string
}

// NewController wires a controller over the calendar and engine factory.
func NewController(cfg ControllerConfig, sessions SessionSource, calendar CalendarSync, factory EngineFactory, log zerolog.Logger) *Controller {
	cfg.applyDefaults()
	return &Controller{
		cfg:      cfg,
		sessions: sessions,
		calendar: calendar,
		factory:  factory,
		now:      time.Now,
		log:      log.With().Str("component", "stream_controller").Logger(),
	}
}

// Run polls until the context ends, then stops any running engine.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			c.stopRunner(stopCtx, "controller shutdown")
			return ctx.Err()
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick is one scheduling decision. Calendar failures leave the loaded
// date unset so the next tick retries at the fixed poll interval. Both
// the poll loop and the monitor's Restart run ticks, so the loaded
// date lives under the mutex.
func (c *Controller) tick(ctx context.Context) {
	now := c.now().In(c.cfg.Location)
	marketDate := now.Format(domain.DateFormat)

	c.mu.Lock()
	loaded := c.loadedDate
	c.mu.Unlock()
	if loaded != marketDate {
		if err := c.syncCalendar(ctx, marketDate); err != nil {
			c.log.Error().Err(err).Str("market_date", marketDate).Msg("calendar sync failed, retrying next tick")
			return
		}
		c.mu.Lock()
		c.loadedDate = marketDate
		c.mu.Unlock()
	}

	window, err := c.sessions.WindowFor(marketDate, c.cfg.SessionType)
	if errors.Is(err, storage.ErrNotFound) {
		c.stopRunner(ctx, "no session window")
		return
	}
	if err != nil {
		c.log.Error().Err(err).Msg("session lookup failed")
		return
	}
	if !window.IsOpen {
		c.stopRunner(ctx, "market closed")
		return
	}

	start := window.StartTime.Add(-c.cfg.PreOpenPad)
	if now.Before(start) || !now.Before(window.EndTime) {
		c.stopRunner(ctx, "outside session window")
		return
	}

	c.ensureRunning(ctx, window)
}

func (c *Controller) syncCalendar(ctx context.Context, marketDate string) error {
	if err := c.calendar.Sync(ctx, marketDate); err != nil {
		observability.RecordCalendarReload("error")
		return err
	}
	if err := c.sessions.Reload(ctx, marketDate, c.cfg.SessionType); err != nil {
		observability.RecordCalendarReload("error")
		return err
	}
	observability.RecordCalendarReload("ok")
	return nil
}

func (c *Controller) ensureRunning(ctx context.Context, window *domain.SessionWindow) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runner != nil {
		select {
		case <-c.runDone:
			// Engine ended inside the window. The deadline stop lands
			// outside the window, so this is abnormal: replace it.
			c.log.Warn().Msg("stream engine ended inside session window, replacing")
			c.runner, c.runDone = nil, nil
		default:
			return
		}
	}

	runner, err := c.factory(window, window.EndTime)
	if err != nil {
		c.log.Error().Err(err).Str("market_date", window.MarketDate).Msg("engine construction failed")
		return
	}
	done := make(chan struct{})
	c.runner = runner
	c.runDone = done
	c.startedAt = c.now()

	c.log.Info().
		Str("market_date", window.MarketDate).
		Time("session_end", window.EndTime).
		Msg("starting stream engine")

	go func() {
		defer close(done)
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error().Err(err).Msg("stream engine exited with error")
		}
	}()
}

func (c *Controller) stopRunner(ctx context.Context, reason string) {
	c.mu.Lock()
	runner, done := c.runner, c.runDone
	c.runner, c.runDone = nil, nil
	c.mu.Unlock()
	if runner == nil {
		return
	}

	c.log.Info().Str("reason", reason).Msg("stopping stream engine")
	if err := runner.Stop(ctx); err != nil {
		c.log.Error().Err(err).Msg("engine stop failed")
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Health reports the active engine's health. The second return is false
// when no engine is supposed to be running.
func (c *Controller) Health() (stream.Health, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runner == nil {
		return stream.Health{}, time.Time{}, false
	}
	return c.runner.Health(), c.startedAt, true
}

// Restart tears the current engine down and immediately starts a fresh
// one if the session is still open. Called by the monitor.
func (c *Controller) Restart(ctx context.Context) error {
	c.mu.Lock()
	active := c.runner != nil
	c.mu.Unlock()
	if !active {
		return fmt.Errorf("restart requested with no active engine")
	}

	c.stopRunner(ctx, "monitor restart")
	c.tick(ctx)
	return nil
}
