package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"optionflow/internal/notify"
	"optionflow/internal/observability"
	"optionflow/internal/stream"
)

// Target is the supervised engine as the monitor sees it, normally the
// controller.
type Target interface {
	Health() (stream.Health, time.Time, bool)
	Restart(ctx context.Context) error
}

// MonitorConfig parameterizes the health loop.
type MonitorConfig struct {
	PollInterval time.Duration
	// StartupGrace suppresses checks while a fresh engine is still
	// logging in and subscribing.
	StartupGrace time.Duration
	// StaleLimit is the monitor's own silence bound. It sits well above
	// the engine watchdog's threshold; tripping it means the engine's
	// self-healing is wedged.
	StaleLimit   time.Duration
	FailureLimit int
}

func (c *MonitorConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.StartupGrace <= 0 {
		c.StartupGrace = 2 * time.Minute
	}
	if c.StaleLimit <= 0 {
		c.StaleLimit = 2 * time.Minute
	}
	if c.FailureLimit <= 0 {
		c.FailureLimit = 2
	}
}

// Monitor restarts the engine after consecutive failed health checks
// and tells the operator it did so. It shares no state with the
// controller's scheduling loop beyond the Target boundary.
type Monitor struct {
	cfg      MonitorConfig
	target   Target
	notifier notify.Notifier
	now      func() time.Time
	log      zerolog.Logger

	unhealthy int
}

// NewMonitor wires a monitor over the target.
func NewMonitor(cfg MonitorConfig, target Target, notifier notify.Notifier, log zerolog.Logger) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		cfg:      cfg,
		target:   target,
		notifier: notifier,
		now:      time.Now,
		log:      log.With().Str("component", "stream_monitor").Logger(),
	}
}

// Run polls until the context ends.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	health, startedAt, active := m.target.Health()
	if !active {
		m.unhealthy = 0
		return
	}
	if m.now().Sub(startedAt) < m.cfg.StartupGrace {
		return
	}

	if !m.isUnhealthy(health) {
		m.unhealthy = 0
		return
	}

	m.unhealthy++
	m.log.Warn().
		Str("state", health.State.String()).
		Time("last_frame", health.LastFrame).
		Int("consecutive", m.unhealthy).
		Msg("engine health check failed")
	if m.unhealthy < m.cfg.FailureLimit {
		return
	}
	m.unhealthy = 0

	subject := "stream engine restarted"
	body := fmt.Sprintf("engine unhealthy for %d consecutive checks (state %s, last frame %s), restarting",
		m.cfg.FailureLimit, health.State, health.LastFrame.Format(time.RFC3339))
	if err := m.notifier.Notify(ctx, subject, body); err != nil {
		m.log.Error().Err(err).Msg("restart notification failed")
	}
	if err := m.target.Restart(ctx); err != nil {
		m.log.Error().Err(err).Msg("engine restart failed")
		return
	}
	observability.RecordEngineRestart()
}

// isUnhealthy classifies a health sample. Transient connection states
// are healthy; the engine's own backoff covers them.
func (m *Monitor) isUnhealthy(h stream.Health) bool {
	switch h.State {
	case stream.StateError, stream.StateTerminated:
		return true
	case stream.StateStreaming, stream.StateStale:
		return m.now().Sub(h.LastFrame) > m.cfg.StaleLimit
	default:
		return false
	}
}
