// Package stream runs the live market-data connection: login,
// subscription, frame demux into the sink fanout, and a watchdog that
// forces reconnects on silence or underlying price drift.
package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"optionflow/internal/brokerage"
	"optionflow/internal/domain"
	"optionflow/internal/observability"
	"optionflow/internal/sink"
)

// errTerminate signals an orderly shutdown of the run loop.
var errTerminate = errors.New("stream terminated")

// TokenSource provides access tokens for the streaming session.
type TokenSource interface {
	EnsureFresh(ctx context.Context, apiName string) (*domain.Token, error)
	ForceRefresh(ctx context.Context, apiName string) (*domain.Token, error)
}

// BrokerAPI is the REST surface the engine needs around the stream.
type BrokerAPI interface {
	UserPreferences(ctx context.Context, accessToken string) (*brokerage.StreamerInfo, error)
	Quote(ctx context.Context, accessToken, symbol string) (float64, error)
}

// Config parameterizes one streaming session.
type Config struct {
	UnderlyingSymbol string
	OptionRoot       string
	Expiry           time.Time
	StrikeStep       float64
	StrikeRange      float64

	// AdjustThreshold is the underlying price move, in points from the
	// subscription's base price, that forces a re-centered reconnect.
	AdjustThreshold float64
	// NoDataThreshold is the silence window after which the stream is
	// declared stale.
	NoDataThreshold  time.Duration
	WatchdogInterval time.Duration
	Backoff          time.Duration
	LoginSettle      time.Duration

	DataProfile  string
	TradeProfile string
	Fields       FieldMap
}

func (c *Config) applyDefaults() {
	if c.StrikeStep <= 0 {
		c.StrikeStep = 5
	}
	if c.StrikeRange <= 0 {
		c.StrikeRange = 100
	}
	if c.AdjustThreshold <= 0 {
		c.AdjustThreshold = 30
	}
	if c.NoDataThreshold <= 0 {
		c.NoDataThreshold = 30 * time.Second
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = 30 * time.Second
	}
	if c.Backoff <= 0 {
		c.Backoff = 10 * time.Second
	}
	if c.LoginSettle <= 0 {
		c.LoginSettle = 500 * time.Millisecond
	}
	if c.Fields == (FieldMap{}) {
		c.Fields = DefaultFieldMap()
	}
}

// Health is the engine's externally observable condition.
type Health struct {
	State     State
	LastFrame time.Time
}

// Engine drives one streaming session from first dial to the hard
// deadline, reconnecting with a fixed backoff in between. A single
// consuming goroutine reads frames; sinks are decoupled behind the
// fanout.
type Engine struct {
	cfg      Config
	tokens   TokenSource
	api      BrokerAPI
	gw       Gateway
	fanout   *sink.Fanout
	deadline time.Time
	log      zerolog.Logger

	state        atomic.Int32
	lastFrame    atomic.Int64
	basePrice    atomic.Uint64
	currentPrice atomic.Uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewEngine creates an engine for one session ending at deadline.
func NewEngine(cfg Config, tokens TokenSource, api BrokerAPI, gw Gateway, fanout *sink.Fanout, deadline time.Time, log zerolog.Logger) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		cfg:      cfg,
		tokens:   tokens,
		api:      api,
		gw:       gw,
		fanout:   fanout,
		deadline: deadline,
		log:      log.With().Str("component", "stream_engine").Logger(),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.setState(StateDisconnected)
	return e
}

// Run blocks until the hard deadline, Stop, or context cancellation.
// Connection failures and stale streams reconnect after a fixed
// backoff; they never end the run. The sinks are flushed before Run
// returns.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	e.fanout.Start()
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.fanout.Stop(flushCtx); err != nil {
			e.log.Error().Err(err).Msg("sink flush on shutdown failed")
		}
	}()

	deadlineTimer := time.NewTimer(time.Until(e.deadline))
	defer deadlineTimer.Stop()

	for {
		err := e.cycle(ctx, deadlineTimer.C)
		if errors.Is(err, errTerminate) {
			e.setState(StateTerminated)
			return nil
		}
		if err != nil {
			e.setState(StateError)
			e.log.Warn().Err(err).Msg("stream cycle ended")
		}

		e.setState(StateReconnecting)
		observability.RecordReconnect()
		select {
		case <-ctx.Done():
			e.setState(StateTerminated)
			return ctx.Err()
		case <-e.stopCh:
			e.setState(StateTerminated)
			return nil
		case <-deadlineTimer.C:
			e.setState(StateTerminated)
			return nil
		case <-time.After(e.cfg.Backoff):
		}
	}
}

// Stop ends the run, waits for it to unwind and flushes the sinks.
func (e *Engine) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.stopCh) })
	_ = e.gw.Close()
	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.fanout.Stop(ctx)
}

// Health reports the current state and the time of the last data frame.
func (e *Engine) Health() Health {
	return Health{
		State:     State(e.state.Load()),
		LastFrame: time.UnixMilli(e.lastFrame.Load()),
	}
}

// cycle runs one connection from dial to disconnect.
func (e *Engine) cycle(ctx context.Context, deadline <-chan time.Time) error {
	select {
	case <-ctx.Done():
		return errTerminate
	case <-e.stopCh:
		return errTerminate
	case <-deadline:
		return errTerminate
	default:
	}

	e.setState(StateAuthenticating)
	tradeTok, err := e.tokens.EnsureFresh(ctx, e.cfg.TradeProfile)
	if err != nil {
		return fmt.Errorf("trade token: %w", err)
	}
	info, err := e.api.UserPreferences(ctx, tradeTok.AccessToken)
	if err != nil {
		return fmt.Errorf("streamer info: %w", err)
	}

	if err := e.gw.Dial(ctx, info.SocketURL); err != nil {
		return err
	}
	defer e.gw.Close()
	frames := e.gw.Frames()

	login, err := encodeRequests(request{
		Service:    ServiceAdmin,
		Command:    "LOGIN",
		RequestID:  0,
		CustomerID: info.CustomerID,
		CorrelID:   info.CorrelID,
		Parameters: map[string]string{
			"Authorization":          tradeTok.AccessToken,
			"SchwabClientChannel":    info.Channel,
			"SchwabClientFunctionId": info.FunctionID,
		},
	})
	if err != nil {
		return err
	}
	if err := e.gw.Send(ctx, login); err != nil {
		return fmt.Errorf("stream login: %w", err)
	}
	if err := e.wait(ctx, deadline, e.cfg.LoginSettle); err != nil {
		return err
	}

	e.setState(StateSubscribing)
	price, err := e.fetchUnderlyingQuote(ctx)
	if err != nil {
		return fmt.Errorf("underlying quote: %w", err)
	}
	set := BuildSubscriptionSet(e.cfg.UnderlyingSymbol, e.cfg.OptionRoot, e.cfg.Expiry, price, e.cfg.StrikeStep, e.cfg.StrikeRange)
	e.basePrice.Store(math.Float64bits(price))
	e.currentPrice.Store(math.Float64bits(price))

	subs, err := encodeRequests(
		request{
			Service:    ServiceOptions,
			Command:    "SUBS",
			RequestID:  1,
			CustomerID: info.CustomerID,
			CorrelID:   info.CorrelID,
			Parameters: map[string]string{"keys": set.OptionKeys(), "fields": e.cfg.Fields.OptionFields()},
		},
		request{
			Service:    ServiceEquities,
			Command:    "SUBS",
			RequestID:  2,
			CustomerID: info.CustomerID,
			CorrelID:   info.CorrelID,
			Parameters: map[string]string{"keys": set.Underlying, "fields": e.cfg.Fields.EquityFields()},
		},
	)
	if err != nil {
		return err
	}
	if err := e.gw.Send(ctx, subs); err != nil {
		return fmt.Errorf("stream subscribe: %w", err)
	}
	observability.SetSubscriptionSize(set.Size())
	e.log.Info().
		Float64("base_price", price).
		Int("symbols", set.Size()).
		Msg("subscribed")

	e.setState(StateStreaming)
	e.lastFrame.Store(time.Now().UnixMilli())

	watchdogDone := make(chan struct{})
	go e.watchdog(watchdogDone)
	defer close(watchdogDone)

	for {
		select {
		case <-ctx.Done():
			return errTerminate
		case <-e.stopCh:
			return errTerminate
		case <-deadline:
			return errTerminate
		case raw, ok := <-frames:
			if !ok {
				return fmt.Errorf("stream connection closed")
			}
			if err := e.handleFrame(raw); err != nil {
				return err
			}
		}
	}
}

// fetchUnderlyingQuote fetches the centering quote, retrying exactly
// once with a forced token refresh on an authorization rejection.
func (e *Engine) fetchUnderlyingQuote(ctx context.Context) (float64, error) {
	tok, err := e.tokens.EnsureFresh(ctx, e.cfg.DataProfile)
	if err != nil {
		return 0, err
	}
	price, err := e.api.Quote(ctx, tok.AccessToken, e.cfg.UnderlyingSymbol)
	if errors.Is(err, brokerage.ErrUnauthorized) {
		e.log.Warn().Msg("quote rejected, forcing token refresh and retrying once")
		tok, err = e.tokens.ForceRefresh(ctx, e.cfg.DataProfile)
		if err != nil {
			return 0, err
		}
		price, err = e.api.Quote(ctx, tok.AccessToken, e.cfg.UnderlyingSymbol)
	}
	return price, err
}

func (e *Engine) handleFrame(raw []byte) error {
	now := time.Now()
	ticks, fatal, err := decodeTicks(raw, e.cfg.Fields, now)
	if err != nil {
		e.log.Warn().Err(err).Msg("undecodable frame skipped")
		return nil
	}
	observability.RecordFrameReceived(float64(now.Unix()))
	if len(ticks) > 0 {
		e.lastFrame.Store(now.UnixMilli())
	}

	for _, t := range ticks {
		if t.Service == ServiceEquities && t.Symbol == e.cfg.UnderlyingSymbol {
			e.currentPrice.Store(math.Float64bits(t.Mark))
		}
		if err := e.fanout.Publish(t); err != nil {
			e.log.Warn().Err(err).Str("symbol", t.Symbol).Msg("tick publish backpressure")
		}
	}

	if fatal {
		return fmt.Errorf("feed reported invalid service")
	}
	return nil
}

// watchdog closes the connection when the stream goes silent or the
// underlying drifts past the adjust threshold. Closing the socket
// surfaces in the run loop as a closed frame channel, which reconnects
// with a re-centered subscription.
func (e *Engine) watchdog(done <-chan struct{}) {
	ticker := time.NewTicker(e.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			age := time.Since(time.UnixMilli(e.lastFrame.Load()))
			if age > e.cfg.NoDataThreshold {
				e.setState(StateStale)
				observability.RecordStale()
				e.log.Warn().Dur("silence", age).Msg("stream stale, forcing reconnect")
				_ = e.gw.Close()
				return
			}

			base := math.Float64frombits(e.basePrice.Load())
			current := math.Float64frombits(e.currentPrice.Load())
			if drift := math.Abs(current - base); drift >= e.cfg.AdjustThreshold {
				observability.RecordResubscription()
				e.log.Info().
					Float64("base_price", base).
					Float64("current_price", current).
					Msg("underlying drifted, re-centering subscription")
				_ = e.gw.Close()
				return
			}
		}
	}
}

func (e *Engine) wait(ctx context.Context, deadline <-chan time.Time, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errTerminate
	case <-e.stopCh:
		return errTerminate
	case <-deadline:
		return errTerminate
	case <-timer.C:
		return nil
	}
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	observability.SetEngineState(int(s))
}
