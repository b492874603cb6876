// streamd runs the live market-data plane: the session-gated stream
// supervisor, the ingestion engine and its sinks, plus the metrics
// endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"optionflow/internal/auth"
	"optionflow/internal/brokerage"
	"optionflow/internal/config"
	"optionflow/internal/domain"
	"optionflow/internal/logging"
	"optionflow/internal/notify"
	"optionflow/internal/observability"
	"optionflow/internal/sessionclock"
	"optionflow/internal/sink"
	"optionflow/internal/storage/migrations"
	pgstore "optionflow/internal/storage/postgres"
	"optionflow/internal/stream"
	"optionflow/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("streamd exited")
	}
	logger.Info().Msg("streamd stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	broker := brokerage.NewClient(brokerage.Config{
		MarketDataURL:    cfg.Brokerage.MarketDataURL,
		AuthURL:          cfg.Brokerage.AuthURL,
		ClientID:         cfg.Brokerage.ClientID,
		ClientSecret:     cfg.Brokerage.ClientSecret,
		RequestTimeout:   cfg.Brokerage.RequestTimeout,
		RefreshTokenLife: cfg.Brokerage.RefreshTokenLife,
	}, logger)
	tokens := auth.NewStore(pgstore.NewTokenStore(pool), broker, cfg.Auth.RefreshThreshold, logger)

	cache, err := sink.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer cache.Close()

	tickLog, err := sink.NewParquetLog(cfg.Sink.LogDir, loc)
	if err != nil {
		return fmt.Errorf("open daily tick log: %w", err)
	}
	defer tickLog.Close()

	logs := []sink.TickLog{tickLog}
	if cfg.ClickHouse.Enabled {
		dsn := fmt.Sprintf("clickhouse://%s:%s@%s/%s", cfg.ClickHouse.User, cfg.ClickHouse.Password, cfg.ClickHouse.Addr, cfg.ClickHouse.Database)
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connect clickhouse: %w", err)
		}
		archive := sink.NewClickHouseArchive(conn, loc)
		defer archive.Close()
		logs = append(logs, archive)
	}
	fanout := sink.NewFanout(cache, logs, cfg.Sink.CacheDepth, cfg.Sink.LogDepth, cfg.Sink.LogTimeout, logger)

	sessionStore := pgstore.NewSessionWindowStore(pool)
	clock := sessionclock.New(sessionStore, loc)
	calendar := supervisor.NewBrokerCalendar(broker, tokens, sessionStore, cfg.Session.Market, cfg.Auth.DataProfile)

	factory := func(window *domain.SessionWindow, deadline time.Time) (supervisor.Runner, error) {
		// A malformed calendar date would subscribe to the wrong expiry;
		// refuse to start rather than guess.
		expiry, err := time.ParseInLocation(domain.DateFormat, window.MarketDate, loc)
		if err != nil {
			return nil, fmt.Errorf("parse market date %q: %w", window.MarketDate, err)
		}
		return stream.NewEngine(stream.Config{
			UnderlyingSymbol: cfg.Stream.UnderlyingSymbol,
			OptionRoot:       cfg.Stream.OptionRoot,
			Expiry:           expiry,
			StrikeStep:       cfg.Stream.StrikeStep,
			StrikeRange:      cfg.Stream.StrikeRange,
			AdjustThreshold:  cfg.Stream.AdjustThreshold,
			NoDataThreshold:  cfg.Stream.NoDataThreshold,
			WatchdogInterval: cfg.Stream.WatchdogInterval,
			Backoff:          cfg.Stream.Backoff,
			LoginSettle:      cfg.Stream.LoginSettle,
			DataProfile:      cfg.Auth.DataProfile,
			TradeProfile:     cfg.Auth.TradeProfile,
			Fields:           cfg.Stream.Fields,
		}, tokens, broker, stream.NewWSGateway(), fanout, deadline, logger), nil
	}

	controller := supervisor.NewController(supervisor.ControllerConfig{
		PollInterval: cfg.Session.PollInterval,
		PreOpenPad:   cfg.Session.PreOpenPad,
		SessionType:  cfg.Session.Type,
		Location:     loc,
	}, clock, calendar, factory, logger)
	monitor := supervisor.NewMonitor(supervisor.MonitorConfig{
		PollInterval: cfg.Monitor.PollInterval,
		StartupGrace: cfg.Monitor.StartupGrace,
		StaleLimit:   cfg.Monitor.StaleLimit,
		FailureLimit: cfg.Monitor.FailureLimit,
	}, controller, notify.NewLogNotifier(logger), logger)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return controller.Run(ctx) })
	group.Go(func() error { return monitor.Run(ctx) })
	group.Go(func() error { return serveMetrics(ctx, cfg, logger) })

	logger.Info().
		Str("underlying", cfg.Stream.UnderlyingSymbol).
		Str("session_type", cfg.Session.Type).
		Msg("streamd started")
	return group.Wait()
}

func serveMetrics(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
