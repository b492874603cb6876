// tokend keeps the API profiles' access tokens fresh on a fixed sweep,
// independent of whether the stream is running.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"optionflow/internal/auth"
	"optionflow/internal/brokerage"
	"optionflow/internal/config"
	"optionflow/internal/logging"
	"optionflow/internal/notify"
	"optionflow/internal/storage/migrations"
	pgstore "optionflow/internal/storage/postgres"
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
		logger.Fatal().Err(err).Msg("tokend exited")
	}
	logger.Info().Msg("tokend stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
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

	profiles := []string{cfg.Auth.DataProfile, cfg.Auth.TradeProfile}
	refresher := auth.NewRefresher(tokens, profiles, cfg.Auth.SweepInterval, cfg.Auth.FailureLimit, notify.NewLogNotifier(logger), logger)

	logger.Info().Strs("profiles", profiles).Msg("tokend started")
	return refresher.Run(ctx)
}
