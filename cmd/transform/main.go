// transform runs the batch pipeline over one day of captured ticks:
// import the daily log into staging, normalize staged ticks into marks,
// derive vertical spread marks.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"optionflow/internal/config"
	"optionflow/internal/domain"
	"optionflow/internal/logging"
	"optionflow/internal/sessionclock"
	"optionflow/internal/storage/migrations"
	pgstore "optionflow/internal/storage/postgres"
	"optionflow/internal/transform"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	date := flag.String("date", "", "Market date to process (YYYY-MM-DD, default today)")
	stages := flag.String("stages", "", "Comma-separated stages to run: import,normalize,derive (default all)")
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

	if err := run(ctx, cfg, logger, *date, *stages); err != nil {
		logger.Fatal().Err(err).Msg("transform failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, date, stageList string) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	if date == "" {
		date = time.Now().In(loc).Format(domain.DateFormat)
	}
	if _, err := time.ParseInLocation(domain.DateFormat, date, loc); err != nil {
		return fmt.Errorf("invalid market date %q: %w", date, err)
	}

	var stages []string
	if stageList != "" {
		stages = strings.Split(stageList, ",")
	}

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	sessionStore := pgstore.NewSessionWindowStore(pool)
	clock := sessionclock.New(sessionStore, loc)
	if err := clock.Reload(ctx, date, cfg.Session.Type); err != nil {
		return fmt.Errorf("load session calendar: %w", err)
	}

	importer := transform.NewImporter(cfg.Sink.LogDir, pgstore.NewStagingStore(pool), logger)
	normalizer := transform.NewNormalizer(transform.NormalizeConfig{
		UnderlyingSymbol: cfg.Stream.UnderlyingSymbol,
		SessionType:      cfg.Session.Type,
		Location:         loc,
	}, pgstore.NewStagingStore(pool), pgstore.NewInstrumentStore(pool), pgstore.NewInstrumentMarkStore(pool), pgstore.NewUnderlyingMarkStore(pool), clock, logger)
	deriver := transform.NewDeriver(transform.DeriveConfig{
		UnderlyingSymbol: cfg.Stream.UnderlyingSymbol,
		Width:            cfg.Transform.Width,
		GridStep:         cfg.Transform.GridStep,
		NeighborsBefore:  cfg.Transform.NeighborsBefore,
		NeighborsAfter:   cfg.Transform.NeighborsAfter,
		OutlierThreshold: cfg.Transform.OutlierThreshold,
		RollingWindow:    cfg.Transform.RollingWindow,
		Location:         loc,
	}, pgstore.NewInstrumentStore(pool), pgstore.NewInstrumentMarkStore(pool), pgstore.NewUnderlyingMarkStore(pool), pgstore.NewSpreadStore(pool), pgstore.NewSpreadMarkStore(pool), logger)

	pipeline := transform.NewPipeline(importer, normalizer, deriver)

	logger.Info().Str("market_date", date).Strs("stages", stages).Msg("transform started")
	if err := pipeline.Run(ctx, date, stages...); err != nil {
		return err
	}
	logger.Info().Str("market_date", date).Msg("transform finished")
	return nil
}
