// Package transform is the batch pipeline over a day of captured ticks:
// stage 1 imports the daily tick log into staging, stage 2 normalizes
// staged ticks into per-instrument marks, stage 3 derives vertical
// spread marks on a regular grid.
package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"optionflow/internal/observability"
	"optionflow/internal/sink"
	"optionflow/internal/storage"
)

// Importer is stage 1: daily tick log file to staging table. The
// staging contents for the date are replaced wholesale, so a re-run
// after a partial failure starts clean.
type Importer struct {
	dir     string
	staging storage.StagingStore
	log     zerolog.Logger
}

// NewImporter creates an importer reading daily log files from dir.
func NewImporter(dir string, staging storage.StagingStore, log zerolog.Logger) *Importer {
	return &Importer{
		dir:     dir,
		staging: staging,
		log:     log.With().Str("component", "transform_import").Logger(),
	}
}

// Run imports all log files for one market date.
func (i *Importer) Run(ctx context.Context, marketDate string) error {
	started := time.Now()
	err := i.run(ctx, marketDate)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordStageRun("import", status, time.Since(started).Seconds())
	return err
}

func (i *Importer) run(ctx context.Context, marketDate string) error {
	ticks, err := sink.ReadDaily(i.dir, marketDate)
	if err != nil {
		return fmt.Errorf("read daily tick log: %w", err)
	}

	if err := i.staging.Clear(ctx, marketDate); err != nil {
		return fmt.Errorf("clear staging for %s: %w", marketDate, err)
	}
	if err := i.staging.InsertBulk(ctx, marketDate, ticks); err != nil {
		return fmt.Errorf("stage ticks for %s: %w", marketDate, err)
	}

	observability.RecordRowsImported(len(ticks))
	i.log.Info().
		Str("market_date", marketDate).
		Int("rows", len(ticks)).
		Msg("daily tick log imported")
	return nil
}
