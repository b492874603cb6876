package transform

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"optionflow/internal/domain"
	"optionflow/internal/sink"
	"optionflow/internal/storage/memory"
)

func TestImporterStagesDailyLog(t *testing.T) {
	const marketDate = "2025-01-15"
	dir := t.TempDir()
	ctx := context.Background()

	log, err := sink.NewParquetLog(dir, time.UTC)
	if err != nil {
		t.Fatalf("NewParquetLog() error: %v", err)
	}
	base := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC).UnixMilli()
	for i := 0; i < 5; i++ {
		err := log.Append(ctx, &domain.RawTick{
			Symbol:       "SPXW  250115C05900000",
			Service:      "LEVELONE_OPTIONS",
			Mark:         12.5,
			QuoteTimeMs:  base + int64(i)*1000,
			ReceivedAtMs: base + int64(i)*1000,
		})
		if err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	staging := memory.NewStagingStore()
	imp := NewImporter(dir, staging, zerolog.Nop())
	if err := imp.Run(ctx, marketDate); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	staged, err := staging.GetByDate(ctx, marketDate)
	if err != nil {
		t.Fatalf("GetByDate() error: %v", err)
	}
	if len(staged) != 5 {
		t.Fatalf("staged rows = %d, want 5", len(staged))
	}

	// Re-running replaces the staged contents instead of duplicating.
	if err := imp.Run(ctx, marketDate); err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	staged, err = staging.GetByDate(ctx, marketDate)
	if err != nil {
		t.Fatalf("GetByDate() after rerun error: %v", err)
	}
	if len(staged) != 5 {
		t.Errorf("staged rows after rerun = %d, want still 5", len(staged))
	}
}
