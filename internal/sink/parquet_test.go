package sink

import (
	"context"
	"testing"
	"time"

	"optionflow/internal/domain"
)

func TestParquetLogWriteAndReadDaily(t *testing.T) {
	dir := t.TempDir()
	log, err := NewParquetLog(dir, time.UTC)
	if err != nil {
		t.Fatalf("NewParquetLog() error: %v", err)
	}

	base := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC).UnixMilli()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		err := log.Append(ctx, &domain.RawTick{
			Symbol:       "SPXW  250115C05900000",
			Service:      "LEVELONE_OPTIONS",
			Mark:         12.5 + float64(i)/10,
			QuoteTimeMs:  base + int64(i)*1000,
			ReceivedAtMs: base + int64(i)*1000 + 50,
		})
		if err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	ticks, err := ReadDaily(dir, "2025-01-15")
	if err != nil {
		t.Fatalf("ReadDaily() error: %v", err)
	}
	if len(ticks) != 10 {
		t.Fatalf("len(ticks) = %d, want 10", len(ticks))
	}
	if ticks[0].Symbol != "SPXW  250115C05900000" {
		t.Errorf("symbol = %q", ticks[0].Symbol)
	}
	if ticks[0].Mark != 12.5 {
		t.Errorf("mark = %v, want 12.5", ticks[0].Mark)
	}
}

func TestParquetLogRestartWritesPartFile(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ts := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC).UnixMilli()

	// First writer session.
	log1, err := NewParquetLog(dir, time.UTC)
	if err != nil {
		t.Fatalf("NewParquetLog() error: %v", err)
	}
	if err := log1.Append(ctx, &domain.RawTick{Symbol: "A", Service: "S", Mark: 1, QuoteTimeMs: ts, ReceivedAtMs: ts}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := log1.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// Restart within the same day: must not clobber the first file.
	log2, err := NewParquetLog(dir, time.UTC)
	if err != nil {
		t.Fatalf("NewParquetLog() restart error: %v", err)
	}
	if err := log2.Append(ctx, &domain.RawTick{Symbol: "B", Service: "S", Mark: 2, QuoteTimeMs: ts, ReceivedAtMs: ts}); err != nil {
		t.Fatalf("Append() after restart error: %v", err)
	}
	if err := log2.Close(); err != nil {
		t.Fatalf("Close() after restart error: %v", err)
	}

	ticks, err := ReadDaily(dir, "2025-01-15")
	if err != nil {
		t.Fatalf("ReadDaily() error: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("len(ticks) = %d, want 2 across both sessions", len(ticks))
	}
}

func TestParquetLogRotatesOnDateChange(t *testing.T) {
	dir := t.TempDir()
	log, err := NewParquetLog(dir, time.UTC)
	if err != nil {
		t.Fatalf("NewParquetLog() error: %v", err)
	}

	ctx := context.Background()
	day1 := time.Date(2025, 1, 15, 23, 59, 0, 0, time.UTC).UnixMilli()
	day2 := time.Date(2025, 1, 16, 0, 1, 0, 0, time.UTC).UnixMilli()

	if err := log.Append(ctx, &domain.RawTick{Symbol: "A", Service: "S", Mark: 1, QuoteTimeMs: day1, ReceivedAtMs: day1}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := log.Append(ctx, &domain.RawTick{Symbol: "B", Service: "S", Mark: 2, QuoteTimeMs: day2, ReceivedAtMs: day2}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	first, err := ReadDaily(dir, "2025-01-15")
	if err != nil {
		t.Fatalf("ReadDaily(day1) error: %v", err)
	}
	second, err := ReadDaily(dir, "2025-01-16")
	if err != nil {
		t.Fatalf("ReadDaily(day2) error: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Errorf("rows per day = %d/%d, want 1/1", len(first), len(second))
	}
}
