package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"optionflow/internal/domain"
)

// tickRow is the columnar schema of the daily log: the flattened field
// map plus receipt and quote timestamps.
type tickRow struct {
	Symbol       string  `parquet:"symbol"`
	Service      string  `parquet:"service"`
	Mark         float64 `parquet:"mark"`
	QuoteTimeMs  int64   `parquet:"quote_time_ms"`
	ReceivedAtMs int64   `parquet:"received_at_ms"`
}

// ParquetLog implements TickLog as one parquet file per calendar day,
// named quotes_<date>.parquet. A date rollover rotates the file. Parquet
// files cannot be reopened for append, so a restart within the same day
// writes an additional part file; DailyFilePattern matches both.
type ParquetLog struct {
	dir string
	loc *time.Location
	now func() time.Time

	mu     sync.Mutex
	date   string
	file   *os.File
	writer *parquet.GenericWriter[tickRow]
}

// NewParquetLog creates a daily parquet log writing into dir. Dates are
// derived from tick receipt time in loc.
func NewParquetLog(dir string, loc *time.Location) (*ParquetLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &ParquetLog{dir: dir, loc: loc, now: time.Now}, nil
}

// DailyFilePattern returns the glob matching every log file for a date,
// including restart part files.
func DailyFilePattern(dir, marketDate string) string {
	return filepath.Join(dir, fmt.Sprintf("quotes_%s*.parquet", marketDate))
}

// Append writes one tick to the current day's file, rotating first if
// the date rolled over.
func (l *ParquetLog) Append(_ context.Context, tick *domain.RawTick) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	date := time.UnixMilli(tick.ReceivedAtMs).In(l.loc).Format(domain.DateFormat)
	if err := l.ensureFile(date); err != nil {
		return err
	}

	row := tickRow{
		Symbol:       tick.Symbol,
		Service:      tick.Service,
		Mark:         tick.Mark,
		QuoteTimeMs:  tick.QuoteTimeMs,
		ReceivedAtMs: tick.ReceivedAtMs,
	}
	if _, err := l.writer.Write([]tickRow{row}); err != nil {
		return fmt.Errorf("append tick to daily log: %w", err)
	}
	return nil
}

// Flush closes out the current row group so rows written so far survive
// a crash.
func (l *ParquetLog) Flush(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return nil
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("flush daily log: %w", err)
	}
	return nil
}

// Close finalizes and closes the current file.
func (l *ParquetLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeCurrent()
}

func (l *ParquetLog) ensureFile(date string) error {
	if l.writer != nil && l.date == date {
		return nil
	}
	if err := l.closeCurrent(); err != nil {
		return err
	}

	path := filepath.Join(l.dir, fmt.Sprintf("quotes_%s.parquet", date))
	for part := 1; ; part++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(l.dir, fmt.Sprintf("quotes_%s.part%d.parquet", date, part))
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create daily log file: %w", err)
	}

	l.date = date
	l.file = file
	l.writer = parquet.NewGenericWriter[tickRow](file)
	return nil
}

func (l *ParquetLog) closeCurrent() error {
	if l.writer == nil {
		return nil
	}
	if err := l.writer.Close(); err != nil {
		l.file.Close()
		return fmt.Errorf("finalize daily log: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close daily log file: %w", err)
	}
	l.writer = nil
	l.file = nil
	l.date = ""
	return nil
}

var _ TickLog = (*ParquetLog)(nil)

// ReadDaily loads every log file for a market date, restart part files
// included. Returns rows in file order; duplicates are reconciled
// downstream.
func ReadDaily(dir, marketDate string) ([]*domain.RawTick, error) {
	paths, err := filepath.Glob(DailyFilePattern(dir, marketDate))
	if err != nil {
		return nil, fmt.Errorf("glob daily log files: %w", err)
	}

	var ticks []*domain.RawTick
	for _, path := range paths {
		rows, err := parquet.ReadFile[tickRow](path)
		if err != nil {
			return nil, fmt.Errorf("read daily log %s: %w", path, err)
		}
		for _, row := range rows {
			ticks = append(ticks, &domain.RawTick{
				Symbol:       row.Symbol,
				Service:      row.Service,
				Mark:         row.Mark,
				QuoteTimeMs:  row.QuoteTimeMs,
				ReceivedAtMs: row.ReceivedAtMs,
			})
		}
	}
	return ticks, nil
}
