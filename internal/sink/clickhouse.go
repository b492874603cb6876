package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"optionflow/internal/domain"
	"optionflow/internal/storage/clickhouse"
)

const archiveFlushBatch = 1000

// ClickHouseArchive implements TickLog against a clickhouse table. It
// is an optional second durable sink; rows buffer locally and flush in
// batches.
type ClickHouseArchive struct {
	conn *clickhouse.Conn
	loc  *time.Location

	mu     sync.Mutex
	buffer []*domain.RawTick
}

// NewClickHouseArchive creates a tick archive over an open connection.
func NewClickHouseArchive(conn *clickhouse.Conn, loc *time.Location) *ClickHouseArchive {
	return &ClickHouseArchive{conn: conn, loc: loc}
}

// Append buffers one tick, flushing when the batch fills.
func (a *ClickHouseArchive) Append(ctx context.Context, tick *domain.RawTick) error {
	a.mu.Lock()
	tickCopy := *tick
	a.buffer = append(a.buffer, &tickCopy)
	full := len(a.buffer) >= archiveFlushBatch
	a.mu.Unlock()

	if full {
		return a.Flush(ctx)
	}
	return nil
}

// Flush sends the buffered rows as one batch.
func (a *ClickHouseArchive) Flush(ctx context.Context) error {
	a.mu.Lock()
	pending := a.buffer
	a.buffer = nil
	a.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO tick_archive (market_date, symbol, service, mark, quote_time_ms, received_at_ms)
	`)
	if err != nil {
		return fmt.Errorf("prepare tick archive batch: %w", err)
	}

	for _, t := range pending {
		marketDate := time.UnixMilli(t.ReceivedAtMs).In(a.loc)
		if err := batch.Append(marketDate, t.Symbol, t.Service, t.Mark, t.QuoteTimeMs, t.ReceivedAtMs); err != nil {
			return fmt.Errorf("append to tick archive batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send tick archive batch: %w", err)
	}
	return nil
}

// Close flushes remaining rows and closes the connection.
func (a *ClickHouseArchive) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Flush(ctx); err != nil {
		a.conn.Close()
		return err
	}
	return a.conn.Close()
}

var _ TickLog = (*ClickHouseArchive)(nil)
