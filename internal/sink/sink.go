// Package sink holds the two destinations every received tick fans out
// to: a latest-value cache keyed by symbol and an append-only daily log.
// The two write paths never share a failure domain.
package sink

import (
	"context"
	"errors"

	"optionflow/internal/domain"
)

// ErrBackpressure is returned when the durable log queue stays full past
// the bounded wait. It is surfaced to the caller, never swallowed.
var ErrBackpressure = errors.New("sink backpressure: log queue full")

// QuoteCache is the latest-value sink. Writes overwrite; last write wins.
type QuoteCache interface {
	Put(ctx context.Context, tick *domain.RawTick) error
	Close() error
}

// TickLog is the append-only durable sink: one record per frame,
// at-least-once.
type TickLog interface {
	Append(ctx context.Context, tick *domain.RawTick) error
	Flush(ctx context.Context) error
	Close() error
}
