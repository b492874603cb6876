package domain

// RawTick is one decoded streaming frame entry for a single symbol.
// Ticks are ephemeral: they live in the daily log and the staging table
// until stage 2 consumes them. Duplicates are permitted and reconciled
// downstream.
type RawTick struct {
	Symbol       string
	Service      string
	Mark         float64
	QuoteTimeMs  int64
	ReceivedAtMs int64
}
