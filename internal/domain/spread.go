package domain

import "time"

// VerticalSpread is a derived two-leg instrument: a short and a long leg
// of the same type and expiry separated by Width strike points. Unique
// per (ShortInstrumentID, LongInstrumentID); Width is always positive.
type VerticalSpread struct {
	ID                int64
	ShortInstrumentID int64
	LongInstrumentID  int64
	ShortStrike       float64
	Width             float64
	CallPut           string
	Expiry            string // DateFormat
}

// SpreadMark is one derived spread price on the backfill grid. Price is
// clamped to [0, Width] before storage; outlier points never reach this
// table. One row per (SpreadID, Timestamp).
type SpreadMark struct {
	SpreadID   int64
	Timestamp  time.Time
	Price      float64
	RollingAvg float64
}
