package domain

import "time"

// DateFormat is the canonical wire/storage format for market dates.
const DateFormat = "2006-01-02"

// Session types as published by the market-hours calendar.
const (
	SessionRegular    = "REGULAR"
	SessionPreMarket  = "PRE_MARKET"
	SessionPostMarket = "POST_MARKET"
)

// SessionWindow is one scheduled trading window for a market date.
// Unique per (MarketDate, SessionType). Written by the calendar loader,
// read-only everywhere else.
type SessionWindow struct {
	MarketDate  string
	SessionType string
	StartTime   time.Time
	EndTime     time.Time
	IsOpen      bool
}

// Contains reports whether t falls inside [StartTime, EndTime).
func (w *SessionWindow) Contains(t time.Time) bool {
	return w.IsOpen && !t.Before(w.StartTime) && t.Before(w.EndTime)
}
