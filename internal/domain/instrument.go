package domain

import "time"

// Call/put sides of an option contract.
const (
	Call = "C"
	Put  = "P"
)

// Instrument is the unique identity of one option contract. The
// surrogate ID is assigned by the store on first sight; rows are never
// updated or deleted.
type Instrument struct {
	ID      int64
	Root    string
	Strike  float64
	CallPut string
	Expiry  string // DateFormat
}

// InstrumentMark is one observed price for an instrument at a point in
// time. At most one mark per (InstrumentID, Timestamp); first value wins.
type InstrumentMark struct {
	InstrumentID int64
	Timestamp    time.Time
	Price        float64
}

// UnderlyingMark is one observed price of the underlying index. Stage 3
// reads this series to bound the strikes considered for pairing.
type UnderlyingMark struct {
	Symbol    string
	Timestamp time.Time
	Price     float64
}
