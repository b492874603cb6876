package stream

import (
	"strings"
	"time"

	"optionflow/internal/domain"
)

// SubscriptionSet is the full symbol universe for one connection cycle.
// BasePrice records the underlying quote the option strikes were
// centered on; the watchdog compares live prices against it.
type SubscriptionSet struct {
	Underlying    string
	BasePrice     float64
	OptionSymbols []string
}

// BuildSubscriptionSet centers a strike window on the underlying price
// and expands it into streamer option symbols for the given expiry.
func BuildSubscriptionSet(underlying, root string, expiry time.Time, price, strikeStep, strikeRange float64) SubscriptionSet {
	return SubscriptionSet{
		Underlying:    underlying,
		BasePrice:     price,
		OptionSymbols: domain.GenerateOptionSymbols(root, expiry, price, strikeStep, strikeRange),
	}
}

// Size is the total number of subscribed symbols including the
// underlying.
func (s SubscriptionSet) Size() int {
	return len(s.OptionSymbols) + 1
}

// OptionKeys is the comma-joined key list for the options SUBS request.
func (s SubscriptionSet) OptionKeys() string {
	return strings.Join(s.OptionSymbols, ",")
}
