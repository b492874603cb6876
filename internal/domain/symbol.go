package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Option symbol layout: 6-character space-padded root, YYMMDD expiry,
// C or P, then the strike times 1000 zero-padded to 8 digits.
// Example: "SPXW  250115C05900000".
const (
	symbolRootLen   = 6
	symbolExpiryLen = 6
	symbolStrikeLen = 8
	symbolLen       = symbolRootLen + symbolExpiryLen + 1 + symbolStrikeLen
)

// OptionKey is the parsed identity encoded in an option symbol.
type OptionKey struct {
	Root    string
	Strike  float64
	CallPut string
	Expiry  string // DateFormat
}

// FormatOptionSymbol renders the wire symbol for one contract.
func FormatOptionSymbol(root string, expiry time.Time, callPut string, strike float64) string {
	paddedRoot := root
	if len(paddedRoot) < symbolRootLen {
		paddedRoot += strings.Repeat(" ", symbolRootLen-len(paddedRoot))
	}
	return fmt.Sprintf("%s%s%s%08d", paddedRoot, expiry.Format("060102"), callPut, int64(math.Round(strike*1000)))
}

// ParseOptionSymbol decodes a wire symbol back into its contract key.
func ParseOptionSymbol(symbol string) (OptionKey, error) {
	if len(symbol) != symbolLen {
		return OptionKey{}, fmt.Errorf("option symbol %q: want %d characters, got %d", symbol, symbolLen, len(symbol))
	}

	root := strings.TrimRight(symbol[:symbolRootLen], " ")
	if root == "" {
		return OptionKey{}, fmt.Errorf("option symbol %q: empty root", symbol)
	}

	expiry, err := time.Parse("060102", symbol[symbolRootLen:symbolRootLen+symbolExpiryLen])
	if err != nil {
		return OptionKey{}, fmt.Errorf("option symbol %q: bad expiry: %w", symbol, err)
	}

	callPut := symbol[symbolRootLen+symbolExpiryLen : symbolRootLen+symbolExpiryLen+1]
	if callPut != Call && callPut != Put {
		return OptionKey{}, fmt.Errorf("option symbol %q: bad call/put %q", symbol, callPut)
	}

	rawStrike, err := strconv.ParseInt(symbol[symbolRootLen+symbolExpiryLen+1:], 10, 64)
	if err != nil {
		return OptionKey{}, fmt.Errorf("option symbol %q: bad strike: %w", symbol, err)
	}
	if rawStrike <= 0 {
		return OptionKey{}, fmt.Errorf("option symbol %q: non-positive strike %d", symbol, rawStrike)
	}

	return OptionKey{
		Root:    root,
		Strike:  float64(rawStrike) / 1000,
		CallPut: callPut,
		Expiry:  expiry.Format(DateFormat),
	}, nil
}

// GenerateOptionSymbols produces the call and put symbols for every
// strike in [center-strikeRange, center+strikeRange] at strikeStep
// spacing, with center rounded to the nearest step first.
func GenerateOptionSymbols(root string, expiry time.Time, center, strikeStep, strikeRange float64) []string {
	base := math.Round(center/strikeStep) * strikeStep

	var symbols []string
	for strike := base - strikeRange; strike <= base+strikeRange; strike += strikeStep {
		if strike <= 0 {
			continue
		}
		symbols = append(symbols,
			FormatOptionSymbol(root, expiry, Call, strike),
			FormatOptionSymbol(root, expiry, Put, strike),
		)
	}
	return symbols
}
