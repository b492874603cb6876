package supervisor

import (
	"context"
	"fmt"

	"optionflow/internal/domain"
	"optionflow/internal/storage"
)

// MarketHoursAPI fetches the upstream trading calendar for one date.
type MarketHoursAPI interface {
	MarketHours(ctx context.Context, accessToken, market, marketDate string) ([]*domain.SessionWindow, error)
}

// TokenProvider supplies a fresh access token for a named API profile.
type TokenProvider interface {
	EnsureFresh(ctx context.Context, apiName string) (*domain.Token, error)
}

// BrokerCalendar syncs the broker's published market hours into the
// session window store.
type BrokerCalendar struct {
	api     MarketHoursAPI
	tokens  TokenProvider
	windows storage.SessionWindowStore
	market  string
	profile string
}

var _ CalendarSync = (*BrokerCalendar)(nil)

// NewBrokerCalendar creates a calendar sync for one market using the
// given token profile.
func NewBrokerCalendar(api MarketHoursAPI, tokens TokenProvider, windows storage.SessionWindowStore, market, profile string) *BrokerCalendar {
	return &BrokerCalendar{
		api:     api,
		tokens:  tokens,
		windows: windows,
		market:  market,
		profile: profile,
	}
}

// Sync fetches the calendar for marketDate and upserts every session
// window, closed days included.
func (b *BrokerCalendar) Sync(ctx context.Context, marketDate string) error {
	token, err := b.tokens.EnsureFresh(ctx, b.profile)
	if err != nil {
		return fmt.Errorf("calendar token: %w", err)
	}

	windows, err := b.api.MarketHours(ctx, token.AccessToken, b.market, marketDate)
	if err != nil {
		return fmt.Errorf("fetch market hours for %s: %w", marketDate, err)
	}

	for _, w := range windows {
		if err := b.windows.Upsert(ctx, w); err != nil {
			return fmt.Errorf("store session window %s/%s: %w", w.MarketDate, w.SessionType, err)
		}
	}
	return nil
}
