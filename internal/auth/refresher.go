package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"optionflow/internal/notify"
	"optionflow/internal/observability"
)

// Refresher keeps a fixed set of profiles fresh on a polling interval.
// It absorbs transient refresh failures; persistent failure for a
// profile escalates through the notifier.
type Refresher struct {
	store        *Store
	profiles     []string
	interval     time.Duration
	failureLimit int
	notifier     notify.Notifier
	log          zerolog.Logger

	failures map[string]int
}

// NewRefresher creates a refresher for the given profiles.
func NewRefresher(store *Store, profiles []string, interval time.Duration, failureLimit int, notifier notify.Notifier, log zerolog.Logger) *Refresher {
	if failureLimit <= 0 {
		failureLimit = 3
	}
	return &Refresher{
		store:        store,
		profiles:     profiles,
		interval:     interval,
		failureLimit: failureLimit,
		notifier:     notifier,
		log:          log.With().Str("component", "token_refresher").Logger(),
		failures:     make(map[string]int),
	}
}

// Run polls until the context is cancelled. One pass runs immediately.
func (r *Refresher) Run(ctx context.Context) error {
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Refresher) sweep(ctx context.Context) {
	for _, profile := range r.profiles {
		if _, err := r.store.EnsureFresh(ctx, profile); err != nil {
			observability.RecordTokenRefresh(profile, "error")
			r.failures[profile]++
			r.log.Error().Err(err).Str("api_name", profile).Int("consecutive_failures", r.failures[profile]).Msg("refresh sweep failed")

			if r.failures[profile] == r.failureLimit {
				subject := fmt.Sprintf("token refresh failing for %s", profile)
				body := fmt.Sprintf("refresh for profile %s has failed %d times in a row: %v", profile, r.failures[profile], err)
				if nerr := r.notifier.Notify(ctx, subject, body); nerr != nil {
					r.log.Error().Err(nerr).Msg("notification delivery failed")
				}
			}
			continue
		}
		observability.RecordTokenRefresh(profile, "ok")
		r.failures[profile] = 0
	}
}
