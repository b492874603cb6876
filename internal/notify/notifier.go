// Package notify is the boundary to the external notification
// collaborator. Delivery itself lives outside this core; components
// only report conditions worth a human's attention.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier delivers an operator-facing alert.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// LogNotifier writes alerts to the structured log. It stands in where
// no delivery channel is configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

// Notify logs the alert at warn level.
func (n *LogNotifier) Notify(_ context.Context, subject, body string) error {
	n.log.Warn().Str("subject", subject).Str("body", body).Msg("operator alert")
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
