package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
)

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a notifier backed by zerolog
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

// Notify logs the transition at a level matching its severity
func (n *LogNotifier) Notify(_ context.Context, ev *domain.Event, kind domain.NotificationKind, extra map[string]interface{}) {
	var e *zerolog.Event
	switch kind {
	case domain.NotifyCritical, domain.NotifyPartialExecution:
		e = n.log.Error()
	case domain.NotifyManualReview, domain.NotifyRetrying:
		e = n.log.Warn()
	default:
		e = n.log.Info()
	}

	if ev != nil {
		e = e.Str("event_id", ev.ID).
			Str("account_id", ev.AccountID).
			Str("command", string(ev.Command)).
			Int("times_queued", ev.TimesQueued).
			Int("attempt", ev.Attempt())
	}
	for k, v := range extra {
		if k == "output" {
			continue
		}
		e = e.Interface(k, v)
	}
	e.Str("kind", string(kind)).Msg("Event notification")
}
