package notify

import (
	"context"
	"log/slog"

	"sessionbook/backend/internal/effects"
)

// LogNotifier writes events to the structured log. It is the default when no broker is
// configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("component", "notify.log")}
}

func (n *LogNotifier) Notify(ctx context.Context, ev effects.Event) error {
	m := NewMessage(ev)
	n.log.InfoContext(ctx, "notification",
		"event", m.Event,
		"event_id", m.EventID,
		"appointment_id", m.AppointmentID,
		"provider_id", m.ProviderID,
		"consumer_id", m.ConsumerID,
		"recipient", m.Recipient,
		"reason", m.Reason,
	)
	return nil
}
