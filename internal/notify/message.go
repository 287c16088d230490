// Package notify delivers engine events to the notification collaborator.
package notify

import (
	"time"

	"sessionbook/backend/internal/effects"
)

// Message is the wire form of an event published to brokers.
type Message struct {
	EventID       string    `json:"eventId"`
	Event         string    `json:"event"`
	AppointmentID string    `json:"appointmentId"`
	ProviderID    string    `json:"providerId"`
	ConsumerID    string    `json:"consumerId"`
	Recipient     string    `json:"recipient,omitempty"`
	Status        string    `json:"status"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func NewMessage(ev effects.Event) Message {
	a := ev.Appointment
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return Message{
		EventID:       eventID(ev, occurred),
		Event:         string(ev.Kind),
		AppointmentID: a.ID.String(),
		ProviderID:    a.ProviderID,
		ConsumerID:    a.ConsumerID,
		Recipient:     ev.Recipient,
		Status:        string(a.Status),
		StartTime:     a.StartTime.UTC(),
		EndTime:       a.EndTime.UTC(),
		Reason:        ev.Reason,
		OccurredAt:    occurred.UTC(),
	}
}

// eventID is stable for a given appointment and event kind so downstream consumers can
// deduplicate redeliveries. booking-failed has no stored appointment and keys on time.
func eventID(ev effects.Event, occurred time.Time) string {
	if ev.Kind == effects.EventBookingFailed {
		return string(ev.Kind) + ":" + ev.Recipient + ":" + occurred.UTC().Format(time.RFC3339Nano)
	}
	return string(ev.Kind) + ":" + ev.Appointment.ID.String()
}
