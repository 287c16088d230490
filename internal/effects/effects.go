// Package effects defines the side effects the scheduling engine triggers after a
// committed transition, and runs them with a bounded timeout.
package effects

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sessionbook/backend/internal/domain"
)

type EventKind string

const (
	EventBookingFailed    EventKind = "booking-failed"
	EventBookingConfirmed EventKind = "booking-confirmed"
	EventBookingCanceled  EventKind = "booking-canceled"
	EventSessionCompleted EventKind = "session-completed"
	EventFollowUpCreated  EventKind = "followup-created"
)

type Event struct {
	Kind        EventKind
	Appointment domain.Appointment
	// Recipient is the participant a booking-failed notice goes to. Other events are
	// addressed to both parties of Appointment.
	Recipient  string
	Reason     string
	OccurredAt time.Time
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type Refunder interface {
	RequestRefund(ctx context.Context, appointmentID uuid.UUID, payment domain.Payment) error
}

type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

type RefunderFunc func(ctx context.Context, appointmentID uuid.UUID, payment domain.Payment) error

func (f RefunderFunc) RequestRefund(ctx context.Context, appointmentID uuid.UUID, payment domain.Payment) error {
	return f(ctx, appointmentID, payment)
}
