package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	MinDurationMinutes  = 15
	MaxDurationMinutes  = 120
	DurationStepMinutes = 15
)

type SessionKind string

const (
	SessionKindStandard SessionKind = "standard"
	// SessionKindPrepaid sessions are paid for before the provider is involved and start
	// in pending-payment.
	SessionKindPrepaid  SessionKind = "prepaid"
	SessionKindFollowUp SessionKind = "follow-up"
)

type PaymentStatus string

const (
	PaymentNone      PaymentStatus = ""
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type Payment struct {
	AmountMinor int64         `bun:"amount,notnull"`
	Status      PaymentStatus `bun:"status,notnull"`
	ExternalRef string        `bun:"external_ref,notnull"`
}

// Refundable reports whether a refund should be requested for this payment.
func (p Payment) Refundable() bool {
	return p.ExternalRef != "" && p.Status != PaymentRefunded && p.Status != PaymentNone
}

type FollowUp struct {
	RecommendedAppointmentID uuid.UUID `json:"recommendedAppointmentId"`
	Note                     string    `json:"note"`
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                   uuid.UUID   `bun:"id,pk,type:uuid"`
	ProviderID           string      `bun:"provider_id,notnull"`
	ConsumerID           string      `bun:"consumer_id,notnull"`
	SessionKind          SessionKind `bun:"session_kind,notnull"`
	StartTime            time.Time   `bun:"start_time,notnull"`
	DurationMinutes      int         `bun:"duration_minutes,notnull"`
	EndTime              time.Time   `bun:"end_time,notnull"`
	Status               Status      `bun:"status,notnull"`
	ConfirmationDeadline *time.Time  `bun:"confirmation_deadline"`
	CancellationReason   string      `bun:"cancellation_reason,notnull"`
	CompletionNote       string      `bun:"completion_note,notnull"`
	Payment              Payment     `bun:"embed:payment_"`
	FollowUp             *FollowUp   `bun:"follow_up,type:jsonb"`
	FollowUpOf           *uuid.UUID  `bun:"follow_up_of,type:uuid"`
	CreatedAt            time.Time   `bun:"created_at,notnull"`
	UpdatedAt            time.Time   `bun:"updated_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	}
	return nil
}

func ValidateDuration(minutes int) error {
	if minutes < MinDurationMinutes || minutes > MaxDurationMinutes || minutes%DurationStepMinutes != 0 {
		return ErrInvalidDuration
	}
	return nil
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

// Reschedule sets start and duration and recomputes the end. It is only allowed before
// the appointment leaves its initial states.
func (a *Appointment) Reschedule(start time.Time, durationMinutes int) error {
	if err := ValidateDuration(durationMinutes); err != nil {
		return err
	}
	if a.Status != "" && !a.Status.Initial() {
		return ErrIllegalState
	}
	a.StartTime = start.UTC()
	a.DurationMinutes = durationMinutes
	a.EndTime = a.StartTime.Add(time.Duration(durationMinutes) * time.Minute)
	return nil
}
