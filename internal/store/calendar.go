package store

import (
	"context"

	"github.com/google/uuid"

	"sessionbook/backend/internal/domain"
)

// CalendarTx is a unit of work on one provider's calendar, obtained from
// InProviderTransaction.
type CalendarTx interface {
	// GetForUpdate loads the appointment and keeps it locked until the unit of work ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	// ListActive returns the provider's active appointments overlapping window, skipping
	// exclude when it is not uuid.Nil.
	ListActive(ctx context.Context, providerID string, window domain.Interval, exclude uuid.UUID) ([]domain.Appointment, error)

	// Insert stores a new appointment. It returns ErrConflict when storage rejects an
	// overlapping active booking, and on a duplicate id either the stored row (same
	// booking) or ErrIdempotencyConflict.
	Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	// UpdateStatus writes appt only if the stored status still equals from.
	UpdateStatus(ctx context.Context, appt domain.Appointment, from domain.Status) error
	// Update writes appt without a status precondition. Used for fields that do not take
	// part in the lifecycle, such as the follow-up pointer.
	Update(ctx context.Context, appt domain.Appointment) error
}
