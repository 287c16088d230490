package store

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"

	"sessionbook/backend/internal/domain"
)

type AppointmentRepository interface {
	// InProviderTransaction runs fn while holding the provider's calendar lock. Every
	// check-then-act on a provider's bookings goes through here.
	InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx CalendarTx) error) error

	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	// ListActive returns the provider's active appointments overlapping window, ordered by start.
	ListActive(ctx context.Context, providerID string, window domain.Interval) ([]domain.Appointment, error)

	// Sweep scans. Each returns at most limit rows positioned after the cursor, ordered
	// by (scan key, id): confirmation_deadline, created_at and end_time respectively.
	ListConfirmationExpired(ctx context.Context, now time.Time, after Cursor, limit int) ([]domain.Appointment, error)
	ListPaymentExpired(ctx context.Context, createdBefore time.Time, after Cursor, limit int) ([]domain.Appointment, error)
	ListEnded(ctx context.Context, now time.Time, after Cursor, limit int) ([]domain.Appointment, error)

	Ping(ctx context.Context) error
}

// Cursor is a keyset position in a sweep scan. The zero value starts at the beginning.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

func (c Cursor) IsZero() bool {
	return c.At.IsZero() && c.ID == uuid.Nil
}

// Precedes reports whether the row keyed (at, id) sorts strictly after the cursor.
func (c Cursor) Precedes(at time.Time, id uuid.UUID) bool {
	if c.IsZero() {
		return true
	}
	if !at.Equal(c.At) {
		return at.After(c.At)
	}
	return bytes.Compare(id[:], c.ID[:]) > 0
}

// SameBooking reports whether two appointments describe the same booking request. Used
// to decide whether a replayed idempotency key matches the stored row.
func SameBooking(a, b domain.Appointment) bool {
	return a.ProviderID == b.ProviderID &&
		a.ConsumerID == b.ConsumerID &&
		a.SessionKind == b.SessionKind &&
		a.StartTime.Equal(b.StartTime) &&
		a.DurationMinutes == b.DurationMinutes
}
