package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"sessionbook/backend/internal/domain"
	"sessionbook/backend/internal/effects"
	"sessionbook/backend/internal/store"
)

type FollowUpInput struct {
	OriginalID      uuid.UUID `json:"appointment_id" validate:"required"`
	StartTime       time.Time `json:"start_time" validate:"required"`
	DurationMinutes int       `json:"duration_minutes"`
	Note            string    `json:"note" validate:"max=4000"`
	Actor           Actor     `json:"-"`
}

// SpawnFollowUp creates a payment-pending appointment linked to a completed one. The new
// record points back at the original and the original gets a forward pointer, both in
// one unit of work. The calendar is not checked here: pending-payment bookings do not
// occupy it, and ConfirmPayment checks it before the follow-up is scheduled.
func (s *Service) SpawnFollowUp(ctx context.Context, in FollowUpInput) (out domain.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "SpawnFollowUp", attribute.String("appointment_id", in.OriginalID.String()))
	defer func() { endSpan(span, err) }()

	if err := s.validateInput(in); err != nil {
		return domain.Appointment{}, err
	}
	if err := domain.ValidateDuration(in.DurationMinutes); err != nil {
		return domain.Appointment{}, err
	}

	original, err := s.repo.Get(ctx, in.OriginalID)
	if err != nil {
		return domain.Appointment{}, mapStoreError(err)
	}
	if in.Actor.ID != original.ProviderID {
		return domain.Appointment{}, domain.ErrNotAuthorized
	}
	prov, err := s.provider(ctx, original.ProviderID)
	if err != nil {
		return domain.Appointment{}, err
	}

	err = s.repo.InProviderTransaction(ctx, original.ProviderID, func(ctx context.Context, tx store.CalendarTx) error {
		orig, err := tx.GetForUpdate(ctx, in.OriginalID)
		if err != nil {
			return err
		}
		if orig.Status != domain.StatusCompleted || orig.FollowUp != nil {
			return domain.ErrIllegalState
		}
		if !in.StartTime.After(orig.StartTime) {
			return validationError("follow-up must start after the original session")
		}

		now := s.clock.Now().UTC()
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		origID := orig.ID
		next := domain.Appointment{
			ID:          id,
			ProviderID:  orig.ProviderID,
			ConsumerID:  orig.ConsumerID,
			SessionKind: domain.SessionKindFollowUp,
			Status:      domain.StatusPendingPayment,
			Payment:     domain.Payment{AmountMinor: prov.RateMinor, Status: domain.PaymentPending},
			FollowUpOf:  &origID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := next.Reschedule(in.StartTime, in.DurationMinutes); err != nil {
			return err
		}
		created, err := tx.Insert(ctx, next)
		if err != nil {
			return err
		}

		orig.FollowUp = &domain.FollowUp{RecommendedAppointmentID: created.ID, Note: in.Note}
		orig.UpdatedAt = now
		if err := tx.Update(ctx, orig); err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return domain.Appointment{}, mapStoreError(err)
	}

	s.log.InfoContext(ctx, "follow-up created",
		"appointment_id", out.ID.String(),
		"original_id", in.OriginalID.String(),
	)
	s.dispatchAsync(ctx, outcome{appt: out, event: effects.EventFollowUpCreated, reason: in.Note})
	return out, nil
}
