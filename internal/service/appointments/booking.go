package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"sessionbook/backend/internal/domain"
	"sessionbook/backend/internal/effects"
	"sessionbook/backend/internal/store"
)

type BookInput struct {
	ProviderID      string             `json:"provider_id" validate:"required"`
	ConsumerID      string             `json:"consumer_id" validate:"required,nefield=ProviderID"`
	StartTime       time.Time          `json:"start_time" validate:"required"`
	DurationMinutes int                `json:"duration_minutes"`
	SessionKind     domain.SessionKind `json:"session_kind" validate:"omitempty,oneof=standard prepaid"`
	IdempotencyKey  string             `json:"idempotency_key" validate:"max=256"`
	Actor           Actor              `json:"-"`
}

// Book creates an appointment. The conflict check and the insert run under the
// provider's calendar lock so two overlapping requests cannot both succeed.
func (s *Service) Book(ctx context.Context, in BookInput) (out domain.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "Book",
		attribute.String("provider_id", in.ProviderID),
		attribute.String("consumer_id", in.ConsumerID),
	)
	defer func() { endSpan(span, err) }()

	if err := s.validateInput(in); err != nil {
		return domain.Appointment{}, err
	}
	if err := domain.ValidateDuration(in.DurationMinutes); err != nil {
		s.metrics.BookingOutcome("invalid_duration")
		return domain.Appointment{}, err
	}
	if !in.Actor.Admin && in.Actor.ID != in.ConsumerID {
		return domain.Appointment{}, domain.ErrNotAuthorized
	}
	kind := in.SessionKind
	if kind == "" {
		kind = domain.SessionKindStandard
	}

	prov, err := s.provider(ctx, in.ProviderID)
	if err != nil {
		return domain.Appointment{}, err
	}
	loc := s.location(prov)

	appt := domain.Appointment{
		ProviderID:  in.ProviderID,
		ConsumerID:  in.ConsumerID,
		SessionKind: kind,
	}
	if err := appt.Reschedule(in.StartTime, in.DurationMinutes); err != nil {
		return domain.Appointment{}, err
	}
	if in.IdempotencyKey != "" {
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("sessionbook:book:"+in.ConsumerID+":"+in.IdempotencyKey))
	} else {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}

	replayed := false
	err = s.repo.InProviderTransaction(ctx, in.ProviderID, func(ctx context.Context, tx store.CalendarTx) error {
		if in.IdempotencyKey != "" {
			existing, err := tx.GetForUpdate(ctx, appt.ID)
			switch {
			case err == nil:
				if !store.SameBooking(existing, appt) {
					return store.ErrIdempotencyConflict
				}
				out, replayed = existing, true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		busy, err := tx.ListActive(ctx, appt.ProviderID, appt.Interval(), uuid.Nil)
		if err != nil {
			return err
		}
		if len(busy) > 0 {
			return domain.ErrSlotUnavailable
		}

		now := s.clock.Now()
		if !appt.StartTime.After(now) {
			return domain.ErrOutsideAvailability
		}
		local := domain.Interval{Start: appt.StartTime.In(loc), End: appt.EndTime.In(loc)}
		if !domain.FitsAvailability(prov.Availability, local, s.cfg.SlotStep) {
			return domain.ErrOutsideAvailability
		}

		if kind == domain.SessionKindPrepaid {
			appt.Status = domain.StatusPendingPayment
			appt.Payment = domain.Payment{AmountMinor: prov.RateMinor, Status: domain.PaymentPending}
		} else {
			appt.Status = domain.StatusPendingConfirmation
			deadline := domain.ConfirmationDeadline(now, appt.StartTime, prov.Availability, loc, s.cfg.NearTermWindow, s.cfg.ConfirmationGrace)
			appt.ConfirmationDeadline = &deadline
		}
		appt.CreatedAt = now.UTC()
		appt.UpdatedAt = now.UTC()

		created, err := tx.Insert(ctx, appt)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		err = mapStoreError(err)
		switch {
		case errors.Is(err, domain.ErrSlotUnavailable):
			s.metrics.BookingOutcome("slot_unavailable")
			s.log.InfoContext(ctx, "booking rejected: slot unavailable",
				"provider_id", appt.ProviderID, "start_time", appt.StartTime)
			failed := appt
			s.effects.Go(ctx, func(ctx context.Context) {
				_ = s.effects.Notify(ctx, effects.Event{
					Kind:        effects.EventBookingFailed,
					Appointment: failed,
					Recipient:   failed.ConsumerID,
					Reason:      domain.ErrSlotUnavailable.Error(),
					OccurredAt:  s.clock.Now(),
				})
			})
		case errors.Is(err, domain.ErrOutsideAvailability):
			s.metrics.BookingOutcome("outside_availability")
		case errors.Is(err, store.ErrIdempotencyConflict):
			s.metrics.BookingOutcome("idempotency_conflict")
		}
		return domain.Appointment{}, err
	}

	if replayed {
		s.metrics.BookingOutcome("replayed")
		return out, nil
	}
	s.metrics.BookingOutcome("created")
	s.log.InfoContext(ctx, "appointment booked",
		"appointment_id", out.ID.String(),
		"provider_id", out.ProviderID,
		"status", string(out.Status),
	)
	return out, nil
}

type OpenSlotsInput struct {
	ProviderID string `json:"provider_id" validate:"required"`
	// Date selects a calendar day; only its year, month and day are used, interpreted in
	// the provider's location.
	Date time.Time `json:"date" validate:"required"`
}

// OpenSlots lists the provider's bookable slots on a day. A fully booked or closed day
// yields an empty slice.
func (s *Service) OpenSlots(ctx context.Context, in OpenSlotsInput) (slots []domain.Interval, err error) {
	ctx, span := s.startSpan(ctx, "OpenSlots", attribute.String("provider_id", in.ProviderID))
	defer func() { endSpan(span, err) }()

	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	prov, err := s.provider(ctx, in.ProviderID)
	if err != nil {
		return nil, err
	}
	loc := s.location(prov)

	y, m, d := in.Date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	window := domain.Interval{Start: day, End: day.AddDate(0, 0, 1)}

	active, err := s.repo.ListActive(ctx, prov.ID, window)
	if err != nil {
		return nil, err
	}
	busy := make([]domain.Interval, 0, len(active))
	for _, a := range active {
		busy = append(busy, a.Interval())
	}
	return domain.ResolveDay(prov.Availability, day, s.clock.Now(), busy, s.cfg.SlotStep)
}
