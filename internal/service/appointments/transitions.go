package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"sessionbook/backend/internal/domain"
	"sessionbook/backend/internal/effects"
	"sessionbook/backend/internal/store"
)

const (
	originRequest = "request"
	originSweeper = "sweeper"
)

// outcome is what a committed transition leaves for the effects runner.
type outcome struct {
	appt domain.Appointment
	// refund holds the payment as it was before cancellation, when a refund is due.
	refund *domain.Payment
	event  effects.EventKind
	reason string
}

// mutate loads id under its provider's lock, applies fn, and writes the result with a
// compare-and-swap on the status that was read. fn may return errSkip to commit nothing.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, authorize func(domain.Appointment) error, fn func(ctx context.Context, tx store.CalendarTx, a *domain.Appointment) (outcome, error)) (outcome, error) {
	if id == uuid.Nil {
		return outcome{}, validationError("appointment_id is required")
	}
	snapshot, err := s.repo.Get(ctx, id)
	if err != nil {
		return outcome{}, mapStoreError(err)
	}
	if authorize != nil {
		if err := authorize(snapshot); err != nil {
			return outcome{}, err
		}
	}
	return s.mutateLocked(ctx, snapshot, fn)
}

var errSkip = errors.New("skip")

func (s *Service) mutateLocked(ctx context.Context, snapshot domain.Appointment, fn func(ctx context.Context, tx store.CalendarTx, a *domain.Appointment) (outcome, error)) (outcome, error) {
	var out outcome
	var fnErr error
	err := s.repo.InProviderTransaction(ctx, snapshot.ProviderID, func(ctx context.Context, tx store.CalendarTx) error {
		a, err := tx.GetForUpdate(ctx, snapshot.ID)
		if err != nil {
			return err
		}
		from := a.Status
		out, fnErr = fn(ctx, tx, &a)
		if fnErr != nil && !errors.Is(fnErr, errSkip) && !errors.Is(fnErr, domain.ErrDeadlinePassed) {
			return fnErr
		}
		if errors.Is(fnErr, errSkip) {
			return nil
		}
		if err := tx.UpdateStatus(ctx, a, from); err != nil {
			return err
		}
		out.appt = a
		return nil
	})
	if err != nil {
		return outcome{}, mapStoreError(err)
	}
	return out, fnErr
}

// cancelAppointment cancels a and marks a refundable payment as refunded. It returns the
// payment to refund, if any.
func cancelAppointment(a *domain.Appointment, reason string, now time.Time) (*domain.Payment, error) {
	before := a.Payment
	refundable := before.Refundable()
	if err := a.Cancel(reason, now); err != nil {
		return nil, err
	}
	if !refundable {
		return nil, nil
	}
	a.Payment.Status = domain.PaymentRefunded
	return &before, nil
}

// dispatchAsync hands the side effects of a committed transition to the runner without
// waiting. Request paths use this.
func (s *Service) dispatchAsync(ctx context.Context, o outcome) {
	if o.refund == nil && o.event == "" {
		return
	}
	s.effects.Go(ctx, func(ctx context.Context) {
		s.dispatch(ctx, o)
	})
}

// dispatch runs the side effects of a committed transition, each bounded by the runner's
// timeout. Failures are logged by the runner and never undo the transition.
func (s *Service) dispatch(ctx context.Context, o outcome) {
	if o.refund != nil {
		target := o.appt
		target.Payment = *o.refund
		_ = s.effects.Refund(ctx, target)
	}
	if o.event != "" {
		_ = s.effects.Notify(ctx, effects.Event{
			Kind:        o.event,
			Appointment: o.appt,
			Reason:      o.reason,
			OccurredAt:  s.clock.Now(),
		})
	}
}

func requireProvider(actor Actor) func(domain.Appointment) error {
	return func(a domain.Appointment) error {
		if actor.ID != a.ProviderID {
			return domain.ErrNotAuthorized
		}
		return nil
	}
}

func requireParty(actor Actor) func(domain.Appointment) error {
	return func(a domain.Appointment) error {
		if actor.Admin || actor.ID == a.ProviderID || actor.ID == a.ConsumerID {
			return nil
		}
		return domain.ErrNotAuthorized
	}
}

// Confirm moves a pending booking to scheduled. Past the deadline the same call cancels
// the booking instead and returns ErrDeadlinePassed along with the canceled appointment.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, actor Actor) (out domain.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "Confirm", attribute.String("appointment_id", id.String()))
	defer func() { endSpan(span, err) }()

	o, err := s.mutate(ctx, id, requireProvider(actor), func(ctx context.Context, tx store.CalendarTx, a *domain.Appointment) (outcome, error) {
		if a.Status != domain.StatusPendingConfirmation {
			return outcome{}, &domain.TransitionError{From: a.Status, To: domain.StatusScheduled}
		}
		now := s.clock.Now()
		if a.DeadlinePassed(now) {
			refund, err := cancelAppointment(a, domain.ReasonConfirmationExpired, now)
			if err != nil {
				return outcome{}, err
			}
			return outcome{refund: refund, event: effects.EventBookingCanceled, reason: domain.ReasonConfirmationExpired}, domain.ErrDeadlinePassed
		}
		busy, err := tx.ListActive(ctx, a.ProviderID, a.Interval(), a.ID)
		if err != nil {
			return outcome{}, err
		}
		if len(busy) > 0 {
			return outcome{}, domain.ErrSlotUnavailable
		}
		if err := a.Confirm(now); err != nil {
			return outcome{}, err
		}
		return outcome{event: effects.EventBookingConfirmed}, nil
	})
	if errors.Is(err, domain.ErrDeadlinePassed) {
		s.metrics.Transition(string(domain.StatusCanceled), originRequest)
		s.log.InfoContext(ctx, "confirmation after deadline canceled the appointment", "appointment_id", id.String())
		s.dispatchAsync(ctx, o)
		return o.appt, err
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	s.metrics.Transition(string(domain.StatusScheduled), originRequest)
	s.dispatchAsync(ctx, o)
	return o.appt, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor, reason string) (out domain.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "Cancel", attribute.String("appointment_id", id.String()))
	defer func() { endSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if len(reason) > 1000 {
		return domain.Appointment{}, validationError("reason too long")
	}
	o, err := s.mutate(ctx, id, requireParty(actor), func(ctx context.Context, tx store.CalendarTx, a *domain.Appointment) (outcome, error) {
		r := reason
		if r == "" {
			r = defaultCancelReason(actor, *a)
		}
		refund, err := cancelAppointment(a, r, s.clock.Now())
		if err != nil {
			return outcome{}, err
		}
		return outcome{refund: refund, event: effects.EventBookingCanceled, reason: r}, nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	s.metrics.Transition(string(domain.StatusCanceled), originRequest)
	s.dispatchAsync(ctx, o)
	return o.appt, nil
}

func defaultCancelReason(actor Actor, a domain.Appointment) string {
	switch {
	case actor.ID == a.ProviderID:
		return "canceled by provider"
	case actor.ID == a.ConsumerID:
		return "canceled by consumer"
	}
	return "canceled by administrator"
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor Actor, note string) (out domain.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "Complete", attribute.String("appointment_id", id.String()))
	defer func() { endSpan(span, err) }()

	note = strings.TrimSpace(note)
	if len(note) > 4000 {
		return domain.Appointment{}, validationError("note too long")
	}
	o, err := s.mutate(ctx, id, requireProvider(actor), func(ctx context.Context, tx store.CalendarTx, a *domain.Appointment) (outcome, error) {
		if err := a.Complete(note, "", s.clock.Now()); err != nil {
			return outcome{}, err
		}
		return outcome{event: effects.EventSessionCompleted}, nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	s.metrics.Transition(string(domain.StatusCompleted), originRequest)
	s.dispatchAsync(ctx, o)
	return o.appt, nil
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, actor Actor) (out domain.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "MarkNoShow", attribute.String("appointment_id", id.String()))
	defer func() { endSpan(span, err) }()

	o, err := s.mutate(ctx, id, requireProvider(actor), func(ctx context.Context, tx store.CalendarTx, a *domain.Appointment) (outcome, error) {
		return outcome{}, a.MarkNoShow(s.clock.Now())
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	s.metrics.Transition(string(domain.StatusNoShow), originRequest)
	return o.appt, nil
}

// ConfirmPayment is called when the payment collaborator reports a successful charge.
// The provider's calendar is checked again before the booking becomes scheduled; on a
// conflict it stays pending-payment.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, externalRef string) (out domain.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "ConfirmPayment", attribute.String("appointment_id", id.String()))
	defer func() { endSpan(span, err) }()

	externalRef = strings.TrimSpace(externalRef)
	if externalRef == "" {
		return domain.Appointment{}, validationError("external_ref is required")
	}
	o, err := s.mutate(ctx, id, nil, func(ctx context.Context, tx store.CalendarTx, a *domain.Appointment) (outcome, error) {
		if a.Status != domain.StatusPendingPayment {
			return outcome{}, &domain.TransitionError{From: a.Status, To: domain.StatusScheduled}
		}
		busy, err := tx.ListActive(ctx, a.ProviderID, a.Interval(), a.ID)
		if err != nil {
			return outcome{}, err
		}
		if len(busy) > 0 {
			return outcome{}, domain.ErrSlotUnavailable
		}
		if err := a.Confirm(s.clock.Now()); err != nil {
			return outcome{}, err
		}
		a.Payment.Status = domain.PaymentCompleted
		a.Payment.ExternalRef = externalRef
		return outcome{event: effects.EventBookingConfirmed}, nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	s.metrics.Transition(string(domain.StatusScheduled), originRequest)
	s.dispatchAsync(ctx, o)
	return o.appt, nil
}
