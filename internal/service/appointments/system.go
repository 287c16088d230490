package appointments

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"sessionbook/backend/internal/domain"
	"sessionbook/backend/internal/effects"
	"sessionbook/backend/internal/store"
)

// System transitions driven by the deadline sweeper. Each one re-validates the
// appointment under the provider lock, so a row that changed since it was listed is
// skipped rather than overwritten, and reports whether it changed anything. Side effects
// run synchronously after the commit, bounded by the effects runner's timeout.

// ExpireConfirmation cancels a booking whose provider missed the confirmation deadline.
func (s *Service) ExpireConfirmation(ctx context.Context, listed domain.Appointment) (changed bool, err error) {
	return s.systemTransition(ctx, "ExpireConfirmation", listed, func(a *domain.Appointment) (outcome, error) {
		now := s.clock.Now()
		if !a.DeadlinePassed(now) {
			return outcome{}, errSkip
		}
		refund, err := cancelAppointment(a, domain.ReasonConfirmationExpired, now)
		if err != nil {
			return outcome{}, err
		}
		return outcome{refund: refund, event: effects.EventBookingCanceled, reason: domain.ReasonConfirmationExpired}, nil
	})
}

// ExpirePayment cancels a booking that stayed unpaid past the payment window.
func (s *Service) ExpirePayment(ctx context.Context, listed domain.Appointment) (changed bool, err error) {
	return s.systemTransition(ctx, "ExpirePayment", listed, func(a *domain.Appointment) (outcome, error) {
		now := s.clock.Now()
		if a.Status != domain.StatusPendingPayment || !a.CreatedAt.Before(now.Add(-s.cfg.PaymentWindow)) {
			return outcome{}, errSkip
		}
		refund, err := cancelAppointment(a, domain.ReasonPaymentExpired, now)
		if err != nil {
			return outcome{}, err
		}
		return outcome{refund: refund, event: effects.EventBookingCanceled, reason: domain.ReasonPaymentExpired}, nil
	})
}

// AutoComplete completes a scheduled session whose end time has passed. A note recorded
// by a participant is kept.
func (s *Service) AutoComplete(ctx context.Context, listed domain.Appointment) (changed bool, err error) {
	return s.systemTransition(ctx, "AutoComplete", listed, func(a *domain.Appointment) (outcome, error) {
		now := s.clock.Now()
		if a.Status != domain.StatusScheduled || !a.EndTime.Before(now) {
			return outcome{}, errSkip
		}
		if err := a.Complete("", domain.DefaultCompletionNote, now); err != nil {
			return outcome{}, err
		}
		return outcome{event: effects.EventSessionCompleted}, nil
	})
}

func (s *Service) systemTransition(ctx context.Context, name string, listed domain.Appointment, fn func(a *domain.Appointment) (outcome, error)) (changed bool, err error) {
	ctx, span := s.startSpan(ctx, name, attribute.String("appointment_id", listed.ID.String()))
	defer func() { endSpan(span, err) }()

	o, err := s.mutateLocked(ctx, listed, func(ctx context.Context, tx store.CalendarTx, a *domain.Appointment) (outcome, error) {
		return fn(a)
	})
	if err != nil {
		if errors.Is(err, errSkip) {
			return false, nil
		}
		return false, err
	}
	s.metrics.Transition(string(o.appt.Status), originSweeper)
	s.dispatch(ctx, o)
	return true, nil
}
