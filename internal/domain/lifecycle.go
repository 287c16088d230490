package domain

import "time"

type Status string

const (
	StatusPendingPayment      Status = "pending-payment"
	StatusPendingConfirmation Status = "pending-provider-confirmation"
	StatusScheduled           Status = "scheduled"
	StatusCompleted           Status = "completed"
	StatusCanceled            Status = "canceled"
	StatusNoShow              Status = "no-show"
)

const (
	ReasonConfirmationExpired = "provider did not confirm in time"
	ReasonPaymentExpired      = "payment time limit exceeded"
	DefaultCompletionNote     = "Session completed automatically after its scheduled end time."
)

var transitions = map[Status][]Status{
	StatusPendingConfirmation: {StatusScheduled, StatusCanceled},
	StatusPendingPayment:      {StatusScheduled, StatusCanceled},
	StatusScheduled:           {StatusCompleted, StatusCanceled, StatusNoShow},
}

// ActiveStatuses occupy the provider's calendar.
var ActiveStatuses = []Status{StatusPendingConfirmation, StatusScheduled}

func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusPendingConfirmation, StatusScheduled,
		StatusCompleted, StatusCanceled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Active() bool {
	return s == StatusPendingConfirmation || s == StatusScheduled
}

func (s Status) Initial() bool {
	return s == StatusPendingPayment || s == StatusPendingConfirmation
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusNoShow
}

func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func (a *Appointment) transition(to Status, now time.Time) error {
	if !CanTransition(a.Status, to) {
		return &TransitionError{From: a.Status, To: to}
	}
	if a.Status == StatusPendingConfirmation {
		a.ConfirmationDeadline = nil
	}
	a.Status = to
	a.UpdatedAt = now.UTC()
	return nil
}

// Confirm moves a pending appointment to scheduled. Deadline and conflict checks are the
// caller's job; this only enforces the table.
func (a *Appointment) Confirm(now time.Time) error {
	return a.transition(StatusScheduled, now)
}

func (a *Appointment) Cancel(reason string, now time.Time) error {
	if err := a.transition(StatusCanceled, now); err != nil {
		return err
	}
	a.CancellationReason = reason
	return nil
}

// Complete moves a scheduled appointment to completed. An empty note keeps whatever a
// participant already recorded, falling back to fallback.
func (a *Appointment) Complete(note, fallback string, now time.Time) error {
	if err := a.transition(StatusCompleted, now); err != nil {
		return err
	}
	switch {
	case note != "":
		a.CompletionNote = note
	case a.CompletionNote == "":
		a.CompletionNote = fallback
	}
	return nil
}

func (a *Appointment) MarkNoShow(now time.Time) error {
	return a.transition(StatusNoShow, now)
}

// DeadlinePassed reports whether a pending confirmation is past its deadline at now.
func (a Appointment) DeadlinePassed(now time.Time) bool {
	return a.Status == StatusPendingConfirmation &&
		a.ConfirmationDeadline != nil &&
		now.After(*a.ConfirmationDeadline)
}

// ConfirmationDeadline computes when a provider must have confirmed a booking made at
// now. Near-term bookings get now+grace, even when that falls after start. Later ones
// get grace after the provider's first working window on the appointment's day (in loc),
// capped at start, or now+grace when that day has no entry.
func ConfirmationDeadline(now, start time.Time, avail WeeklyAvailability, loc *time.Location, nearTerm, grace time.Duration) time.Time {
	deadline := now.Add(grace)
	if start.Sub(now) >= nearTerm {
		if loc == nil {
			loc = time.UTC
		}
		if workStart, ok := avail.WorkdayStart(start.In(loc)); ok {
			deadline = workStart.Add(grace)
			if deadline.After(start) {
				deadline = start
			}
		}
	}
	return deadline.UTC()
}
