package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDuration     = errors.New("duration must be a multiple of 15 minutes between 15 and 120")
	ErrInvalidWindow       = errors.New("window end must be after its start")
	ErrOutsideAvailability = errors.New("requested time is outside the provider's availability")
	ErrSlotUnavailable     = errors.New("the provider already has a session during that time")
	ErrIllegalTransition   = errors.New("illegal status transition")
	ErrNotAuthorized       = errors.New("actor is not allowed to perform this action")
	ErrDeadlinePassed      = errors.New("confirmation deadline has passed")
	ErrNotFound            = errors.New("appointment not found")
	ErrIllegalState        = errors.New("appointment is not in the required state")
)

// TransitionError reports an attempted move that the lifecycle table does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal status transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}
