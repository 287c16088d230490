package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"sessionbook/backend/internal/domain"
	"sessionbook/backend/internal/service/appointments"
	"sessionbook/backend/internal/store"
)

const (
	actorIDHeader   = "x-actor-id"
	actorRoleHeader = "x-actor-role"

	roleAdmin   = "admin"
	rolePayment = "payment"
)

type SessionsServer struct {
	svc sessionsService
	log *slog.Logger
}

type sessionsService interface {
	Book(ctx context.Context, in appointments.BookInput) (domain.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID, actor appointments.Actor) (domain.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, actor appointments.Actor, reason string) (domain.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID, actor appointments.Actor, note string) (domain.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID, actor appointments.Actor) (domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID, actor appointments.Actor) (domain.Appointment, error)
	OpenSlots(ctx context.Context, in appointments.OpenSlotsInput) ([]domain.Interval, error)
	SpawnFollowUp(ctx context.Context, in appointments.FollowUpInput) (domain.Appointment, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID, externalRef string) (domain.Appointment, error)
}

func NewSessionsServer(svc sessionsService, log *slog.Logger) *SessionsServer {
	if log == nil {
		log = slog.Default()
	}
	return &SessionsServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.sessions")),
	}
}

func (s *SessionsServer) BookSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", MethodBookSession))

	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	start, err := timeField(req, "start_time")
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	minutes, err := intField(req, "duration_minutes")
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}

	appt, err := s.svc.Book(ctx, appointments.BookInput{
		ProviderID:      stringField(req, "provider_id"),
		ConsumerID:      stringField(req, "consumer_id"),
		StartTime:       start,
		DurationMinutes: minutes,
		SessionKind:     domain.SessionKind(stringField(req, "session_kind")),
		IdempotencyKey:  idempotencyKey(ctx),
		Actor:           actor,
	})
	if err != nil {
		return nil, s.fail(ctx, log, err,
			slog.String("provider_id", stringField(req, "provider_id")),
			slog.Time("start_time", start),
		)
	}

	log.InfoContext(ctx, "session booked",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("provider_id", appt.ProviderID),
		slog.String("status", string(appt.Status)),
	)
	return appointmentResponse(appt)
}

func (s *SessionsServer) ConfirmSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, req, MethodConfirmSession, func(ctx context.Context, id uuid.UUID, actor appointments.Actor) (domain.Appointment, error) {
		return s.svc.Confirm(ctx, id, actor)
	})
}

func (s *SessionsServer) CancelSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	reason := stringField(req, "reason")
	return s.transition(ctx, req, MethodCancelSession, func(ctx context.Context, id uuid.UUID, actor appointments.Actor) (domain.Appointment, error) {
		return s.svc.Cancel(ctx, id, actor, reason)
	})
}

func (s *SessionsServer) CompleteSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	note := stringField(req, "note")
	return s.transition(ctx, req, MethodCompleteSession, func(ctx context.Context, id uuid.UUID, actor appointments.Actor) (domain.Appointment, error) {
		return s.svc.Complete(ctx, id, actor, note)
	})
}

func (s *SessionsServer) MarkNoShow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transition(ctx, req, MethodMarkNoShow, s.svc.MarkNoShow)
}

func (s *SessionsServer) GetSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", MethodGetSession))

	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	id, err := uuidField(req, "appointment_id")
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	appt, err := s.svc.Get(ctx, id, actor)
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("appointment_id", id.String()))
	}
	return appointmentResponse(appt)
}

func (s *SessionsServer) GetOpenSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", MethodGetOpenSlots))

	date, err := dateField(req, "date")
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	providerID := stringField(req, "provider_id")
	slots, err := s.svc.OpenSlots(ctx, appointments.OpenSlotsInput{ProviderID: providerID, Date: date})
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("provider_id", providerID))
	}

	log.DebugContext(ctx, "open slots listed",
		slog.String("provider_id", providerID),
		slog.String("date", date.Format(dateLayout)),
		slog.Int("count", len(slots)),
	)
	return slotsResponse(slots)
}

func (s *SessionsServer) SpawnFollowUp(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", MethodSpawnFollowUp))

	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	id, err := uuidField(req, "appointment_id")
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	start, err := timeField(req, "start_time")
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	minutes, err := intField(req, "duration_minutes")
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}

	appt, err := s.svc.SpawnFollowUp(ctx, appointments.FollowUpInput{
		OriginalID:      id,
		StartTime:       start,
		DurationMinutes: minutes,
		Note:            stringField(req, "note"),
		Actor:           actor,
	})
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("appointment_id", id.String()))
	}

	log.InfoContext(ctx, "follow-up created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("original_id", id.String()),
	)
	return appointmentResponse(appt)
}

// ConfirmPayment is called by the payment collaborator, which identifies itself with
// the payment role.
func (s *SessionsServer) ConfirmPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", MethodConfirmPayment))

	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	if role := actorRole(ctx); role != rolePayment && !actor.Admin {
		return nil, s.fail(ctx, log, domain.ErrNotAuthorized, slog.String("actor_id", actor.ID))
	}
	id, err := uuidField(req, "appointment_id")
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}

	appt, err := s.svc.ConfirmPayment(ctx, id, stringField(req, "external_ref"))
	if err != nil {
		return nil, s.fail(ctx, log, err, slog.String("appointment_id", id.String()))
	}
	log.InfoContext(ctx, "payment confirmed", slog.String("appointment_id", appt.ID.String()))
	return appointmentResponse(appt)
}

type transitionCall func(ctx context.Context, id uuid.UUID, actor appointments.Actor) (domain.Appointment, error)

func (s *SessionsServer) transition(ctx context.Context, req *structpb.Struct, rpc string, call transitionCall) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", rpc))

	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	id, err := uuidField(req, "appointment_id")
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}

	appt, err := call(ctx, id, actor)
	if err != nil {
		return nil, s.fail(ctx, log, err,
			slog.String("appointment_id", id.String()),
			slog.String("actor_id", actor.ID),
		)
	}

	log.InfoContext(ctx, "session updated",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("status", string(appt.Status)),
		slog.String("actor_id", actor.ID),
	)
	return appointmentResponse(appt)
}

var errMissingActor = errors.New("missing actor")

func actorFrom(ctx context.Context) (appointments.Actor, error) {
	id := firstHeader(ctx, actorIDHeader)
	if id == "" {
		return appointments.Actor{}, errMissingActor
	}
	return appointments.Actor{ID: id, Admin: actorRole(ctx) == roleAdmin}, nil
}

func actorRole(ctx context.Context) string {
	return strings.ToLower(firstHeader(ctx, actorRoleHeader))
}

func idempotencyKey(ctx context.Context) string {
	if key := firstHeader(ctx, "idempotency-key"); key != "" {
		return key
	}
	return firstHeader(ctx, "x-idempotency-key")
}

func firstHeader(ctx context.Context, name string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(name)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// fail logs err at a level matching its kind and converts it to a status error with a
// message a participant can act on.
func (s *SessionsServer) fail(ctx context.Context, log *slog.Logger, err error, attrs ...any) error {
	st := toStatus(err)
	args := append([]any{slog.Any("err", err), slog.String("code", st.Code().String())}, attrs...)
	switch st.Code() {
	case codes.Internal:
		log.ErrorContext(ctx, "request failed", args...)
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		log.WarnContext(ctx, "invalid request", args...)
	default:
		log.InfoContext(ctx, "request rejected", args...)
	}
	return st.Err()
}

func toStatus(err error) *status.Status {
	var vErr *appointments.ValidationError
	var fErr *fieldError
	switch {
	case errors.As(err, &vErr):
		return status.New(codes.InvalidArgument, vErr.Error())
	case errors.As(err, &fErr):
		return status.New(codes.InvalidArgument, fErr.Error())
	case errors.Is(err, errMissingActor):
		return status.New(codes.Unauthenticated, "x-actor-id metadata is required")
	case errors.Is(err, domain.ErrInvalidDuration):
		return status.New(codes.InvalidArgument, "Sessions last between 15 and 120 minutes, in 15-minute steps.")
	case errors.Is(err, domain.ErrInvalidWindow):
		return status.New(codes.InvalidArgument, "The time window ends before it starts.")
	case errors.Is(err, domain.ErrOutsideAvailability):
		return status.New(codes.FailedPrecondition, "The provider is not available at that time. Pick one of the open slots.")
	case errors.Is(err, domain.ErrSlotUnavailable):
		return status.New(codes.FailedPrecondition, "The provider already has a session during that time. Pick a different slot.")
	case errors.Is(err, domain.ErrDeadlinePassed):
		return status.New(codes.FailedPrecondition, "The confirmation deadline has passed, so the session was canceled.")
	case errors.Is(err, domain.ErrIllegalTransition):
		return status.New(codes.FailedPrecondition, "This session can no longer be changed that way.")
	case errors.Is(err, domain.ErrIllegalState):
		return status.New(codes.FailedPrecondition, "A follow-up can only be created once, from a completed session.")
	case errors.Is(err, domain.ErrNotAuthorized):
		return status.New(codes.PermissionDenied, "You are not allowed to do that for this session.")
	case errors.Is(err, domain.ErrNotFound):
		return status.New(codes.NotFound, "session not found")
	case errors.Is(err, store.ErrIdempotencyConflict):
		return status.New(codes.AlreadyExists, "This request key was already used for a different booking. Try again with a new key.")
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, "request canceled")
	}
	return status.New(codes.Internal, "internal error")
}
