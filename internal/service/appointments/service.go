package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sessionbook/backend/internal/clock"
	"sessionbook/backend/internal/domain"
	"sessionbook/backend/internal/effects"
	"sessionbook/backend/internal/identity"
	"sessionbook/backend/internal/metrics"
	"sessionbook/backend/internal/store"
	"sessionbook/backend/internal/telemetry"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Actor is the caller of a participant-facing operation.
type Actor struct {
	ID    string
	Admin bool
}

type Config struct {
	SlotStep          time.Duration
	PaymentWindow     time.Duration
	NearTermWindow    time.Duration
	ConfirmationGrace time.Duration
	// DefaultLocation applies to providers without a configured UTC offset.
	DefaultLocation *time.Location
}

func (c Config) withDefaults() Config {
	if c.SlotStep <= 0 {
		c.SlotStep = domain.DefaultSlotStep
	}
	if c.PaymentWindow <= 0 {
		c.PaymentWindow = 24 * time.Hour
	}
	if c.NearTermWindow <= 0 {
		c.NearTermWindow = 24 * time.Hour
	}
	if c.ConfirmationGrace <= 0 {
		c.ConfirmationGrace = time.Hour
	}
	if c.DefaultLocation == nil {
		c.DefaultLocation = domain.FixedOffset(5 * 60)
	}
	return c
}

type Deps struct {
	Repo      store.AppointmentRepository
	Directory identity.Directory
	Effects   *effects.Runner
	Clock     clock.Clock
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

type Service struct {
	repo      store.AppointmentRepository
	directory identity.Directory
	effects   *effects.Runner
	clock     clock.Clock
	log       *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	validate  *validator.Validate
	cfg       Config
}

func NewService(deps Deps, cfg Config) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Effects == nil {
		deps.Effects = effects.NewRunner(effects.RunnerConfig{Logger: deps.Logger, Metrics: deps.Metrics})
	}
	return &Service{
		repo:      deps.Repo,
		directory: deps.Directory,
		effects:   deps.Effects,
		clock:     deps.Clock,
		log:       deps.Logger.With("component", "service.appointments"),
		metrics:   deps.Metrics,
		tracer:    telemetry.Tracer(),
		validate:  newValidator(),
		cfg:       cfg.withDefaults(),
	}
}

// Effects exposes the runner so callers (and tests) can wait for background effects.
func (s *Service) Effects() *effects.Runner {
	return s.effects
}

func (s *Service) Get(ctx context.Context, id uuid.UUID, actor Actor) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, mapStoreError(err)
	}
	if !actor.Admin && actor.ID != a.ProviderID && actor.ID != a.ConsumerID {
		return domain.Appointment{}, domain.ErrNotAuthorized
	}
	return a, nil
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "appointments."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) location(p domain.Provider) *time.Location {
	if p.Location != nil {
		return p.Location
	}
	return s.cfg.DefaultLocation
}

func (s *Service) provider(ctx context.Context, id string) (domain.Provider, error) {
	p, err := identity.Provider(ctx, s.directory, id)
	if err != nil {
		if errors.Is(err, identity.ErrUnknownParticipant) {
			return domain.Provider{}, validationError("provider not found")
		}
		return domain.Provider{}, fmt.Errorf("load provider: %w", err)
	}
	return p, nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return domain.ErrSlotUnavailable
	case errors.Is(err, store.ErrStaleStatus):
		return fmt.Errorf("%w: status changed concurrently", domain.ErrIllegalTransition)
	}
	return err
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func (s *Service) validateInput(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return validationError(err.Error())
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return validationError(fe.Field() + " is required")
	case "nefield":
		return validationError("provider and consumer must be different participants")
	case "max":
		return validationError(fe.Field() + " too long")
	case "oneof":
		return validationError(fe.Field() + " must be one of: " + fe.Param())
	}
	return validationError(fe.Field() + " is invalid")
}
