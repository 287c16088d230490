package effects

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sessionbook/backend/internal/domain"
	"sessionbook/backend/internal/metrics"
)

const DefaultTimeout = 5 * time.Second

// Runner executes side effects outside any storage lock. Every call gets its own
// deadline and is detached from the caller's cancellation, so a client hanging up does
// not abort a refund and a hung collaborator cannot stall the caller past the timeout.
// Failures are logged and counted, never retried.
type Runner struct {
	notifier Notifier
	refunder Refunder
	timeout  time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics

	wg sync.WaitGroup
}

type RunnerConfig struct {
	Notifier Notifier
	Refunder Refunder
	Timeout  time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NotifierFunc(func(context.Context, Event) error { return nil })
	}
	if cfg.Refunder == nil {
		cfg.Refunder = RefunderFunc(func(context.Context, uuid.UUID, domain.Payment) error { return nil })
	}
	return &Runner{
		notifier: cfg.Notifier,
		refunder: cfg.Refunder,
		timeout:  cfg.Timeout,
		log:      cfg.Logger.With("component", "effects"),
		metrics:  cfg.Metrics,
	}
}

// Notify sends ev synchronously within the runner's timeout.
func (r *Runner) Notify(ctx context.Context, ev Event) error {
	return r.do(ctx, "notify", ev.Appointment.ID, func(ctx context.Context) error {
		return r.notifier.Notify(ctx, ev)
	}, "event", string(ev.Kind))
}

// Refund requests a refund synchronously within the runner's timeout.
func (r *Runner) Refund(ctx context.Context, appt domain.Appointment) error {
	return r.do(ctx, "refund", appt.ID, func(ctx context.Context) error {
		return r.refunder.RequestRefund(ctx, appt.ID, appt.Payment)
	}, "external_ref", appt.Payment.ExternalRef)
}

// Go runs fn in the background. Used on request paths where the caller must not wait.
func (r *Runner) Go(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(ctx)
	}()
}

// Wait blocks until every effect started with Go has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) do(ctx context.Context, effect string, appointmentID uuid.UUID, fn func(ctx context.Context) error, attrs ...any) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		r.metrics.Effect(effect, time.Since(start).Seconds(), err)
		if err != nil {
			args := append([]any{"appointment_id", appointmentID.String(), "effect", effect, "err", err}, attrs...)
			r.log.WarnContext(ctx, "side effect failed", args...)
		}
	}()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("%s panicked: %v", effect, p)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("%s: %w", effect, ctx.Err())
	}
	return err
}
