// Package sweeper enforces the time-based deadlines of the appointment lifecycle.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sessionbook/backend/internal/clock"
	"sessionbook/backend/internal/domain"
	"sessionbook/backend/internal/metrics"
	"sessionbook/backend/internal/store"
	"sessionbook/backend/internal/telemetry"
)

const (
	ScanConfirmation = "confirmation"
	ScanPayment      = "payment"
	ScanCompletion   = "completion"
)

// Source lists appointments whose deadline has passed, in keyset order after the cursor.
type Source interface {
	ListConfirmationExpired(ctx context.Context, now time.Time, after store.Cursor, limit int) ([]domain.Appointment, error)
	ListPaymentExpired(ctx context.Context, createdBefore time.Time, after store.Cursor, limit int) ([]domain.Appointment, error)
	ListEnded(ctx context.Context, now time.Time, after store.Cursor, limit int) ([]domain.Appointment, error)
}

// Transitioner applies one system transition. It re-checks eligibility under the
// provider lock and reports false when the appointment no longer qualifies.
type Transitioner interface {
	ExpireConfirmation(ctx context.Context, a domain.Appointment) (bool, error)
	ExpirePayment(ctx context.Context, a domain.Appointment) (bool, error)
	AutoComplete(ctx context.Context, a domain.Appointment) (bool, error)
}

type Config struct {
	BatchSize     int
	PaymentWindow time.Duration
	// MaxBatches caps the pages one scan reads.
	MaxBatches int
}

type Sweeper struct {
	source    Source
	engine    Transitioner
	clock     clock.Clock
	log       *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	batchSize  int
	maxBatches int
	window     time.Duration
}

// Result summarizes one scan.
type Result struct {
	Scanned   int
	Processed int
	Failed    int
}

func New(source Source, engine Transitioner, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PaymentWindow <= 0 {
		cfg.PaymentWindow = 24 * time.Hour
	}
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = 1000
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		source:    source,
		engine:    engine,
		clock:     clk,
		log:       logger.With("component", "sweeper"),
		metrics:   m,
		tracer:    telemetry.Tracer(),
		batchSize:  cfg.BatchSize,
		maxBatches: cfg.MaxBatches,
		window:     cfg.PaymentWindow,
	}
}

// ExpireConfirmations cancels bookings whose provider missed the confirmation deadline.
func (s *Sweeper) ExpireConfirmations(ctx context.Context) (Result, error) {
	return s.scan(ctx, ScanConfirmation,
		func(ctx context.Context, now time.Time, after store.Cursor) ([]domain.Appointment, error) {
			return s.source.ListConfirmationExpired(ctx, now, after, s.batchSize)
		},
		func(a domain.Appointment) time.Time {
			if a.ConfirmationDeadline == nil {
				return time.Time{}
			}
			return *a.ConfirmationDeadline
		},
		s.engine.ExpireConfirmation)
}

// ExpirePayments cancels bookings left unpaid for longer than the payment window.
func (s *Sweeper) ExpirePayments(ctx context.Context) (Result, error) {
	return s.scan(ctx, ScanPayment,
		func(ctx context.Context, now time.Time, after store.Cursor) ([]domain.Appointment, error) {
			return s.source.ListPaymentExpired(ctx, now.Add(-s.window), after, s.batchSize)
		},
		func(a domain.Appointment) time.Time { return a.CreatedAt },
		s.engine.ExpirePayment)
}

// CompleteEnded completes scheduled sessions whose end time has passed.
func (s *Sweeper) CompleteEnded(ctx context.Context) (Result, error) {
	return s.scan(ctx, ScanCompletion,
		func(ctx context.Context, now time.Time, after store.Cursor) ([]domain.Appointment, error) {
			return s.source.ListEnded(ctx, now, after, s.batchSize)
		},
		func(a domain.Appointment) time.Time { return a.EndTime },
		s.engine.AutoComplete)
}

// RunAll runs the three scans once each. A failing scan does not stop the others.
func (s *Sweeper) RunAll(ctx context.Context) error {
	var firstErr error
	for _, run := range []func(context.Context) (Result, error){s.ExpireConfirmations, s.ExpirePayments, s.CompleteEnded} {
		if _, err := run(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// scan pages through due appointments with a keyset cursor and transitions each
// independently. Rows that fail stay behind the cursor and are retried on the next
// run, so they never hide newer rows. The scan ends on a short batch or at maxBatches.
func (s *Sweeper) scan(
	ctx context.Context,
	name string,
	list func(ctx context.Context, now time.Time, after store.Cursor) ([]domain.Appointment, error),
	key func(a domain.Appointment) time.Time,
	apply func(ctx context.Context, a domain.Appointment) (bool, error),
) (res Result, err error) {
	ctx, span := s.tracer.Start(ctx, "sweeper."+name)
	start := time.Now()
	defer func() {
		span.SetAttributes(
			attribute.Int("sweep.scanned", res.Scanned),
			attribute.Int("sweep.processed", res.Processed),
			attribute.Int("sweep.failed", res.Failed),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.Sweep(name, time.Since(start).Seconds(), res.Processed, res.Failed)
	}()

	now := s.clock.Now()
	var cursor store.Cursor
	for page := 0; ; page++ {
		if page == s.maxBatches {
			s.log.WarnContext(ctx, "sweep stopped at batch limit", "scan", name, "batches", page)
			break
		}
		batch, err := list(ctx, now, cursor)
		if err != nil {
			s.log.ErrorContext(ctx, "sweep scan failed", "scan", name, "err", err)
			return res, fmt.Errorf("%s scan: %w", name, err)
		}
		res.Scanned += len(batch)

		for _, a := range batch {
			changed, err := apply(ctx, a)
			if err != nil {
				res.Failed++
				s.log.ErrorContext(ctx, "sweep transition failed",
					"scan", name,
					"appointment_id", a.ID.String(),
					"provider_id", a.ProviderID,
					"err", err,
				)
				continue
			}
			if changed {
				res.Processed++
			}
		}

		if len(batch) < s.batchSize {
			break
		}
		last := batch[len(batch)-1]
		cursor = store.Cursor{At: key(last), ID: last.ID}
	}

	if res.Processed > 0 || res.Failed > 0 {
		s.log.InfoContext(ctx, "sweep finished",
			"scan", name,
			"scanned", res.Scanned,
			"processed", res.Processed,
			"failed", res.Failed,
		)
	}
	return res, nil
}
