package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sessionbook"

// Metrics holds the scheduling engine's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// Booking attempts by outcome (created, slot_unavailable, outside_availability, ...)
	Bookings *prometheus.CounterVec
	// Lifecycle transitions by target status and origin (request, sweeper).
	Transitions *prometheus.CounterVec

	SweepRuns      *prometheus.CounterVec
	SweepProcessed *prometheus.CounterVec
	SweepFailures  *prometheus.CounterVec
	SweepDuration  *prometheus.HistogramVec

	EffectFailures *prometheus.CounterVec
	EffectLatency  *prometheus.HistogramVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Bookings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Total number of booking attempts by outcome",
		}, []string{"outcome"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Total number of committed status transitions",
		}, []string{"to", "origin"}),

		SweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Total number of sweep passes per scan",
		}, []string{"scan"}),
		SweepProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "processed_total",
			Help:      "Appointments transitioned by the sweeper",
		}, []string{"scan"}),
		SweepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "failures_total",
			Help:      "Appointments the sweeper failed to transition",
		}, []string{"scan"}),
		SweepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "run_duration_seconds",
			Help:      "Duration of a single sweep pass",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"scan"}),

		EffectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "effects",
			Name:      "failures_total",
			Help:      "Side effects (notifications, refunds) that failed or timed out",
		}, []string{"effect"}),
		EffectLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "effects",
			Name:      "duration_seconds",
			Help:      "Duration of side-effect calls",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"effect"}),
	}
}

func (m *Metrics) BookingOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Transition(to, origin string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(to, origin).Inc()
}

func (m *Metrics) Sweep(scan string, seconds float64, processed, failed int) {
	if m == nil {
		return
	}
	m.SweepRuns.WithLabelValues(scan).Inc()
	m.SweepDuration.WithLabelValues(scan).Observe(seconds)
	m.SweepProcessed.WithLabelValues(scan).Add(float64(processed))
	m.SweepFailures.WithLabelValues(scan).Add(float64(failed))
}

func (m *Metrics) Effect(effect string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.EffectLatency.WithLabelValues(effect).Observe(seconds)
	if err != nil {
		m.EffectFailures.WithLabelValues(effect).Inc()
	}
}
