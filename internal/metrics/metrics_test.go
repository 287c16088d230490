package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BookingOutcome("created")
	m.BookingOutcome("created")
	m.Transition("scheduled", "request")
	m.Sweep("confirmation", 0.01, 3, 1)
	m.Effect("notify", 0.001, nil)
	m.Effect("refund", 0.001, errors.New("boom"))

	if got := testutil.ToFloat64(m.Bookings.WithLabelValues("created")); got != 2 {
		t.Fatalf("bookings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SweepProcessed.WithLabelValues("confirmation")); got != 3 {
		t.Fatalf("processed = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.EffectFailures.WithLabelValues("refund")); got != 1 {
		t.Fatalf("refund failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EffectFailures.WithLabelValues("notify")); got != 0 {
		t.Fatalf("notify failures = %v, want 0", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.BookingOutcome("created")
	m.Transition("canceled", "sweeper")
	m.Sweep("completion", 1, 1, 0)
	m.Effect("notify", 1, errors.New("x"))
}
