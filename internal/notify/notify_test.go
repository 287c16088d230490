package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"sessionbook/backend/internal/domain"
	"sessionbook/backend/internal/effects"
)

type fakePublisher struct {
	publishFn func(ctx context.Context, channel string, message any) *redis.IntCmd
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	if f.publishFn == nil {
		panic("unexpected call to Publish")
	}
	return f.publishFn(ctx, channel, message)
}

type fakeWriter struct {
	writeFn func(ctx context.Context, msgs ...kafka.Message) error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.writeFn == nil {
		panic("unexpected call to WriteMessages")
	}
	return f.writeFn(ctx, msgs...)
}

func testEvent() effects.Event {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	return effects.Event{
		Kind: effects.EventBookingCanceled,
		Appointment: domain.Appointment{
			ID:         uuid.MustParse("00000000-0000-0000-0000-0000000000aa"),
			ProviderID: "prov-1",
			ConsumerID: "cons-1",
			Status:     domain.StatusCanceled,
			StartTime:  start,
			EndTime:    start.Add(30 * time.Minute),
		},
		Reason:     domain.ReasonConfirmationExpired,
		OccurredAt: start.Add(-time.Hour),
	}
}

func TestRedisNotifier_PublishesJSON(t *testing.T) {
	var gotChannel string
	var gotPayload []byte
	pub := &fakePublisher{publishFn: func(ctx context.Context, channel string, message any) *redis.IntCmd {
		gotChannel = channel
		gotPayload, _ = message.([]byte)
		return redis.NewIntResult(1, nil)
	}}

	n := NewRedisNotifier(pub, "sessionbook.events", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := n.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotChannel != "sessionbook.events" {
		t.Fatalf("channel = %q", gotChannel)
	}

	var m Message
	if err := json.Unmarshal(gotPayload, &m); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if m.Event != "booking-canceled" || m.Reason != domain.ReasonConfirmationExpired || m.ProviderID != "prov-1" {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.EventID != "booking-canceled:00000000-0000-0000-0000-0000000000aa" {
		t.Fatalf("event id = %q", m.EventID)
	}
}

func TestRedisNotifier_PublishError(t *testing.T) {
	pub := &fakePublisher{publishFn: func(ctx context.Context, channel string, message any) *redis.IntCmd {
		return redis.NewIntResult(0, errors.New("connection refused"))
	}}
	n := NewRedisNotifier(pub, "c", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := n.Notify(context.Background(), testEvent()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestKafkaNotifier_WritesKeyedMessage(t *testing.T) {
	var got []kafka.Message
	w := &fakeWriter{writeFn: func(ctx context.Context, msgs ...kafka.Message) error {
		got = append(got, msgs...)
		return nil
	}}

	n := NewKafkaNotifier(w, "sessionbook.events")
	if err := n.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	msg := got[0]
	if msg.Topic != "sessionbook.events" || string(msg.Key) != "prov-1" {
		t.Fatalf("unexpected topic/key: %q %q", msg.Topic, msg.Key)
	}
	h := map[string]string{}
	for _, hd := range msg.Headers {
		h[hd.Key] = string(hd.Value)
	}
	if h["event_type"] != "booking-canceled" || h["event_id"] == "" {
		t.Fatalf("unexpected headers: %v", h)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("SplitBrokers = %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := n.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}
