package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"sessionbook/backend/internal/domain"
)

type fakeRefunds struct {
	newFn func(params *stripe.RefundParams) (*stripe.Refund, error)
}

func (f *fakeRefunds) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	if f.newFn == nil {
		panic("unexpected call to New")
	}
	return f.newFn(params)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestStripeRefunder_PaymentIntent(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	var got *stripe.RefundParams
	r := &StripeRefunder{
		refunds: &fakeRefunds{newFn: func(params *stripe.RefundParams) (*stripe.Refund, error) {
			got = params
			return &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusSucceeded}, nil
		}},
		log: discard(),
	}

	err := r.RequestRefund(context.Background(), id, domain.Payment{ExternalRef: "pi_123", Status: domain.PaymentCompleted, AmountMinor: 5000})
	if err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}
	if got.PaymentIntent == nil || *got.PaymentIntent != "pi_123" || got.Charge != nil {
		t.Fatalf("expected payment intent refund, got %+v", got)
	}
	if got.IdempotencyKey == nil || *got.IdempotencyKey != "refund:"+id.String()+":pi_123" {
		t.Fatalf("unexpected idempotency key")
	}
	if got.Metadata["appointment_id"] != id.String() {
		t.Fatalf("metadata missing appointment id: %v", got.Metadata)
	}
}

func TestStripeRefunder_Charge(t *testing.T) {
	var got *stripe.RefundParams
	r := &StripeRefunder{
		refunds: &fakeRefunds{newFn: func(params *stripe.RefundParams) (*stripe.Refund, error) {
			got = params
			return &stripe.Refund{ID: "re_2"}, nil
		}},
		log: discard(),
	}
	if err := r.RequestRefund(context.Background(), uuid.New(), domain.Payment{ExternalRef: "ch_9", Status: domain.PaymentCompleted}); err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}
	if got.Charge == nil || *got.Charge != "ch_9" {
		t.Fatalf("expected charge refund, got %+v", got)
	}
}

func TestStripeRefunder_Errors(t *testing.T) {
	r := &StripeRefunder{
		refunds: &fakeRefunds{newFn: func(params *stripe.RefundParams) (*stripe.Refund, error) {
			return nil, errors.New("card_declined")
		}},
		log: discard(),
	}
	if err := r.RequestRefund(context.Background(), uuid.New(), domain.Payment{ExternalRef: "ch_1"}); err == nil {
		t.Fatalf("expected stripe error to surface")
	}
	if err := r.RequestRefund(context.Background(), uuid.New(), domain.Payment{}); !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("expected ErrNoTransaction, got %v", err)
	}
}

func TestLogRefunder(t *testing.T) {
	r := NewLogRefunder(discard())
	if err := r.RequestRefund(context.Background(), uuid.New(), domain.Payment{ExternalRef: "ch_1"}); err != nil {
		t.Fatalf("RequestRefund: %v", err)
	}
	if err := r.RequestRefund(context.Background(), uuid.New(), domain.Payment{}); !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("expected ErrNoTransaction, got %v", err)
	}
}
