// Package payment holds the refund side of the payment collaborator. The engine never
// initiates charges.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/refund"

	"sessionbook/backend/internal/domain"
)

var ErrNoTransaction = errors.New("payment has no transaction reference")

// LogRefunder records refund requests in the log only.
type LogRefunder struct {
	log *slog.Logger
}

func NewLogRefunder(log *slog.Logger) *LogRefunder {
	return &LogRefunder{log: log.With("component", "payment.log")}
}

func (r *LogRefunder) RequestRefund(ctx context.Context, appointmentID uuid.UUID, p domain.Payment) error {
	if p.ExternalRef == "" {
		return ErrNoTransaction
	}
	r.log.InfoContext(ctx, "refund requested",
		"appointment_id", appointmentID.String(),
		"external_ref", p.ExternalRef,
		"amount", p.AmountMinor,
		"payment_status", string(p.Status),
	)
	return nil
}

type refundCreator interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeRefunder issues refunds through the Stripe API. The idempotency key is derived
// from the appointment so a repeated sweep never refunds twice.
type StripeRefunder struct {
	refunds refundCreator
	log     *slog.Logger
}

func NewStripeRefunder(secretKey string, log *slog.Logger) *StripeRefunder {
	return &StripeRefunder{
		refunds: &refund.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		log:     log.With("component", "payment.stripe"),
	}
}

func (r *StripeRefunder) RequestRefund(ctx context.Context, appointmentID uuid.UUID, p domain.Payment) error {
	ref := strings.TrimSpace(p.ExternalRef)
	if ref == "" {
		return ErrNoTransaction
	}

	params := &stripe.RefundParams{
		Reason: stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if strings.HasPrefix(ref, "pi_") {
		params.PaymentIntent = stripe.String(ref)
	} else {
		params.Charge = stripe.String(ref)
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("refund:" + appointmentID.String() + ":" + ref)
	params.AddMetadata("appointment_id", appointmentID.String())

	rf, err := r.refunds.New(params)
	if err != nil {
		return fmt.Errorf("stripe refund %s: %w", ref, err)
	}
	r.log.InfoContext(ctx, "stripe refund created",
		"appointment_id", appointmentID.String(),
		"refund_id", rf.ID,
		"status", string(rf.Status),
	)
	return nil
}
