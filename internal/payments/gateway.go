package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	"github.com/angelmondragon/rentalhub-backend/internal/ledger"
	"github.com/angelmondragon/rentalhub-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/rentalhub-backend/pkg/stripe"
)

// IntentGateway creates and inspects processor payment intents.
type IntentGateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
}

// IntentRequest is a charge for one booking in minor currency units.
type IntentRequest struct {
	BookingID      uuid.UUID
	RenterID       uuid.UUID
	Amount         int64
	Currency       string
	IdempotencyKey string
}

// Intent is the processor-side view of a payment attempt.
type Intent struct {
	ID           string
	ClientSecret string
	Status       stripe.PaymentIntentStatus
	Amount       int64
}

// Reusable reports whether the renter can still complete this intent.
func (i Intent) Reusable() bool {
	switch i.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusCanceled:
		return false
	default:
		return true
	}
}

// StripeGateway talks to Stripe PaymentIntents and Refunds.
type StripeGateway struct {
	timeout time.Duration
}

var (
	_ IntentGateway   = (*StripeGateway)(nil)
	_ ledger.Refunder = (*StripeGateway)(nil)
)

// NewStripeGateway binds the gateway to an initialized Stripe client.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &StripeGateway{timeout: client.RequestTimeout()}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("booking_id", req.BookingID.String())
	params.AddMetadata("renter_id", req.RenterID.String())

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, id string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(id, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch payment intent")
	}
	return toIntent(pi), nil
}

// Refund returns captured funds and reports Stripe's refund id.
func (g *StripeGateway) Refund(ctx context.Context, req ledger.RefundRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Amount:        stripe.Int64(pricing.ToMinorUnits(req.Amount)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("payment_id", req.PaymentID.String())
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	re, err := refund.New(params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
	}
	return re.ID, nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	if pi == nil {
		return nil
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       pi.Status,
		Amount:       pi.Amount,
	}
}
