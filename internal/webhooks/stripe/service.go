package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/rentalhub-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
)

type settlementHandler interface {
	OnSettlementConfirmed(ctx context.Context, input payments.Settlement) error
	OnSettlementFailed(ctx context.Context, input payments.SettlementFailure) error
}

type ServiceParams struct {
	Payments settlementHandler
	Logger   *logger.Logger
}

// Service routes verified Stripe events to the payment orchestrator.
type Service struct {
	payments settlementHandler
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, fmt.Errorf("payment orchestrator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{payments: params.Payments, logg: params.Logger}, nil
}

// HandleEvent applies one event. A nil return means Stripe should not
// redeliver it; errors that a retry cannot fix are logged and dropped.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": event.Type,
	})

	var err error
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		pi, decodeErr := decodeIntent(event)
		if decodeErr != nil {
			return decodeErr
		}
		err = s.payments.OnSettlementConfirmed(ctx, payments.Settlement{
			PaymentIntentID: pi.ID,
			AmountReceived:  pi.AmountReceived,
		})
	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		pi, decodeErr := decodeIntent(event)
		if decodeErr != nil {
			return decodeErr
		}
		// a failed payment row gets a fresh intent on the next request
		err = s.payments.OnSettlementFailed(ctx, payments.SettlementFailure{
			PaymentIntentID: pi.ID,
			Reason:          failureReason(pi),
		})
	default:
		s.logg.Debug(ctx, "stripe event ignored")
		return nil
	}

	if err == nil {
		return nil
	}
	if terminal(err) {
		s.logg.Error(ctx, "stripe event rejected", err)
		return nil
	}
	return err
}

func terminal(err error) bool {
	for _, code := range []pkgerrors.Code{
		pkgerrors.CodeNotFound,
		pkgerrors.CodePricingMismatch,
		pkgerrors.CodeValidation,
	} {
		if pkgerrors.IsCode(err, code) {
			return true
		}
	}
	return false
}

func decodeIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	return &pi, nil
}

func failureReason(pi *stripe.PaymentIntent) string {
	if pi.Status == stripe.PaymentIntentStatusCanceled {
		if pi.CancellationReason != "" {
			return "canceled: " + string(pi.CancellationReason)
		}
		return "canceled"
	}
	if pi.LastPaymentError == nil {
		return ""
	}
	if pi.LastPaymentError.Code != "" {
		return string(pi.LastPaymentError.Code)
	}
	return pi.LastPaymentError.Msg
}
