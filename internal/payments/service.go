package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/internal/availability"
	"github.com/angelmondragon/rentalhub-backend/internal/bookings"
	"github.com/angelmondragon/rentalhub-backend/internal/ledger"
	"github.com/angelmondragon/rentalhub-backend/internal/notifications"
	"github.com/angelmondragon/rentalhub-backend/internal/pricing"
	pkgdb "github.com/angelmondragon/rentalhub-backend/pkg/db"
	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/metrics"
)

// LateSettlementReason marks refunds for payments that settled after the
// booking was cancelled.
const LateSettlementReason = "settled_after_cancellation"

type bookingStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.BookingRequest, error)
	FindEquipment(ctx context.Context, id uuid.UUID) (*models.Equipment, error)
}

type paymentTransitions interface {
	CompletePayment(ctx context.Context, id uuid.UUID, actor bookings.ActorRef) (bookings.Result, error)
}

type paymentLedger interface {
	CreatePending(ctx context.Context, payment *models.Payment) error
	PaymentForBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	PaymentForIntent(ctx context.Context, intentID string) (*models.Payment, error)
	ReplaceIntent(ctx context.Context, input ledger.ReplaceIntentInput) (*models.Payment, error)
	MarkSucceeded(ctx context.Context, input ledger.SettlementInput) (*models.Payment, bool, error)
	MarkFailed(ctx context.Context, input ledger.FailureInput) (*models.Payment, bool, error)
	Refund(ctx context.Context, input ledger.RefundInput) (*models.Payment, bool, error)
}

type notifier interface {
	Notify(ctx context.Context, notice notifications.Notice)
}

// Service orchestrates payment intents and processor settlement callbacks.
type Service interface {
	CreateOrReuseIntent(ctx context.Context, input IntentInput) (*IntentResult, error)
	OnSettlementConfirmed(ctx context.Context, input Settlement) error
	OnSettlementFailed(ctx context.Context, input SettlementFailure) error
}

// IntentInput asks for a payable intent on a booking. ClientTotal is the
// total the renter was shown; the booking's quoted total is used when nil.
type IntentInput struct {
	BookingID   uuid.UUID
	ActorID     uuid.UUID
	ClientTotal *decimal.Decimal
}

// IntentResult is what the client needs to confirm a payment.
type IntentResult struct {
	PaymentID       uuid.UUID       `json:"payment_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	ClientSecret    string          `json:"client_secret"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Reused          bool            `json:"reused"`
}

// Settlement is a processor-confirmed capture. AmountReceived is in minor
// units.
type Settlement struct {
	PaymentIntentID string
	AmountReceived  int64
}

// SettlementFailure is a processor-reported failed attempt.
type SettlementFailure struct {
	PaymentIntentID string
	Reason          string
}

// ServiceParams wires the payment orchestrator.
type ServiceParams struct {
	Bookings     bookingStore
	Transitions  paymentTransitions
	Ledger       paymentLedger
	Availability availability.Checker
	Gateway      IntentGateway
	Notifier     notifier
	Metrics      *metrics.BookingMetrics
	Logger       *logger.Logger
	Currency     string
}

type service struct {
	bookings     bookingStore
	transitions  paymentTransitions
	ledger       paymentLedger
	availability availability.Checker
	gateway      IntentGateway
	notifier     notifier
	metrics      *metrics.BookingMetrics
	logg         *logger.Logger
	currency     string
}

// NewService validates dependencies and returns the orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking store required")
	}
	if params.Transitions == nil {
		return nil, fmt.Errorf("booking transitions required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Availability == nil {
		return nil, fmt.Errorf("availability checker required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("intent gateway required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &service{
		bookings:     params.Bookings,
		transitions:  params.Transitions,
		ledger:       params.Ledger,
		availability: params.Availability,
		gateway:      params.Gateway,
		notifier:     params.Notifier,
		metrics:      params.Metrics,
		logg:         params.Logger,
		currency:     currency,
	}, nil
}

var payableStatuses = []enums.BookingStatus{enums.BookingStatusPending, enums.BookingStatusPaid}

func (s *service) CreateOrReuseIntent(ctx context.Context, input IntentInput) (*IntentResult, error) {
	ctx = s.logg.WithBookingID(ctx, input.BookingID.String())

	booking, err := s.bookings.FindByID(ctx, input.BookingID)
	if err != nil {
		return nil, lookupError(err, "booking not found", "load booking")
	}
	equipment, err := s.bookings.FindEquipment(ctx, booking.EquipmentID)
	if err != nil {
		return nil, lookupError(err, "equipment not found", "load equipment")
	}
	if input.ActorID == equipment.OwnerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "owners cannot pay for their own equipment")
	}
	if input.ActorID != booking.RenterID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the renter can pay for this booking")
	}

	existing, err := s.ledger.PaymentForBooking(ctx, booking.ID)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	if existing != nil && existing.PaymentStatus == enums.PaymentStatusSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "booking is already paid")
	}
	if !isPayable(booking.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "booking is not awaiting payment").
			WithDetails(map[string]any{
				"current_status":       booking.Status,
				"attempted_transition": enums.TransitionCompletePayment,
				"allowed_from":         payableStatuses,
			})
	}

	var previous *models.Payment
	if existing != nil {
		intent, err := s.gateway.GetIntent(ctx, existing.ExternalPaymentIntentID)
		if err != nil {
			return nil, err
		}
		if intent.Status == stripe.PaymentIntentStatusSucceeded {
			return nil, pkgerrors.New(pkgerrors.CodeAlreadyPaid, "payment is settling")
		}
		if intent.Reusable() {
			s.logg.Info(ctx, "reusing payment intent")
			return resultFor(existing, intent, true), nil
		}
		previous = existing
	}

	if !equipment.IsAvailable {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "equipment is not available")
	}

	quote, err := pricing.Calculate(pricing.InputFor(*equipment, *booking))
	if err != nil {
		return nil, err
	}
	clientTotal := booking.TotalAmount
	if input.ClientTotal != nil {
		clientTotal = *input.ClientTotal
	}
	if err := pricing.VerifyClientTotal(clientTotal, quote.Total); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"client_total": clientTotal.StringFixed(2),
			"server_total": quote.Total.StringFixed(2),
		}), "client total disagrees with server pricing")
		return nil, err
	}

	exclude := booking.ID
	conflict, err := s.availability.HasConflict(ctx, availability.Range{
		EquipmentID: booking.EquipmentID,
		Start:       booking.Start(),
		End:         booking.End(),
		Exclude:     &exclude,
	})
	if err != nil {
		return nil, err
	}
	if conflict {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "equipment is already booked for these dates")
	}

	key := "booking-intent-" + booking.ID.String()
	if previous != nil {
		key += "-" + previous.ExternalPaymentIntentID
	}
	intent, err := s.gateway.CreateIntent(ctx, IntentRequest{
		BookingID:      booking.ID,
		RenterID:       booking.RenterID,
		Amount:         pricing.ToMinorUnits(quote.Total),
		Currency:       s.currency,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, err
	}

	if previous != nil {
		payment, err := s.ledger.ReplaceIntent(ctx, ledger.ReplaceIntentInput{
			PaymentID:        previous.ID,
			PreviousIntentID: previous.ExternalPaymentIntentID,
			IntentID:         intent.ID,
		})
		if err != nil {
			return nil, err
		}
		s.logg.Info(ctx, "payment intent replaced")
		return resultFor(payment, intent, false), nil
	}

	payment := &models.Payment{
		BookingRequestID:        booking.ID,
		RenterID:                booking.RenterID,
		OwnerID:                 booking.OwnerID,
		Subtotal:                quote.Subtotal,
		ServiceFee:              quote.ServiceFee,
		InsuranceAmount:         quote.InsuranceCost,
		DepositAmount:           quote.Deposit,
		TotalAmount:             quote.Total,
		Currency:                s.currency,
		ExternalPaymentIntentID: intent.ID,
	}
	if err := s.ledger.CreatePending(ctx, payment); err != nil {
		if !pkgdb.IsUniqueViolation(err, "") {
			return nil, mapPersistError(err, "persist payment")
		}
		// a concurrent request won; hand back its intent
		winner, err := s.ledger.PaymentForBooking(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		winnerIntent, err := s.gateway.GetIntent(ctx, winner.ExternalPaymentIntentID)
		if err != nil {
			return nil, err
		}
		return resultFor(winner, winnerIntent, true), nil
	}
	s.logg.Info(ctx, "payment intent created")
	return resultFor(payment, intent, false), nil
}

func (s *service) OnSettlementConfirmed(ctx context.Context, input Settlement) (err error) {
	ctx = s.logg.WithField(ctx, "payment_intent_id", input.PaymentIntentID)
	outcome := metrics.OutcomeApplied
	defer func() {
		if err != nil {
			outcome = outcomeFor(err)
		}
		s.metrics.ObserveSettlement("succeeded", outcome)
	}()

	payment, err := s.ledger.PaymentForIntent(ctx, input.PaymentIntentID)
	if err != nil {
		return err
	}
	ctx = s.logg.WithBookingID(ctx, payment.BookingRequestID.String())

	expected := pricing.ToMinorUnits(payment.TotalAmount)
	if input.AmountReceived != expected {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"amount_received": input.AmountReceived,
			"amount_expected": expected,
		}), "settlement amount disagrees with payment total")
		return pkgerrors.New(pkgerrors.CodePricingMismatch, "settled amount does not match payment total").
			WithDetails(map[string]any{
				"amount_received": pricing.FromMinorUnits(input.AmountReceived).StringFixed(2),
				"amount_expected": payment.TotalAmount.StringFixed(2),
			})
	}

	payment, applied, err := s.ledger.MarkSucceeded(ctx, ledger.SettlementInput{PaymentIntentID: input.PaymentIntentID})
	if err != nil {
		return err
	}
	if !applied {
		outcome = metrics.OutcomeAlreadyApplied
	}

	_, err = s.transitions.CompletePayment(ctx, payment.BookingRequestID, bookings.SystemActor)
	if err == nil {
		return nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
		return err
	}

	booking, lookupErr := s.bookings.FindByID(ctx, payment.BookingRequestID)
	if lookupErr != nil {
		return lookupError(lookupErr, "booking not found", "load booking")
	}
	if booking.Status == enums.BookingStatusCancelled {
		s.logg.Warn(ctx, "payment settled after cancellation; refunding")
		if _, _, err := s.ledger.Refund(ctx, ledger.RefundInput{
			BookingID: booking.ID,
			Reason:    LateSettlementReason,
		}); err != nil {
			return err
		}
		return nil
	}
	// the booking already moved past payment on an earlier delivery
	s.logg.Info(s.logg.WithField(ctx, "booking_status", booking.Status), "settlement replay ignored")
	return nil
}

func (s *service) OnSettlementFailed(ctx context.Context, input SettlementFailure) (err error) {
	ctx = s.logg.WithField(ctx, "payment_intent_id", input.PaymentIntentID)
	outcome := metrics.OutcomeApplied
	defer func() {
		if err != nil {
			outcome = outcomeFor(err)
		}
		s.metrics.ObserveSettlement("failed", outcome)
	}()

	payment, applied, err := s.ledger.MarkFailed(ctx, ledger.FailureInput{
		PaymentIntentID: input.PaymentIntentID,
		Reason:          input.Reason,
	})
	if err != nil {
		return err
	}
	if !applied {
		outcome = metrics.OutcomeAlreadyApplied
		return nil
	}

	bookingID := payment.BookingRequestID
	s.notifier.Notify(ctx, notifications.Notice{
		UserID:            payment.RenterID,
		Type:              enums.NotificationTypePaymentUpdate,
		Priority:          enums.NotificationPriorityHigh,
		Title:             "Payment failed",
		Message:           "Your payment did not go through. You can retry from the booking page.",
		RelatedEntityType: "booking_request",
		RelatedEntityID:   &bookingID,
	})
	return nil
}

func isPayable(status enums.BookingStatus) bool {
	for _, candidate := range payableStatuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func resultFor(payment *models.Payment, intent *Intent, reused bool) *IntentResult {
	return &IntentResult{
		PaymentID:       payment.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          payment.TotalAmount,
		Currency:        payment.Currency,
		Reused:          reused,
	}
}

func outcomeFor(err error) string {
	if pkgerrors.IsCode(err, pkgerrors.CodeDependency) || pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		return metrics.OutcomeError
	}
	return metrics.OutcomeRejected
}

func lookupError(err error, notFound, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func mapPersistError(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
