package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RefundRequest is what the processor needs to return captured funds.
type RefundRequest struct {
	PaymentID       uuid.UUID
	PaymentIntentID string
	Amount          decimal.Decimal
	Currency        string
	Reason          string
	IdempotencyKey  string
}

// Refunder returns captured funds at the payment processor and reports the
// processor's refund id.
type Refunder interface {
	Refund(ctx context.Context, req RefundRequest) (string, error)
}

// Service owns every payment, escrow and deposit status write.
type Service interface {
	CreatePending(ctx context.Context, payment *models.Payment) error
	PaymentForBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	PaymentForIntent(ctx context.Context, intentID string) (*models.Payment, error)
	ReplaceIntent(ctx context.Context, input ReplaceIntentInput) (*models.Payment, error)
	MarkSucceeded(ctx context.Context, input SettlementInput) (*models.Payment, bool, error)
	MarkFailed(ctx context.Context, input FailureInput) (*models.Payment, bool, error)
	Refund(ctx context.Context, input RefundInput) (*models.Payment, bool, error)
	Release(ctx context.Context, input ReleaseInput) (*models.Payment, bool, error)
	RetryProcessorRefunds(ctx context.Context, limit int) (int, error)
	HeldForCompletedBookings(ctx context.Context, limit int) ([]models.Payment, error)
	HeldForCancelledBookings(ctx context.Context, limit int) ([]models.Payment, error)
	Events(ctx context.Context, paymentID uuid.UUID) ([]models.LedgerEvent, error)
}

// ReplaceIntentInput swaps a cancelled processor intent for a new one on a
// payment that never settled.
type ReplaceIntentInput struct {
	PaymentID        uuid.UUID
	PreviousIntentID string
	IntentID         string
}

// SettlementInput identifies a processor-confirmed capture.
type SettlementInput struct {
	PaymentIntentID string
}

// FailureInput identifies a processor-reported failure.
type FailureInput struct {
	PaymentIntentID string
	Reason          string
}

// CancellationRefundReason is recorded on refunds caused by a cancelled
// booking.
const CancellationRefundReason = "booking_cancelled"

// RefundInput returns the full booking payment to the renter.
type RefundInput struct {
	BookingID uuid.UUID
	Reason    string
	ActorID   *uuid.UUID
}

// ReleaseInput moves escrow to the owner. A positive deduction claims that
// much of the deposit, capped at the deposit collected.
type ReleaseInput struct {
	BookingID       uuid.UUID
	DeductionAmount decimal.Decimal
	ActorID         *uuid.UUID
}

// ServiceParams wires the ledger service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outbox.Emitter
	Refunder Refunder
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outbox.Emitter
	refunder Refunder
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires a ledger service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Refunder == nil {
		return nil, fmt.Errorf("refunder required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		refunder: params.Refunder,
		logg:     params.Logger,
		now:      now,
	}, nil
}

func (s *service) CreatePending(ctx context.Context, payment *models.Payment) error {
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment is required")
	}
	if payment.BookingRequestID == uuid.Nil || payment.ExternalPaymentIntentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking id and payment intent id are required")
	}
	expected := payment.Subtotal.Add(payment.ServiceFee).Add(payment.InsuranceAmount).Add(payment.DepositAmount)
	if !expected.Equal(payment.TotalAmount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment total must equal the sum of its components").
			WithDetails(map[string]any{"total": payment.TotalAmount.StringFixed(2), "components": expected.StringFixed(2)})
	}
	payment.PaymentStatus = enums.PaymentStatusPending
	payment.EscrowStatus = enums.EscrowStatusHeld
	payment.PayoutStatus = enums.PayoutStatusPending
	if payment.DepositAmount.IsPositive() {
		held := enums.DepositStatusHeld
		payment.DepositStatus = &held
	}
	// unique violations pass through untouched so callers can reload
	return s.repo.CreatePayment(ctx, payment)
}

func (s *service) PaymentForBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByBookingID(ctx, bookingID)
	if err != nil {
		return nil, mapLookupError(err, "load payment")
	}
	return payment, nil
}

func (s *service) PaymentForIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	payment, err := s.repo.FindByIntentID(ctx, intentID)
	if err != nil {
		return nil, mapLookupError(err, "load payment")
	}
	return payment, nil
}

func (s *service) ReplaceIntent(ctx context.Context, input ReplaceIntentInput) (*models.Payment, error) {
	if input.PreviousIntentID == "" || input.IntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent ids are required")
	}
	ok, err := s.repo.UpdateIf(ctx, input.PaymentID, Guard{
		PaymentStatuses: []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed},
		IntentID:        input.PreviousIntentID,
	}, map[string]any{
		"external_payment_intent_id": input.IntentID,
		"payment_status":             enums.PaymentStatusPending,
		"updated_at":                 s.now().UTC(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace payment intent")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent changed concurrently")
	}
	return s.PaymentForIntent(ctx, input.IntentID)
}

func (s *service) MarkSucceeded(ctx context.Context, input SettlementInput) (*models.Payment, bool, error) {
	var (
		payment *models.Payment
		applied bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByIntentID(ctx, input.PaymentIntentID)
		if err != nil {
			return mapLookupError(err, "load payment")
		}
		now := s.now().UTC()
		ok, err := repo.UpdateIf(ctx, current.ID, Guard{
			PaymentStatuses: []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed},
		}, map[string]any{
			"payment_status": enums.PaymentStatusSucceeded,
			"paid_at":        now,
			"updated_at":     now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment succeeded")
		}
		if !ok {
			payment, err = repo.FindByIntentID(ctx, input.PaymentIntentID)
			if err != nil {
				return mapLookupError(err, "reload payment")
			}
			return nil
		}
		current.PaymentStatus = enums.PaymentStatusSucceeded
		current.PaidAt = &now
		payment, applied = current, true

		if err := s.recordEvent(ctx, repo, current, enums.LedgerEventTypePaymentCaptured, current.TotalAmount, nil, map[string]any{
			"payment_intent_id": current.ExternalPaymentIntentID,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentSettled,
			AggregateType: enums.AggregatePayment,
			AggregateID:   current.ID,
			OccurredAt:    now,
			Data: payloads.PaymentSettledEvent{
				PaymentID:       current.ID,
				BookingID:       current.BookingRequestID,
				PaymentIntentID: current.ExternalPaymentIntentID,
				Amount:          current.TotalAmount,
				Currency:        current.Currency,
			},
		})
	})
	if err != nil {
		return nil, false, err
	}
	return payment, applied, nil
}

func (s *service) MarkFailed(ctx context.Context, input FailureInput) (*models.Payment, bool, error) {
	var (
		payment *models.Payment
		applied bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByIntentID(ctx, input.PaymentIntentID)
		if err != nil {
			return mapLookupError(err, "load payment")
		}
		now := s.now().UTC()
		ok, err := repo.UpdateIf(ctx, current.ID, Guard{
			PaymentStatuses: []enums.PaymentStatus{enums.PaymentStatusPending},
		}, map[string]any{
			"payment_status": enums.PaymentStatusFailed,
			"updated_at":     now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		if !ok {
			payment = current
			return nil
		}
		current.PaymentStatus = enums.PaymentStatusFailed
		payment, applied = current, true

		if err := s.recordEvent(ctx, repo, current, enums.LedgerEventTypePaymentFailed, decimal.Zero, nil, map[string]any{
			"payment_intent_id": current.ExternalPaymentIntentID,
			"reason":            input.Reason,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   current.ID,
			OccurredAt:    now,
			Data: payloads.PaymentFailedEvent{
				PaymentID:       current.ID,
				BookingID:       current.BookingRequestID,
				PaymentIntentID: current.ExternalPaymentIntentID,
				Reason:          input.Reason,
			},
		})
	})
	if err != nil {
		return nil, false, err
	}
	return payment, applied, nil
}

func (s *service) Refund(ctx context.Context, input RefundInput) (*models.Payment, bool, error) {
	if input.Reason == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "refund reason is required")
	}
	var (
		payment *models.Payment
		applied bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByBookingID(ctx, input.BookingID)
		if err != nil {
			return mapLookupError(err, "load payment")
		}
		now := s.now().UTC()
		updates := map[string]any{
			"payment_status": enums.PaymentStatusRefunded,
			"escrow_status":  enums.EscrowStatusRefunded,
			"payout_status":  enums.PayoutStatusCancelled,
			"refund_amount":  current.TotalAmount,
			"refund_reason":  input.Reason,
			"refunded_at":    now,
			"updated_at":     now,
		}
		if current.HasDeposit() {
			updates["deposit_status"] = enums.DepositStatusRefunded
		}
		ok, err := repo.UpdateIf(ctx, current.ID, Guard{
			PaymentStatuses: []enums.PaymentStatus{enums.PaymentStatusSucceeded},
			EscrowStatuses:  []enums.EscrowStatus{enums.EscrowStatusHeld},
		}, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund payment")
		}
		if !ok {
			reloaded, err := repo.FindByBookingID(ctx, input.BookingID)
			if err != nil {
				return mapLookupError(err, "reload payment")
			}
			if reloaded.PaymentStatus == enums.PaymentStatusRefunded {
				payment = reloaded
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment cannot be refunded").
				WithDetails(map[string]any{
					"payment_status": reloaded.PaymentStatus,
					"escrow_status":  reloaded.EscrowStatus,
				})
		}

		refunded := enums.DepositStatusRefunded
		current.PaymentStatus = enums.PaymentStatusRefunded
		current.EscrowStatus = enums.EscrowStatusRefunded
		current.PayoutStatus = enums.PayoutStatusCancelled
		if current.HasDeposit() {
			current.DepositStatus = &refunded
		}
		current.RefundAmount = decimal.NewNullDecimal(current.TotalAmount)
		current.RefundReason = &input.Reason
		current.RefundedAt = &now
		payment, applied = current, true

		if err := s.recordEvent(ctx, repo, current, enums.LedgerEventTypeRefund, current.TotalAmount, input.ActorID, map[string]any{
			"reason": input.Reason,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   current.ID,
			Actor:         actorRef(input.ActorID),
			OccurredAt:    now,
			Data: payloads.PaymentRefundedEvent{
				PaymentID: current.ID,
				BookingID: current.BookingRequestID,
				Amount:    current.TotalAmount,
				Reason:    input.Reason,
			},
		})
	})
	if err != nil {
		return nil, false, err
	}
	if applied {
		// a failed processor call is retried by the refund reconciler
		if err := s.refundAtProcessor(ctx, payment); err != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"booking_id": payment.BookingRequestID.String(),
				"payment_id": payment.ID.String(),
			})
			s.logg.Error(logCtx, "processor refund failed", err)
		}
	}
	return payment, applied, nil
}

func (s *service) Release(ctx context.Context, input ReleaseInput) (*models.Payment, bool, error) {
	if input.DeductionAmount.IsNegative() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "deduction amount cannot be negative")
	}
	var (
		payment *models.Payment
		applied bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByBookingID(ctx, input.BookingID)
		if err != nil {
			return mapLookupError(err, "load payment")
		}
		now := s.now().UTC()
		updates := map[string]any{
			"escrow_status":      enums.EscrowStatusReleased,
			"escrow_released_at": now,
			"payout_status":      enums.PayoutStatusEligible,
			"updated_at":         now,
		}

		claimed := decimal.Zero
		var depositStatus *enums.DepositStatus
		if current.HasDeposit() {
			next := enums.DepositStatusReleased
			if input.DeductionAmount.IsPositive() {
				next = enums.DepositStatusClaimed
				claimed = decimal.Min(input.DeductionAmount, current.DepositAmount)
				updates["deposit_claimed_amount"] = claimed
			}
			depositStatus = &next
			updates["deposit_status"] = next
			updates["deposit_released_at"] = now
		}

		ok, err := repo.UpdateIf(ctx, current.ID, Guard{
			PaymentStatuses: []enums.PaymentStatus{enums.PaymentStatusSucceeded},
			EscrowStatuses:  []enums.EscrowStatus{enums.EscrowStatusHeld},
		}, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release escrow")
		}
		if !ok {
			reloaded, err := repo.FindByBookingID(ctx, input.BookingID)
			if err != nil {
				return mapLookupError(err, "reload payment")
			}
			if reloaded.EscrowStatus == enums.EscrowStatusReleased {
				payment = reloaded
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "escrow cannot be released").
				WithDetails(map[string]any{
					"payment_status": reloaded.PaymentStatus,
					"escrow_status":  reloaded.EscrowStatus,
				})
		}

		current.EscrowStatus = enums.EscrowStatusReleased
		current.EscrowReleasedAt = &now
		current.PayoutStatus = enums.PayoutStatusEligible
		if depositStatus != nil {
			current.DepositStatus = depositStatus
			current.DepositReleasedAt = &now
		}
		if claimed.IsPositive() {
			current.DepositClaimedAmount = decimal.NewNullDecimal(claimed)
		}
		payment, applied = current, true

		ownerShare := current.TotalAmount.Sub(current.DepositAmount)
		if err := s.recordEvent(ctx, repo, current, enums.LedgerEventTypeEscrowReleased, ownerShare, input.ActorID, nil); err != nil {
			return err
		}
		if claimed.IsPositive() {
			if err := s.recordEvent(ctx, repo, current, enums.LedgerEventTypeDepositClaimed, claimed, input.ActorID, map[string]any{
				"requested_deduction": input.DeductionAmount.StringFixed(2),
			}); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowReleased,
			AggregateType: enums.AggregatePayment,
			AggregateID:   current.ID,
			Actor:         actorRef(input.ActorID),
			OccurredAt:    now,
			Data: payloads.EscrowReleasedEvent{
				PaymentID:      current.ID,
				BookingID:      current.BookingRequestID,
				OwnerID:        current.OwnerID,
				DepositStatus:  current.DepositStatus,
				DepositClaimed: claimed,
				ReleasedAt:     now,
			},
		})
	})
	if err != nil {
		return nil, false, err
	}
	return payment, applied, nil
}

func (s *service) RetryProcessorRefunds(ctx context.Context, limit int) (int, error) {
	pending, err := s.repo.ListRefundsMissingProcessorID(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unreconciled refunds")
	}
	var (
		done int
		errs error
	)
	for i := range pending {
		if err := s.refundAtProcessor(ctx, &pending[i]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", pending[i].ID, err))
			continue
		}
		done++
	}
	return done, errs
}

func (s *service) HeldForCompletedBookings(ctx context.Context, limit int) ([]models.Payment, error) {
	payments, err := s.repo.ListHeldForCompletedBookings(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list held escrow")
	}
	return payments, nil
}

func (s *service) HeldForCancelledBookings(ctx context.Context, limit int) ([]models.Payment, error) {
	payments, err := s.repo.ListHeldForCancelledBookings(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list held escrow on cancelled bookings")
	}
	return payments, nil
}

func (s *service) Events(ctx context.Context, paymentID uuid.UUID) ([]models.LedgerEvent, error) {
	events, err := s.repo.ListEvents(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger events")
	}
	return events, nil
}

func (s *service) refundAtProcessor(ctx context.Context, payment *models.Payment) error {
	amount := payment.TotalAmount
	if payment.RefundAmount.Valid {
		amount = payment.RefundAmount.Decimal
	}
	reason := ""
	if payment.RefundReason != nil {
		reason = *payment.RefundReason
	}
	refundID, err := s.refunder.Refund(ctx, RefundRequest{
		PaymentID:       payment.ID,
		PaymentIntentID: payment.ExternalPaymentIntentID,
		Amount:          amount,
		Currency:        payment.Currency,
		Reason:          reason,
		IdempotencyKey:  "refund-" + payment.ID.String(),
	})
	if err != nil {
		return err
	}
	if err := s.repo.SetExternalRefundID(ctx, payment.ID, refundID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store processor refund id")
	}
	payment.ExternalRefundID = &refundID
	return nil
}

func (s *service) recordEvent(ctx context.Context, repo Repository, payment *models.Payment, eventType enums.LedgerEventType, amount decimal.Decimal, actorID *uuid.UUID, metadata map[string]any) error {
	var raw []byte
	if len(metadata) > 0 {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode ledger metadata")
		}
		raw = encoded
	}
	event := &models.LedgerEvent{
		PaymentID: payment.ID,
		BookingID: payment.BookingRequestID,
		ActorID:   actorID,
		Type:      eventType,
		Amount:    amount,
		Metadata:  raw,
	}
	if err := repo.CreateEvent(ctx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record ledger event")
	}
	return nil
}

func actorRef(actorID *uuid.UUID) *outbox.ActorRef {
	if actorID == nil {
		return &outbox.ActorRef{Role: string(enums.UserRoleSystem)}
	}
	return &outbox.ActorRef{UserID: *actorID}
}

func mapLookupError(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
