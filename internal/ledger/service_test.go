package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgdb "github.com/angelmondragon/rentalhub-backend/pkg/db"
	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox"
)

type recordingEmitter struct {
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type fakeRefunder struct {
	calls []RefundRequest
	err   error
}

func (f *fakeRefunder) Refund(ctx context.Context, req RefundRequest) (string, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return "", f.err
	}
	return "re_" + req.PaymentID.String()[:8], nil
}

type harness struct {
	db       *gorm.DB
	svc      Service
	emitter  *recordingEmitter
	refunder *fakeRefunder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dsn := "file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.BookingRequest{}, &models.Payment{}, &models.LedgerEvent{}))

	h := &harness{db: conn, emitter: &recordingEmitter{}, refunder: &fakeRefunder{}}
	h.svc, err = NewService(ServiceParams{
		Repo:     NewRepository(conn),
		Tx:       pkgdb.NewFromConn(conn),
		Outbox:   h.emitter,
		Refunder: h.refunder,
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Now:      func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return h
}

func (h *harness) seedPayment(t *testing.T, deposit string) *models.Payment {
	t.Helper()
	booking := models.BookingRequest{
		EquipmentID: uuid.New(),
		RenterID:    uuid.New(),
		OwnerID:     uuid.New(),
		StartDate:   datatypes.Date(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)),
		EndDate:     datatypes.Date(time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)),
		Status:      enums.BookingStatusPending,
		TotalAmount: decimal.RequireFromString("182.00"),
	}
	require.NoError(t, h.db.Create(&booking).Error)

	dep := decimal.RequireFromString(deposit)
	payment := &models.Payment{
		BookingRequestID:        booking.ID,
		RenterID:                booking.RenterID,
		OwnerID:                 booking.OwnerID,
		Subtotal:                decimal.RequireFromString("120.00"),
		ServiceFee:              decimal.RequireFromString("6.00"),
		InsuranceAmount:         decimal.RequireFromString("6.00"),
		DepositAmount:           dep,
		TotalAmount:             decimal.RequireFromString("132.00").Add(dep),
		Currency:                "usd",
		ExternalPaymentIntentID: "pi_" + uuid.NewString(),
	}
	require.NoError(t, h.svc.CreatePending(context.Background(), payment))
	return payment
}

func (h *harness) reload(t *testing.T, id uuid.UUID) models.Payment {
	t.Helper()
	var payment models.Payment
	require.NoError(t, h.db.First(&payment, "id = ?", id).Error)
	return payment
}

func TestCreatePendingRejectsUnbalancedTotal(t *testing.T) {
	h := newHarness(t)
	err := h.svc.CreatePending(context.Background(), &models.Payment{
		BookingRequestID:        uuid.New(),
		ExternalPaymentIntentID: "pi_x",
		Subtotal:                decimal.NewFromInt(100),
		ServiceFee:              decimal.NewFromInt(5),
		TotalAmount:             decimal.NewFromInt(106),
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreatePendingHoldsDeposit(t *testing.T) {
	h := newHarness(t)
	payment := h.seedPayment(t, "50.00")

	stored := h.reload(t, payment.ID)
	require.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	require.Equal(t, enums.EscrowStatusHeld, stored.EscrowStatus)
	require.NotNil(t, stored.DepositStatus)
	require.Equal(t, enums.DepositStatusHeld, *stored.DepositStatus)

	noDeposit := h.seedPayment(t, "0")
	require.Nil(t, h.reload(t, noDeposit.ID).DepositStatus)
}

func TestMarkSucceededIsAppliedOnce(t *testing.T) {
	h := newHarness(t)
	payment := h.seedPayment(t, "50.00")
	ctx := context.Background()

	got, applied, err := h.svc.MarkSucceeded(ctx, SettlementInput{PaymentIntentID: payment.ExternalPaymentIntentID})
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, enums.PaymentStatusSucceeded, got.PaymentStatus)

	got, applied, err = h.svc.MarkSucceeded(ctx, SettlementInput{PaymentIntentID: payment.ExternalPaymentIntentID})
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, enums.PaymentStatusSucceeded, got.PaymentStatus)

	events, err := h.svc.Events(ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.LedgerEventTypePaymentCaptured, events[0].Type)
	require.True(t, events[0].Amount.Equal(decimal.RequireFromString("182.00")))

	require.Len(t, h.emitter.events, 1)
	require.Equal(t, enums.EventPaymentSettled, h.emitter.events[0].EventType)
}

func TestMarkSucceededAfterFailure(t *testing.T) {
	h := newHarness(t)
	payment := h.seedPayment(t, "0")
	ctx := context.Background()

	_, applied, err := h.svc.MarkFailed(ctx, FailureInput{PaymentIntentID: payment.ExternalPaymentIntentID, Reason: "card_declined"})
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, enums.PaymentStatusFailed, h.reload(t, payment.ID).PaymentStatus)

	_, applied, err = h.svc.MarkSucceeded(ctx, SettlementInput{PaymentIntentID: payment.ExternalPaymentIntentID})
	require.NoError(t, err)
	require.True(t, applied)

	_, applied, err = h.svc.MarkFailed(ctx, FailureInput{PaymentIntentID: payment.ExternalPaymentIntentID})
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, enums.PaymentStatusSucceeded, h.reload(t, payment.ID).PaymentStatus)
}

func TestMarkSucceededUnknownIntent(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.svc.MarkSucceeded(context.Background(), SettlementInput{PaymentIntentID: "pi_missing"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestReplaceIntentOnlyForUnsettledPayment(t *testing.T) {
	h := newHarness(t)
	payment := h.seedPayment(t, "0")
	ctx := context.Background()

	replaced, err := h.svc.ReplaceIntent(ctx, ReplaceIntentInput{
		PaymentID:        payment.ID,
		PreviousIntentID: payment.ExternalPaymentIntentID,
		IntentID:         "pi_fresh",
	})
	require.NoError(t, err)
	require.Equal(t, "pi_fresh", replaced.ExternalPaymentIntentID)

	_, err = h.svc.ReplaceIntent(ctx, ReplaceIntentInput{
		PaymentID:        payment.ID,
		PreviousIntentID: payment.ExternalPaymentIntentID,
		IntentID:         "pi_other",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, _, err = h.svc.MarkSucceeded(ctx, SettlementInput{PaymentIntentID: "pi_fresh"})
	require.NoError(t, err)
	_, err = h.svc.ReplaceIntent(ctx, ReplaceIntentInput{
		PaymentID:        payment.ID,
		PreviousIntentID: "pi_fresh",
		IntentID:         "pi_late",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRefundMovesEverythingToRefunded(t *testing.T) {
	h := newHarness(t)
	payment := h.seedPayment(t, "50.00")
	ctx := context.Background()
	_, _, err := h.svc.MarkSucceeded(ctx, SettlementInput{PaymentIntentID: payment.ExternalPaymentIntentID})
	require.NoError(t, err)

	actor := uuid.New()
	got, applied, err := h.svc.Refund(ctx, RefundInput{BookingID: payment.BookingRequestID, Reason: "renter cancelled", ActorID: &actor})
	require.NoError(t, err)
	require.True(t, applied)
	require.NotNil(t, got.ExternalRefundID)

	stored := h.reload(t, payment.ID)
	require.Equal(t, enums.PaymentStatusRefunded, stored.PaymentStatus)
	require.Equal(t, enums.EscrowStatusRefunded, stored.EscrowStatus)
	require.Equal(t, enums.DepositStatusRefunded, *stored.DepositStatus)
	require.True(t, stored.RefundAmount.Decimal.Equal(decimal.RequireFromString("182.00")))
	require.Equal(t, "renter cancelled", *stored.RefundReason)
	require.NotNil(t, stored.ExternalRefundID)

	_, applied, err = h.svc.Refund(ctx, RefundInput{BookingID: payment.BookingRequestID, Reason: "again"})
	require.NoError(t, err)
	require.False(t, applied)
	require.Len(t, h.refunder.calls, 1)
	require.Equal(t, "refund-"+payment.ID.String(), h.refunder.calls[0].IdempotencyKey)
}

func TestRefundRequiresSucceededPayment(t *testing.T) {
	h := newHarness(t)
	payment := h.seedPayment(t, "0")

	_, _, err := h.svc.Refund(context.Background(), RefundInput{BookingID: payment.BookingRequestID, Reason: "cancel"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Empty(t, h.refunder.calls)
}

func TestRefundProcessorFailureIsRetried(t *testing.T) {
	h := newHarness(t)
	payment := h.seedPayment(t, "0")
	ctx := context.Background()
	_, _, err := h.svc.MarkSucceeded(ctx, SettlementInput{PaymentIntentID: payment.ExternalPaymentIntentID})
	require.NoError(t, err)

	h.refunder.err = errors.New("stripe down")
	_, applied, err := h.svc.Refund(ctx, RefundInput{BookingID: payment.BookingRequestID, Reason: "cancel"})
	require.NoError(t, err)
	require.True(t, applied)
	require.Nil(t, h.reload(t, payment.ID).ExternalRefundID)

	done, err := h.svc.RetryProcessorRefunds(ctx, 10)
	require.Error(t, err)
	require.Zero(t, done)

	h.refunder.err = nil
	done, err = h.svc.RetryProcessorRefunds(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, done)
	require.NotNil(t, h.reload(t, payment.ID).ExternalRefundID)
	require.Equal(t, "cancel", h.refunder.calls[len(h.refunder.calls)-1].Reason)
}

func TestReleaseClaimsDepositCappedAtCollected(t *testing.T) {
	h := newHarness(t)
	payment := h.seedPayment(t, "50.00")
	ctx := context.Background()
	_, _, err := h.svc.MarkSucceeded(ctx, SettlementInput{PaymentIntentID: payment.ExternalPaymentIntentID})
	require.NoError(t, err)

	got, applied, err := h.svc.Release(ctx, ReleaseInput{BookingID: payment.BookingRequestID, DeductionAmount: decimal.RequireFromString("80.00")})
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, enums.DepositStatusClaimed, *got.DepositStatus)

	stored := h.reload(t, payment.ID)
	require.Equal(t, enums.EscrowStatusReleased, stored.EscrowStatus)
	require.Equal(t, enums.PayoutStatusEligible, stored.PayoutStatus)
	require.Equal(t, enums.DepositStatusClaimed, *stored.DepositStatus)
	require.True(t, stored.DepositClaimedAmount.Decimal.Equal(decimal.RequireFromString("50.00")))

	events, err := h.svc.Events(ctx, payment.ID)
	require.NoError(t, err)
	var types []enums.LedgerEventType
	for _, event := range events {
		types = append(types, event.Type)
	}
	require.ElementsMatch(t, []enums.LedgerEventType{
		enums.LedgerEventTypePaymentCaptured,
		enums.LedgerEventTypeEscrowReleased,
		enums.LedgerEventTypeDepositClaimed,
	}, types)
}

func TestReleaseIsMonotonic(t *testing.T) {
	h := newHarness(t)
	payment := h.seedPayment(t, "50.00")
	ctx := context.Background()
	_, _, err := h.svc.MarkSucceeded(ctx, SettlementInput{PaymentIntentID: payment.ExternalPaymentIntentID})
	require.NoError(t, err)

	_, applied, err := h.svc.Release(ctx, ReleaseInput{BookingID: payment.BookingRequestID})
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, enums.DepositStatusReleased, *h.reload(t, payment.ID).DepositStatus)

	_, applied, err = h.svc.Release(ctx, ReleaseInput{BookingID: payment.BookingRequestID, DeductionAmount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, enums.DepositStatusReleased, *h.reload(t, payment.ID).DepositStatus)

	_, _, err = h.svc.Refund(ctx, RefundInput{BookingID: payment.BookingRequestID, Reason: "late"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Equal(t, enums.EscrowStatusReleased, h.reload(t, payment.ID).EscrowStatus)
}

func TestHeldForCompletedBookings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	held := h.seedPayment(t, "0")
	other := h.seedPayment(t, "0")
	for _, p := range []*models.Payment{held, other} {
		_, _, err := h.svc.MarkSucceeded(ctx, SettlementInput{PaymentIntentID: p.ExternalPaymentIntentID})
		require.NoError(t, err)
	}
	require.NoError(t, h.db.Model(&models.BookingRequest{}).
		Where("id = ?", held.BookingRequestID).
		Update("status", enums.BookingStatusCompleted).Error)

	payments, err := h.svc.HeldForCompletedBookings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, held.ID, payments[0].ID)
}

func TestHeldForCancelledBookingsUntilRefunded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stuck := h.seedPayment(t, "50.00")
	completed := h.seedPayment(t, "0")
	for _, p := range []*models.Payment{stuck, completed} {
		_, _, err := h.svc.MarkSucceeded(ctx, SettlementInput{PaymentIntentID: p.ExternalPaymentIntentID})
		require.NoError(t, err)
	}
	require.NoError(t, h.db.Model(&models.BookingRequest{}).
		Where("id = ?", stuck.BookingRequestID).
		Update("status", enums.BookingStatusCancelled).Error)
	require.NoError(t, h.db.Model(&models.BookingRequest{}).
		Where("id = ?", completed.BookingRequestID).
		Update("status", enums.BookingStatusCompleted).Error)

	payments, err := h.svc.HeldForCancelledBookings(ctx, 10)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, stuck.ID, payments[0].ID)

	_, applied, err := h.svc.Refund(ctx, RefundInput{BookingID: stuck.BookingRequestID, Reason: CancellationRefundReason})
	require.NoError(t, err)
	require.True(t, applied)
	stored := h.reload(t, stuck.ID)
	require.Equal(t, enums.EscrowStatusRefunded, stored.EscrowStatus)
	require.Equal(t, enums.DepositStatusRefunded, *stored.DepositStatus)
	require.Equal(t, CancellationRefundReason, *stored.RefundReason)

	payments, err = h.svc.HeldForCancelledBookings(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, payments)
}

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error for missing repository")
	}
	if _, err := NewService(ServiceParams{Repo: NewRepository(nil)}); err == nil {
		t.Fatal("expected error for missing tx runner")
	}
}
