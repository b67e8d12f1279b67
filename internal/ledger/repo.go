package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

// Guard restricts a conditional payment update to rows still in the
// expected statuses. Empty slices are not checked.
type Guard struct {
	PaymentStatuses []enums.PaymentStatus
	EscrowStatuses  []enums.EscrowStatus
	IntentID        string
}

// Repository manages persistence for payments and their ledger events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	UpdateIf(ctx context.Context, paymentID uuid.UUID, guard Guard, updates map[string]any) (bool, error)
	SetExternalRefundID(ctx context.Context, paymentID uuid.UUID, refundID string) error
	ListRefundsMissingProcessorID(ctx context.Context, limit int) ([]models.Payment, error)
	ListHeldForCompletedBookings(ctx context.Context, limit int) ([]models.Payment, error)
	ListHeldForCancelledBookings(ctx context.Context, limit int) ([]models.Payment, error)
	CreateEvent(ctx context.Context, event *models.LedgerEvent) error
	ListEvents(ctx context.Context, paymentID uuid.UUID) ([]models.LedgerEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Where("booking_request_id = ?", bookingID).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Where("external_payment_intent_id = ?", intentID).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) UpdateIf(ctx context.Context, paymentID uuid.UUID, guard Guard, updates map[string]any) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID)
	if len(guard.PaymentStatuses) > 0 {
		query = query.Where("payment_status IN ?", guard.PaymentStatuses)
	}
	if len(guard.EscrowStatuses) > 0 {
		query = query.Where("escrow_status IN ?", guard.EscrowStatuses)
	}
	if guard.IntentID != "" {
		query = query.Where("external_payment_intent_id = ?", guard.IntentID)
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) SetExternalRefundID(ctx context.Context, paymentID uuid.UUID, refundID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND external_refund_id IS NULL", paymentID).
		Updates(map[string]any{
			"external_refund_id": refundID,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *repository) ListRefundsMissingProcessorID(ctx context.Context, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	query := r.db.WithContext(ctx).
		Where("payment_status = ? AND external_refund_id IS NULL", enums.PaymentStatusRefunded).
		Order("refunded_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) ListHeldForCompletedBookings(ctx context.Context, limit int) ([]models.Payment, error) {
	return r.listHeld(ctx, enums.BookingStatusCompleted, "booking_requests.completed_at ASC", limit)
}

func (r *repository) ListHeldForCancelledBookings(ctx context.Context, limit int) ([]models.Payment, error) {
	return r.listHeld(ctx, enums.BookingStatusCancelled, "booking_requests.cancelled_at ASC", limit)
}

// listHeld finds settled payments whose escrow is still held while the
// booking already sits in the given terminal status.
func (r *repository) listHeld(ctx context.Context, status enums.BookingStatus, order string, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	query := r.db.WithContext(ctx).
		Table("payments").
		Select("payments.*").
		Joins("JOIN booking_requests ON booking_requests.id = payments.booking_request_id").
		Where("booking_requests.status = ?", status).
		Where("payments.payment_status = ? AND payments.escrow_status = ?", enums.PaymentStatusSucceeded, enums.EscrowStatusHeld).
		Order(order)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) CreateEvent(ctx context.Context, event *models.LedgerEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListEvents(ctx context.Context, paymentID uuid.UUID) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	if err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
