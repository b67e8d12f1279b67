package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

// Payment is the single settlement record of a booking. Escrow holds the
// rental funds and the deposit is tracked separately.
type Payment struct {
	ID                      uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	BookingRequestID        uuid.UUID            `gorm:"column:booking_request_id;type:uuid;not null;uniqueIndex"`
	RenterID                uuid.UUID            `gorm:"column:renter_id;type:uuid;not null"`
	OwnerID                 uuid.UUID            `gorm:"column:owner_id;type:uuid;not null"`
	Subtotal                decimal.Decimal      `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ServiceFee              decimal.Decimal      `gorm:"column:service_fee;type:numeric(12,2);not null"`
	InsuranceAmount         decimal.Decimal      `gorm:"column:insurance_amount;type:numeric(12,2);not null;default:0"`
	DepositAmount           decimal.Decimal      `gorm:"column:deposit_amount;type:numeric(12,2);not null;default:0"`
	TotalAmount             decimal.Decimal      `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency                string               `gorm:"column:currency;type:text;not null;default:'usd'"`
	PaymentStatus           enums.PaymentStatus  `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	EscrowStatus            enums.EscrowStatus   `gorm:"column:escrow_status;type:escrow_status;not null;default:'held'"`
	DepositStatus           *enums.DepositStatus `gorm:"column:deposit_status;type:deposit_status"`
	PayoutStatus            enums.PayoutStatus   `gorm:"column:payout_status;type:payout_status;not null;default:'pending'"`
	ExternalPaymentIntentID string               `gorm:"column:external_payment_intent_id;not null;uniqueIndex"`
	ExternalRefundID        *string              `gorm:"column:external_refund_id"`
	PaidAt                  *time.Time           `gorm:"column:paid_at"`
	EscrowReleasedAt        *time.Time           `gorm:"column:escrow_released_at"`
	DepositReleasedAt       *time.Time           `gorm:"column:deposit_released_at"`
	DepositClaimedAmount    decimal.NullDecimal  `gorm:"column:deposit_claimed_amount;type:numeric(12,2)"`
	RefundAmount            decimal.NullDecimal  `gorm:"column:refund_amount;type:numeric(12,2)"`
	RefundReason            *string              `gorm:"column:refund_reason"`
	RefundedAt              *time.Time           `gorm:"column:refunded_at"`
	CreatedAt               time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// HasDeposit reports whether a damage deposit was collected.
func (p Payment) HasDeposit() bool {
	return p.DepositStatus != nil
}
