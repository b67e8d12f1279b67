package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

// BookingRequest is the aggregate root of a rental. Rows are never deleted.
type BookingRequest struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	EquipmentID         uuid.UUID           `gorm:"column:equipment_id;type:uuid;not null;index"`
	RenterID            uuid.UUID           `gorm:"column:renter_id;type:uuid;not null;index"`
	OwnerID             uuid.UUID           `gorm:"column:owner_id;type:uuid;not null;index"`
	StartDate           datatypes.Date      `gorm:"column:start_date;type:date;not null"`
	EndDate             datatypes.Date      `gorm:"column:end_date;type:date;not null"`
	Status              enums.BookingStatus `gorm:"column:status;type:booking_status;not null;default:'pending'"`
	TotalAmount         decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	InsuranceType       enums.InsuranceType `gorm:"column:insurance_type;type:text;not null;default:'none'"`
	InsuranceCost       decimal.Decimal     `gorm:"column:insurance_cost;type:numeric(12,2);not null;default:0"`
	DamageDepositAmount decimal.Decimal     `gorm:"column:damage_deposit_amount;type:numeric(12,2);not null;default:0"`
	ActivatedAt         *time.Time          `gorm:"column:activated_at"`
	CompletedAt         *time.Time          `gorm:"column:completed_at"`
	CancelledAt         *time.Time          `gorm:"column:cancelled_at"`
	CancelledBy         *uuid.UUID          `gorm:"column:cancelled_by;type:uuid"`
	CancellationReason  *string             `gorm:"column:cancellation_reason"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (BookingRequest) TableName() string { return "booking_requests" }

func (b *BookingRequest) BeforeCreate(tx *gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// Start returns the first rental day at UTC midnight.
func (b BookingRequest) Start() time.Time {
	return dateUTC(time.Time(b.StartDate))
}

// End returns the last rental day at UTC midnight.
func (b BookingRequest) End() time.Time {
	return dateUTC(time.Time(b.EndDate))
}

// IsParty reports whether userID is the renter or the owner.
func (b BookingRequest) IsParty(userID uuid.UUID) bool {
	return userID == b.RenterID || userID == b.OwnerID
}

// Counterparty returns the other side of the booking from userID.
func (b BookingRequest) Counterparty(userID uuid.UUID) uuid.UUID {
	if userID == b.RenterID {
		return b.OwnerID
	}
	return b.RenterID
}

func dateUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
