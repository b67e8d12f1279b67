package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

// LedgerEvent records an immutable money movement on a booking payment.
type LedgerEvent struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID uuid.UUID             `gorm:"column:payment_id;type:uuid;not null;index"`
	BookingID uuid.UUID             `gorm:"column:booking_id;type:uuid;not null;index"`
	ActorID   *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	Type      enums.LedgerEventType `gorm:"column:type;type:ledger_event_type_enum;not null"`
	Amount    decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Metadata  datatypes.JSON        `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEvent) TableName() string { return "ledger_events" }

func (e *LedgerEvent) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
