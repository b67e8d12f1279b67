package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

// Equipment is the rentable listing. Listing CRUD lives outside this
// service; bookings only read it.
type Equipment struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID           uuid.UUID         `gorm:"column:owner_id;type:uuid;not null;index"`
	Title             string            `gorm:"column:title;not null"`
	DailyRate         decimal.Decimal   `gorm:"column:daily_rate;type:numeric(12,2);not null"`
	DepositType       enums.DepositType `gorm:"column:deposit_type;type:text;not null;default:'none'"`
	DepositAmount     decimal.Decimal   `gorm:"column:deposit_amount;type:numeric(12,2);not null;default:0"`
	DepositPercentage decimal.Decimal   `gorm:"column:deposit_percentage;type:numeric(5,2);not null;default:0"`
	IsAvailable       bool              `gorm:"column:is_available;not null;default:true"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Equipment) TableName() string { return "equipment" }

func (e *Equipment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
