package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

// DamageClaim is filed by the owner during review and settled by an admin.
type DamageClaim struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	BookingID         uuid.UUID               `gorm:"column:booking_id;type:uuid;not null;index"`
	FiledBy           uuid.UUID               `gorm:"column:filed_by;type:uuid;not null"`
	DamageDescription string                  `gorm:"column:damage_description;not null"`
	EstimatedCost     decimal.NullDecimal     `gorm:"column:estimated_cost;type:numeric(12,2)"`
	Status            enums.DamageClaimStatus `gorm:"column:status;type:damage_claim_status;not null;default:'pending'"`
	Resolution        datatypes.JSON          `gorm:"column:resolution;type:jsonb"`
	DeductionAmount   decimal.NullDecimal     `gorm:"column:deduction_amount;type:numeric(12,2)"`
	ResolvedBy        *uuid.UUID              `gorm:"column:resolved_by;type:uuid"`
	ResolvedAt        *time.Time              `gorm:"column:resolved_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (DamageClaim) TableName() string { return "damage_claims" }

func (d *DamageClaim) BeforeCreate(tx *gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
