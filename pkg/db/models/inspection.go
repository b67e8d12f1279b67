package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

// Inspection records the renter and owner sign-off at pickup or return.
type Inspection struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	BookingID        uuid.UUID            `gorm:"column:booking_id;type:uuid;not null;uniqueIndex:uq_inspections_booking_type"`
	InspectionType   enums.InspectionType `gorm:"column:inspection_type;type:inspection_type;not null;uniqueIndex:uq_inspections_booking_type"`
	VerifiedByRenter bool                 `gorm:"column:verified_by_renter;not null;default:false"`
	VerifiedByOwner  bool                 `gorm:"column:verified_by_owner;not null;default:false"`
	Notes            *string              `gorm:"column:notes"`
	PhotoURLs        pq.StringArray       `gorm:"column:photo_urls;type:text[]"`
	RenterVerifiedAt *time.Time           `gorm:"column:renter_verified_at"`
	OwnerVerifiedAt  *time.Time           `gorm:"column:owner_verified_at"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (Inspection) TableName() string { return "inspections" }

func (i *Inspection) BeforeCreate(tx *gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
