package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

// RentalEvent is an append-only entry in a booking's activity log.
type RentalEvent struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	BookingID uuid.UUID             `gorm:"column:booking_id;type:uuid;not null;index"`
	EventType enums.RentalEventType `gorm:"column:event_type;type:text;not null"`
	ActorID   *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	Metadata  datatypes.JSON        `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (RentalEvent) TableName() string { return "rental_events" }

func (e *RentalEvent) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
