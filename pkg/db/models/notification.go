package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

// Notification stores in-app notifications addressed to a single user.
type Notification struct {
	ID                uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID                  `gorm:"column:user_id;type:uuid;not null;index"`
	Type              enums.NotificationType     `gorm:"column:type;type:notification_type;not null"`
	Priority          enums.NotificationPriority `gorm:"column:priority;type:text;not null;default:'normal'"`
	Title             string                     `gorm:"column:title;type:text;not null"`
	Message           string                     `gorm:"column:message;type:text;not null"`
	RelatedEntityType *string                    `gorm:"column:related_entity_type;type:text"`
	RelatedEntityID   *uuid.UUID                 `gorm:"column:related_entity_id;type:uuid"`
	ReadAt            *time.Time                 `gorm:"column:read_at"`
	CreatedAt         time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (Notification) TableName() string { return "notifications" }

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
