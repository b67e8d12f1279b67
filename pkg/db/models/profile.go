package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

// Profile mirrors the identity provider's user record. Rows are written by
// the identity sync, never by this service.
type Profile struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email     string         `gorm:"column:email;type:text;not null"`
	FullName  string         `gorm:"column:full_name;type:text;not null;default:''"`
	Role      enums.UserRole `gorm:"column:role;type:text;not null;default:'user'"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Profile) TableName() string { return "profiles" }
