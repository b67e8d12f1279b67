package profiles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
)

// Repository reads identity profiles synced from the identity provider.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the profile reader to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	return &profile, nil
}
