package inspections

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
)

// Repository persists pickup and return inspections.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, bookingID uuid.UUID, kind enums.InspectionType) (*models.Inspection, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Inspection, error)
	UpsertRenterVerification(ctx context.Context, inspection *models.Inspection) error
	MarkOwnerVerified(ctx context.Context, bookingID uuid.UUID, kind enums.InspectionType, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context, bookingID uuid.UUID, kind enums.InspectionType) (*models.Inspection, error) {
	var inspection models.Inspection
	if err := r.db.WithContext(ctx).
		Where("booking_id = ? AND inspection_type = ?", bookingID, kind).
		First(&inspection).Error; err != nil {
		return nil, err
	}
	return &inspection, nil
}

func (r *repository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.Inspection, error) {
	var rows []models.Inspection
	if err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpsertRenterVerification inserts the inspection or refreshes the renter's
// notes and photos on the existing (booking, type) row.
func (r *repository) UpsertRenterVerification(ctx context.Context, inspection *models.Inspection) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "booking_id"}, {Name: "inspection_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"notes", "photo_urls", "verified_by_renter", "renter_verified_at"}),
		}).
		Create(inspection).Error
}

func (r *repository) MarkOwnerVerified(ctx context.Context, bookingID uuid.UUID, kind enums.InspectionType, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Inspection{}).
		Where("booking_id = ? AND inspection_type = ? AND verified_by_owner = ?", bookingID, kind, false).
		Updates(map[string]any{
			"verified_by_owner": true,
			"owner_verified_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
