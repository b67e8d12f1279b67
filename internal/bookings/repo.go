package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	"github.com/angelmondragon/rentalhub-backend/pkg/pagination"
)

// Repository persists booking requests and the rows written alongside their
// status changes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.BookingRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.BookingRequest, error)
	ListForUser(ctx context.Context, params listParams) ([]models.BookingRequest, *pagination.Cursor, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.BookingStatus, to enums.BookingStatus, updates map[string]any) (bool, error)
	ListDueForStart(ctx context.Context, today time.Time, limit int) ([]models.BookingRequest, error)
	FindEquipment(ctx context.Context, id uuid.UUID) (*models.Equipment, error)
	CreateRentalEvent(ctx context.Context, event *models.RentalEvent) error
	ListRentalEvents(ctx context.Context, bookingID uuid.UUID) ([]models.RentalEvent, error)
	CreateDamageClaim(ctx context.Context, claim *models.DamageClaim) error
	FindOpenDamageClaim(ctx context.Context, bookingID uuid.UUID) (*models.DamageClaim, error)
	LatestDamageClaim(ctx context.Context, bookingID uuid.UUID) (*models.DamageClaim, error)
	ResolveDamageClaim(ctx context.Context, claimID uuid.UUID, updates map[string]any) (bool, error)
}

type listParams struct {
	UserID uuid.UUID
	Side   Side
	Status enums.BookingStatus
	Limit  int
	Cursor *pagination.Cursor
}

// Side narrows a booking listing to the user's role on each booking.
type Side string

const (
	SideAny    Side = ""
	SideRenter Side = "renter"
	SideOwner  Side = "owner"
)

var openClaimStatuses = []enums.DamageClaimStatus{
	enums.DamageClaimStatusPending,
	enums.DamageClaimStatusDisputed,
	enums.DamageClaimStatusEscalated,
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a bookings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.BookingRequest) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.BookingRequest, error) {
	var booking models.BookingRequest
	if err := r.db.WithContext(ctx).First(&booking, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) ListForUser(ctx context.Context, params listParams) ([]models.BookingRequest, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.BookingRequest{})
	switch params.Side {
	case SideRenter:
		query = query.Where("renter_id = ?", params.UserID)
	case SideOwner:
		query = query.Where("owner_id = ?", params.UserID)
	default:
		query = query.Where("(renter_id = ? OR owner_id = ?)", params.UserID, params.UserID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var bookings []models.BookingRequest
	if err := query.Scopes(pagination.Keyset(params.Cursor, params.Limit)).Find(&bookings).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.TrimPage(bookings, params.Limit, func(b models.BookingRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: b.CreatedAt, ID: b.ID}
	})
	return page, next, nil
}

// TransitionStatus moves the booking to `to` only while it still sits in one
// of `from`. It reports whether this call performed the write.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.BookingStatus, to enums.BookingStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for column, value := range updates {
		values[column] = value
	}
	result := r.db.WithContext(ctx).
		Model(&models.BookingRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListDueForStart(ctx context.Context, today time.Time, limit int) ([]models.BookingRequest, error) {
	var bookings []models.BookingRequest
	query := r.db.WithContext(ctx).
		Where("status = ? AND start_date <= ?", enums.BookingStatusAwaitingStartDate, datatypes.Date(today)).
		Order("start_date ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *repository) FindEquipment(ctx context.Context, id uuid.UUID) (*models.Equipment, error) {
	var equipment models.Equipment
	if err := r.db.WithContext(ctx).First(&equipment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &equipment, nil
}

func (r *repository) CreateRentalEvent(ctx context.Context, event *models.RentalEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListRentalEvents(ctx context.Context, bookingID uuid.UUID) ([]models.RentalEvent, error) {
	var events []models.RentalEvent
	if err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) CreateDamageClaim(ctx context.Context, claim *models.DamageClaim) error {
	return r.db.WithContext(ctx).Create(claim).Error
}

func (r *repository) FindOpenDamageClaim(ctx context.Context, bookingID uuid.UUID) (*models.DamageClaim, error) {
	var claim models.DamageClaim
	if err := r.db.WithContext(ctx).
		Where("booking_id = ? AND status IN ?", bookingID, openClaimStatuses).
		Order("created_at DESC").
		First(&claim).Error; err != nil {
		return nil, err
	}
	return &claim, nil
}

func (r *repository) LatestDamageClaim(ctx context.Context, bookingID uuid.UUID) (*models.DamageClaim, error) {
	var claim models.DamageClaim
	if err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at DESC").
		First(&claim).Error; err != nil {
		return nil, err
	}
	return &claim, nil
}

func (r *repository) ResolveDamageClaim(ctx context.Context, claimID uuid.UUID, updates map[string]any) (bool, error) {
	values := map[string]any{"status": enums.DamageClaimStatusResolved}
	for column, value := range updates {
		values[column] = value
	}
	result := r.db.WithContext(ctx).
		Model(&models.DamageClaim{}).
		Where("id = ? AND status IN ?", claimID, openClaimStatuses).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
