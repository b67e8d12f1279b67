package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
)

// Range is the rental span: equipment is picked up on Start and returned on
// End, so End is free for the next renter. A same-day rental holds Start.
type Range struct {
	EquipmentID uuid.UUID
	Start       time.Time
	End         time.Time
	// Exclude skips the booking being re-checked.
	Exclude *uuid.UUID
}

// Checker answers whether equipment is already held for a date range.
type Checker interface {
	WithTx(tx *gorm.DB) Checker
	HasConflict(ctx context.Context, r Range) (bool, error)
	Conflicts(ctx context.Context, r Range) ([]uuid.UUID, error)
}

type checker struct {
	db *gorm.DB
}

// NewChecker binds a checker to the provided database handle.
func NewChecker(db *gorm.DB) (Checker, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	return &checker{db: db}, nil
}

func (c *checker) WithTx(tx *gorm.DB) Checker {
	if tx == nil {
		return c
	}
	return &checker{db: tx}
}

func (c *checker) HasConflict(ctx context.Context, r Range) (bool, error) {
	ids, err := c.overlapping(ctx, r, 1)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func (c *checker) Conflicts(ctx context.Context, r Range) ([]uuid.UUID, error) {
	return c.overlapping(ctx, r, 0)
}

func (c *checker) overlapping(ctx context.Context, r Range, limit int) ([]uuid.UUID, error) {
	if r.EquipmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "equipment id is required")
	}
	start, end := day(r.Start), day(r.End)
	if end.Before(start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end date precedes start date")
	}

	// occupied days are [start, end), widened to one day for same-day rows
	returnDay := end
	if !end.After(start) {
		returnDay = start.AddDate(0, 0, 1)
	}
	query := c.db.WithContext(ctx).
		Model(&models.BookingRequest{}).
		Where("equipment_id = ?", r.EquipmentID).
		Where("status IN ?", enums.EquipmentHoldingStatuses).
		Where("start_date < ?", datatypes.Date(returnDay)).
		Where("(end_date > ? OR (end_date = start_date AND start_date >= ?))", datatypes.Date(start), datatypes.Date(start))
	if r.Exclude != nil {
		query = query.Where("id <> ?", *r.Exclude)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var ids []uuid.UUID
	if err := query.Order("start_date ASC").Pluck("id", &ids).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check equipment availability")
	}
	return ids, nil
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
