package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
)

var errTxRequired = errors.New("transaction required")

// Repository reads and writes outbox_events. Every write except retention
// runs on the caller's transaction.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Create(&event).Error
}

// FetchForPublish locks the oldest unpublished rows that still have attempts
// left. Concurrent publishers skip rows another one holds.
func (r *Repository) FetchForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	var rows []models.OutboxEvent
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL").
		Where("attempt_count < ?", maxAttempts).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return r.update(tx, id, map[string]any{"published_at": r.now().UTC()})
}

// MarkFailedTx records a failed attempt; the row stays eligible until it runs
// out of attempts.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.update(tx, id, failure(cause))
}

// MarkDeadLettered closes a row after it was copied to the DLQ so the
// publisher stops picking it up.
func (r *Repository) MarkDeadLettered(tx *gorm.DB, id uuid.UUID, cause error) error {
	fields := failure(cause)
	fields["published_at"] = r.now().UTC()
	return r.update(tx, id, fields)
}

func (r *Repository) update(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

func failure(cause error) map[string]any {
	fields := map[string]any{"attempt_count": gorm.Expr("attempt_count + 1")}
	if cause != nil {
		fields["last_error"] = cause.Error()
	}
	return fields
}

// DeletePublishedBefore removes published rows older than cutoff. Rows that
// needed at least minAttemptCount tries are kept longer for forensics.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	db := tx
	if db == nil {
		db = r.db
	}
	res := db.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Where("attempt_count < ?", minAttemptCount).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}
