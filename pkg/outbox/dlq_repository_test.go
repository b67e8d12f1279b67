package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
)

func newDLQDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newOutboxDB(t)
	require.NoError(t, db.AutoMigrate(&models.OutboxDLQ{}))
	return db
}

func deadLetter(t *testing.T, db *gorm.DB, repo *DLQRepository, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, msg string) {
	t.Helper()
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.InsertTx(tx, models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   reason,
			ErrorMessage:  &msg,
			AttemptCount:  event.AttemptCount,
		})
	}))
}

func closedEvent(t *testing.T, db *gorm.DB, eventType enums.OutboxEventType) models.OutboxEvent {
	t.Helper()
	now := time.Now().UTC()
	lastErr := "publish failed"
	event := models.OutboxEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateBooking,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		PublishedAt:   &now,
		AttemptCount:  5,
		LastError:     &lastErr,
	}
	require.NoError(t, db.Create(&event).Error)
	return event
}

func TestDLQInsertTruncatesAndFilters(t *testing.T) {
	db := newDLQDB(t)
	repo := NewDLQRepository(db)
	ctx := context.Background()

	booking := closedEvent(t, db, enums.EventBookingStatusChanged)
	payment := closedEvent(t, db, enums.EventPaymentSettled)
	deadLetter(t, db, repo, booking, enums.OutboxDLQReasonMaxAttempts, strings.Repeat("x", 2*maxDLQErrorLen))
	deadLetter(t, db, repo, payment, enums.OutboxDLQReasonNonRetryable, "bad payload")

	stored, err := repo.FindByEventID(ctx, booking.ID)
	require.NoError(t, err)
	require.Len(t, *stored.ErrorMessage, maxDLQErrorLen)

	rows, err := repo.List(ctx, DLQFilter{Reason: enums.OutboxDLQReasonNonRetryable})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, payment.ID, rows[0].EventID)

	rows, err = repo.List(ctx, DLQFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	_, err = repo.FindByEventID(ctx, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDLQRequeueReopensOutboxRow(t *testing.T) {
	db := newDLQDB(t)
	repo := NewDLQRepository(db)
	ctx := context.Background()

	event := closedEvent(t, db, enums.EventBookingStatusChanged)
	deadLetter(t, db, repo, event, enums.OutboxDLQReasonMaxAttempts, "timeout")

	require.NoError(t, repo.Requeue(ctx, event.ID))

	var reopened models.OutboxEvent
	require.NoError(t, db.First(&reopened, "id = ?", event.ID).Error)
	require.Nil(t, reopened.PublishedAt)
	require.Nil(t, reopened.LastError)
	require.Zero(t, reopened.AttemptCount)

	var remaining int64
	require.NoError(t, db.Model(&models.OutboxDLQ{}).Count(&remaining).Error)
	require.Zero(t, remaining)
}

func TestDLQRequeueRecreatesPurgedRow(t *testing.T) {
	db := newDLQDB(t)
	repo := NewDLQRepository(db)
	ctx := context.Background()

	event := closedEvent(t, db, enums.EventPaymentRefunded)
	deadLetter(t, db, repo, event, enums.OutboxDLQReasonNonRetryable, "schema")
	require.NoError(t, db.Delete(&models.OutboxEvent{}, "id = ?", event.ID).Error)

	require.NoError(t, repo.Requeue(ctx, event.ID))

	var recreated models.OutboxEvent
	require.NoError(t, db.First(&recreated, "id = ?", event.ID).Error)
	require.Equal(t, enums.EventPaymentRefunded, recreated.EventType)
	require.Equal(t, event.AggregateID, recreated.AggregateID)
	require.Nil(t, recreated.PublishedAt)
}
