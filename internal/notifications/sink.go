package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notice is a single user-facing notification request.
type Notice struct {
	UserID            uuid.UUID
	Type              enums.NotificationType
	Priority          enums.NotificationPriority
	Title             string
	Message           string
	RelatedEntityType string
	RelatedEntityID   *uuid.UUID
}

// Sink stores in-app notifications and queues them for delivery. Failures
// never reach the caller.
type Sink struct {
	repo   Repository
	tx     txRunner
	outbox outbox.Emitter
	logg   *logger.Logger
}

// NewSink wires the notification sink.
func NewSink(repo Repository, tx txRunner, emitter outbox.Emitter, logg *logger.Logger) (*Sink, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Sink{repo: repo, tx: tx, outbox: emitter, logg: logg}, nil
}

// Notify records the notice. Errors are logged and swallowed.
func (s *Sink) Notify(ctx context.Context, notice Notice) {
	if err := s.deliver(ctx, notice); err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"recipient_id":      notice.UserID.String(),
			"notification_type": notice.Type,
		})
		s.logg.Error(logCtx, "notification dropped", err)
	}
}

func (s *Sink) deliver(ctx context.Context, notice Notice) error {
	if notice.UserID == uuid.Nil {
		return fmt.Errorf("recipient required")
	}
	if !notice.Type.IsValid() {
		return fmt.Errorf("invalid notification type %q", notice.Type)
	}
	priority := notice.Priority
	if priority == "" {
		priority = enums.NotificationPriorityNormal
	}

	row := &models.Notification{
		UserID:          notice.UserID,
		Type:            notice.Type,
		Priority:        priority,
		Title:           notice.Title,
		Message:         notice.Message,
		RelatedEntityID: notice.RelatedEntityID,
	}
	if notice.RelatedEntityType != "" {
		entityType := notice.RelatedEntityType
		row.RelatedEntityType = &entityType
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   row.ID,
			Data: payloads.NotificationRequestedEvent{
				NotificationID:    row.ID,
				UserID:            row.UserID,
				Type:              row.Type,
				Priority:          row.Priority,
				Title:             row.Title,
				Message:           row.Message,
				RelatedEntityType: notice.RelatedEntityType,
				RelatedEntityID:   row.RelatedEntityID,
			},
		})
	})
}
