package notifications

import (
	"context"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/email"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox/registry"
)

const emailConsumerName = "notification-email"

var defaultDecoders = registry.ConsumerDecoders()

type profileReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

type deduper interface {
	Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error)
}

// EmailConsumer turns notification_requested events into emails for
// high and critical notices.
type EmailConsumer struct {
	subscription *pubsub.Subscriber
	profiles     profileReader
	sender       email.Sender
	dedup        deduper
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
}

// EmailConsumerParams wires the email consumer.
type EmailConsumerParams struct {
	Subscription *pubsub.Subscriber
	Profiles     profileReader
	Sender       email.Sender
	Dedup        deduper
	Decoders     *registry.DecoderRegistry
	Logger       *logger.Logger
}

// NewEmailConsumer builds the notification email consumer.
func NewEmailConsumer(params EmailConsumerParams) (*EmailConsumer, error) {
	if params.Subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile reader required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("email sender required")
	}
	if params.Dedup == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &EmailConsumer{
		subscription: params.Subscription,
		profiles:     params.Profiles,
		sender:       params.Sender,
		dedup:        params.Dedup,
		decoders:     params.Decoders,
		logg:         params.Logger,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *EmailConsumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *EmailConsumer) process(ctx context.Context, messageID string, attributes map[string]string, data []byte) processResult {
	eventType := attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventNotificationRequested) {
		c.logg.Info(logCtx, "skipping non-notification event")
		return processResult{ack: true}
	}

	decoders := c.decoders
	if decoders == nil {
		decoders = defaultDecoders
	}
	decoded, err := decoders.DecodeMessage(enums.EventNotificationRequested, data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode notification event", err)
		return processResult{ack: true}
	}
	eventID, err := uuid.Parse(decoded.Envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	payload, ok := decoded.Payload.(payloads.NotificationRequestedEvent)
	if !ok {
		c.logg.Warn(logCtx, "unexpected notification payload type")
		return processResult{ack: true}
	}
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"notification_id": payload.NotificationID.String(),
		"recipient_id":    payload.UserID.String(),
		"priority":        payload.Priority,
	})

	if !payload.Priority.EmailWorthy() {
		return processResult{ack: true}
	}

	ran, err := c.dedup.Once(ctx, emailConsumerName, eventID, func(ctx context.Context) error {
		return c.send(ctx, payload)
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			c.logg.Warn(logCtx, "recipient profile missing; email skipped")
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "notification email failed", err)
		return processResult{nack: true}
	}
	if !ran {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}
	c.logg.Info(logCtx, "notification email sent")
	return processResult{ack: true}
}

func (c *EmailConsumer) send(ctx context.Context, payload payloads.NotificationRequestedEvent) error {
	profile, err := c.profiles.FindByID(ctx, payload.UserID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(profile.Email) == "" {
		return pkgerrors.New(pkgerrors.CodeNotFound, "recipient has no email")
	}
	return c.sender.Send(ctx, email.Message{
		ToEmail:   profile.Email,
		ToName:    profile.FullName,
		Subject:   payload.Title,
		PlainText: payload.Message,
	})
}
