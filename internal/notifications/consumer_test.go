package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/email"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentalhub-backend/pkg/errors"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox/payloads"
)

type stubProfiles struct {
	profile *models.Profile
}

func (s *stubProfiles) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	if s.profile == nil || s.profile.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}
	return s.profile, nil
}

type stubSender struct {
	sent []email.Message
	err  error
}

func (s *stubSender) Send(ctx context.Context, msg email.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type memoryDedup struct {
	seen map[uuid.UUID]bool
}

func (m *memoryDedup) Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error) {
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	if err := fn(ctx); err != nil {
		delete(m.seen, eventID)
		return true, err
	}
	return true, nil
}

func newTestConsumer(profile *models.Profile, sender *stubSender) *EmailConsumer {
	return &EmailConsumer{
		profiles: &stubProfiles{profile: profile},
		sender:   sender,
		dedup:    &memoryDedup{seen: map[uuid.UUID]bool{}},
		logg:     logger.New(logger.Options{ServiceName: "test"}),
	}
}

func envelopeFor(t *testing.T, eventID uuid.UUID, payload payloads.NotificationRequestedEvent) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: eventID.String(), Data: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

var notificationAttrs = map[string]string{"event_type": string(enums.EventNotificationRequested)}

func TestEmailConsumerSendsOncePerEvent(t *testing.T) {
	profile := &models.Profile{ID: uuid.New(), Email: "renter@example.com", FullName: "Rita Renter"}
	sender := &stubSender{}
	consumer := newTestConsumer(profile, sender)
	eventID := uuid.New()
	data := envelopeFor(t, eventID, payloads.NotificationRequestedEvent{
		NotificationID: uuid.New(),
		UserID:         profile.ID,
		Type:           enums.NotificationTypeDamageReported,
		Priority:       enums.NotificationPriorityCritical,
		Title:          "Damage reported",
		Message:        "The owner reported damage.",
	})

	if res := consumer.process(context.Background(), "m1", notificationAttrs, data); !res.ack {
		t.Fatalf("expected ack, got %+v", res)
	}
	if res := consumer.process(context.Background(), "m2", notificationAttrs, data); !res.ack {
		t.Fatalf("expected ack on redelivery, got %+v", res)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sender.sent))
	}
	if sender.sent[0].ToEmail != "renter@example.com" || sender.sent[0].Subject != "Damage reported" {
		t.Fatalf("unexpected email %+v", sender.sent[0])
	}
}

func TestEmailConsumerSkipsLowPriority(t *testing.T) {
	profile := &models.Profile{ID: uuid.New(), Email: "owner@example.com"}
	sender := &stubSender{}
	consumer := newTestConsumer(profile, sender)
	data := envelopeFor(t, uuid.New(), payloads.NotificationRequestedEvent{
		UserID:   profile.ID,
		Type:     enums.NotificationTypeBookingUpdate,
		Priority: enums.NotificationPriorityNormal,
	})

	if res := consumer.process(context.Background(), "m1", notificationAttrs, data); !res.ack {
		t.Fatalf("expected ack, got %+v", res)
	}
	if len(sender.sent) != 0 {
		t.Fatal("normal priority must not be emailed")
	}
}

func TestEmailConsumerNacksOnSendFailure(t *testing.T) {
	profile := &models.Profile{ID: uuid.New(), Email: "owner@example.com"}
	sender := &stubSender{err: errors.New("sendgrid 503")}
	consumer := newTestConsumer(profile, sender)
	data := envelopeFor(t, uuid.New(), payloads.NotificationRequestedEvent{
		UserID:   profile.ID,
		Type:     enums.NotificationTypeReturnReview,
		Priority: enums.NotificationPriorityHigh,
		Message:  "Review the return.",
	})

	if res := consumer.process(context.Background(), "m1", notificationAttrs, data); !res.nack {
		t.Fatalf("expected nack, got %+v", res)
	}
	sender.err = nil
	if res := consumer.process(context.Background(), "m2", notificationAttrs, data); !res.ack {
		t.Fatalf("expected ack on retry, got %+v", res)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected retry to send, got %d", len(sender.sent))
	}
}

func TestEmailConsumerAcksMissingProfileAndForeignEvents(t *testing.T) {
	consumer := newTestConsumer(nil, &stubSender{})
	data := envelopeFor(t, uuid.New(), payloads.NotificationRequestedEvent{
		UserID:   uuid.New(),
		Type:     enums.NotificationTypeDamageReported,
		Priority: enums.NotificationPriorityCritical,
	})
	if res := consumer.process(context.Background(), "m1", notificationAttrs, data); !res.ack {
		t.Fatalf("expected ack for missing profile, got %+v", res)
	}

	other := map[string]string{"event_type": string(enums.EventPaymentSettled)}
	if res := consumer.process(context.Background(), "m2", other, []byte("{}")); !res.ack {
		t.Fatalf("expected ack for foreign event, got %+v", res)
	}
	if res := consumer.process(context.Background(), "m3", notificationAttrs, []byte("not json")); !res.ack {
		t.Fatalf("expected ack for poison message, got %+v", res)
	}
}
