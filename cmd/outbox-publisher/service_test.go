package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/config"
	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/metrics"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox/registry"
)

var testPubSub = config.PubSubConfig{
	BookingTopic:      "rh-booking",
	PaymentTopic:      "rh-payment",
	NotificationTopic: "rh-notification",
}

type harness struct {
	repo   *fakeRepo
	pub    *fakePublisher
	dlq    *fakeDLQRepo
	prom   *prometheus.Registry
	topics []string
	svc    *Service
}

func newHarness(t *testing.T, maxAttempts int, rows ...models.OutboxEvent) *harness {
	t.Helper()
	events, err := registry.NewEventRegistry(testPubSub)
	require.NoError(t, err)

	h := &harness{
		repo: &fakeRepo{events: rows},
		pub:  &fakePublisher{},
		dlq:  &fakeDLQRepo{},
		prom: prometheus.NewRegistry(),
	}
	h.svc, err = NewService(ServiceParams{
		Config: &config.Config{
			PubSub: testPubSub,
			Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 50, MaxAttempts: maxAttempts},
		},
		Logger:     logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:         fakeDB{},
		PubSub:     fakePubSubClient{},
		Repository: h.repo,
		Registry:   events,
		PublisherFactory: func(topic string) publisher {
			h.topics = append(h.topics, topic)
			return h.pub
		},
		DLQRepository: h.dlq,
		Metrics:       metrics.NewOutboxMetrics(h.prom),
		Now:           func() time.Time { return time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return h
}

func outboxRow(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    outbox.EnvelopeVersion,
		EventID:    id.String(),
		OccurredAt: time.Date(2026, 5, 4, 11, 59, 0, 0, time.UTC),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   uuid.New(),
		Payload:       payload,
		CreatedAt:     time.Date(2026, 5, 4, 11, 59, 0, 0, time.UTC),
	}
}

func TestProcessBatchPublishesWithRoutingAttributes(t *testing.T) {
	row := outboxRow(t, enums.EventNotificationRequested, enums.AggregateNotification)
	h := newHarness(t, 5, row)
	h.pub.results = []publishResult{fakePublishResult{}}

	processed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []uuid.UUID{row.ID}, h.repo.published)
	assert.Equal(t, []string{"rh-notification"}, h.topics)

	require.Len(t, h.pub.messages, 1)
	msg := h.pub.messages[0]
	assert.JSONEq(t, string(row.Payload), string(msg.Data))
	assert.Equal(t, row.AggregateID.String(), msg.OrderingKey)
	assert.Equal(t, map[string]string{
		"event_id":       row.ID.String(),
		"event_type":     "notification_requested",
		"aggregate_type": string(enums.AggregateNotification),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     "2026-05-04T11:59:00Z",
		"schema_version": "1",
	}, msg.Attributes)
}

func TestProcessBatchRetriesTransientFailureAndResumesOrderingKey(t *testing.T) {
	failing := outboxRow(t, enums.EventBookingStatusChanged, enums.AggregateBooking)
	healthy := outboxRow(t, enums.EventBookingStatusChanged, enums.AggregateBooking)
	h := newHarness(t, 5, failing, healthy)
	h.pub.results = []publishResult{fakePublishResult{err: errors.New("unavailable")}, fakePublishResult{}}

	processed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []uuid.UUID{failing.ID}, h.repo.failed)
	assert.Equal(t, []uuid.UUID{healthy.ID}, h.repo.published)
	assert.Equal(t, []string{failing.AggregateID.String()}, h.pub.resumed)
	assert.Empty(t, h.dlq.entries)

	expected := `
# HELP rentalhub_outbox_rows_total Outbox rows handled by the publisher, by event type and outcome.
# TYPE rentalhub_outbox_rows_total counter
rentalhub_outbox_rows_total{event_type="booking_status_changed",outcome="published"} 1
rentalhub_outbox_rows_total{event_type="booking_status_changed",outcome="retried"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(h.prom, strings.NewReader(expected), "rentalhub_outbox_rows_total"))
}

func TestProcessBatchDeadLettersRowsTheRegistryRejects(t *testing.T) {
	row := outboxRow(t, enums.EventBookingStatusChanged, enums.AggregatePayment)
	h := newHarness(t, 5, row)

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.pub.messages)
	assert.Equal(t, []uuid.UUID{row.ID}, h.repo.deadLettered)

	require.Len(t, h.dlq.entries, 1)
	entry := h.dlq.entries[0]
	assert.Equal(t, row.ID, entry.EventID)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	assert.JSONEq(t, string(row.Payload), string(entry.Payload))
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "aggregate mismatch")
}

func TestProcessBatchDeadLettersAfterMaxAttempts(t *testing.T) {
	row := outboxRow(t, enums.EventPaymentSettled, enums.AggregatePayment)
	row.AttemptCount = 2
	h := newHarness(t, 3, row)
	h.pub.results = []publishResult{fakePublishResult{err: errors.New("deadline exceeded")}}

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.repo.failed)

	require.Len(t, h.dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, h.dlq.entries[0].ErrorReason)
	require.NotNil(t, h.dlq.entries[0].ErrorMessage)
	assert.Contains(t, *h.dlq.entries[0].ErrorMessage, "max publish attempts reached")
	assert.Equal(t, []string{row.AggregateID.String()}, h.pub.resumed)
}

func TestProcessBatchDeadLettersWhenPublisherIsMissing(t *testing.T) {
	row := outboxRow(t, enums.EventEscrowReleased, enums.AggregatePayment)
	h := newHarness(t, 5, row)
	h.svc.publisherFactory = func(string) publisher { return nil }

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, h.dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, h.dlq.entries[0].ErrorReason)
	assert.Empty(t, h.repo.published)
}

func TestProcessBatchDeadLettersWhenPublishYieldsNoResult(t *testing.T) {
	row := outboxRow(t, enums.EventPaymentRefunded, enums.AggregatePayment)
	h := newHarness(t, 5, row)

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, h.dlq.entries, 1)
	require.NotNil(t, h.dlq.entries[0].ErrorMessage)
	assert.Contains(t, *h.dlq.entries[0].ErrorMessage, "returned no result")
}

func TestProcessBatchAbortsOnStorageFailure(t *testing.T) {
	row := outboxRow(t, enums.EventBookingStatusChanged, enums.AggregateBooking)
	h := newHarness(t, 5, row)
	h.pub.results = []publishResult{fakePublishResult{}}
	h.repo.markErr = errors.New("connection lost")

	_, err := h.svc.processBatch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, h.repo.markErr)
}

func TestProcessBatchEmptyReportsIdle(t *testing.T) {
	h := newHarness(t, 5)
	processed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Config: &config.Config{}})
	assert.EqualError(t, err, "logger required")
}

type fakeRepo struct {
	events       []models.OutboxEvent
	published    []uuid.UUID
	failed       []uuid.UUID
	deadLettered []uuid.UUID
	markErr      error
}

func (f *fakeRepo) FetchForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkDeadLettered(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.deadLettered = append(f.deadLettered, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
	resumed  []string
}

func (f *fakePublisher) ResumePublish(key string) {
	f.resumed = append(f.resumed, key)
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
