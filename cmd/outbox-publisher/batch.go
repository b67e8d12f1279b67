package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	"github.com/angelmondragon/rentalhub-backend/pkg/metrics"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox/registry"
)

// delivery is one claimed row on its way to Pub/Sub. Publishes start for the
// whole batch before any result is awaited.
type delivery struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	pub      publisher
	result   publishResult
	err      error
}

func (d delivery) orderingKey() string {
	return d.event.AggregateID.String()
}

func (d delivery) topic() string {
	if d.resolved == nil {
		return ""
	}
	return d.resolved.Descriptor.Topic
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		processed = true
		s.metrics.ObserveBatch(len(events))

		publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()

		deliveries := make([]delivery, 0, len(events))
		for _, event := range events {
			resolved, err := s.registry.Resolve(event)
			if err != nil {
				deliveries = append(deliveries, delivery{event: event, err: asNonRetryable(err)})
				continue
			}
			deliveries = append(deliveries, s.publish(publishCtx, event, resolved))
		}

		paused := map[string]publisher{}
		for _, d := range deliveries {
			ok, err := s.settle(publishCtx, tx, d)
			if err != nil {
				return err
			}
			if !ok && d.pub != nil {
				paused[d.orderingKey()] = d.pub
			}
		}
		for key, pub := range paused {
			pub.ResumePublish(key)
		}
		return nil
	})
	return processed, err
}

// publish starts an ordered publish for one resolved row.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) delivery {
	d := delivery{event: event, resolved: resolved}
	topic := d.topic()
	d.pub = s.publisherFactory(topic)
	if d.pub == nil {
		d.err = registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))
		return d
	}

	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if resolved.Envelope.Version > 0 {
		attrs["schema_version"] = strconv.Itoa(resolved.Envelope.Version)
	}
	d.result = d.pub.Publish(ctx, &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  attrs,
		OrderingKey: d.orderingKey(),
	})
	if d.result == nil {
		d.err = registry.NewNonRetryableError(fmt.Errorf("publisher for topic %q returned no result", topic))
	}
	return d
}

// settle waits for the publish outcome and records it on the row. It reports
// whether the row was published; the error is reserved for storage failures
// that must abort the batch.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, d delivery) (bool, error) {
	err := d.err
	if err == nil {
		_, err = d.result.Get(ctx)
	}
	fields := s.eventFields(d)

	if err == nil {
		if markErr := s.repo.MarkPublishedTx(tx, d.event.ID); markErr != nil {
			return false, fmt.Errorf("mark published %s: %w", d.event.ID, markErr)
		}
		s.metrics.ObserveRow(string(d.event.EventType), metrics.PublishPublished)
		if !d.event.CreatedAt.IsZero() {
			s.metrics.ObserveLag(s.now().Sub(d.event.CreatedAt))
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return true, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return false, s.handleTerminal(ctx, tx, d.event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}

	attempt := d.event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		return false, s.handleTerminal(ctx, tx, d.event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", err), fields)
	}

	if markErr := s.repo.MarkFailedTx(tx, d.event.ID, err); markErr != nil {
		return false, fmt.Errorf("mark failure %s: %w", d.event.ID, markErr)
	}
	s.metrics.ObserveRow(string(d.event.EventType), metrics.PublishRetried)
	s.logg.Warn(s.logg.WithFields(ctx, withError(fields, err)), "outbox publish failed; will retry")
	return false, nil
}

// handleTerminal copies the row into the dead-letter table and closes it out.
func (s *Service) handleTerminal(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason.String()
	s.logg.Warn(s.logg.WithFields(ctx, withError(fields, cause)), "outbox event dead-lettered")

	entry := event.DeadLetter(reason, cause, s.now())
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkDeadLettered(tx, event.ID, cause); err != nil {
		return fmt.Errorf("mark dead-lettered %s: %w", event.ID, err)
	}
	s.metrics.ObserveRow(string(event.EventType), metrics.PublishDeadLettered)
	return nil
}

func (s *Service) eventFields(d delivery) map[string]any {
	fields := map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID.String(),
		"attempt_count":  d.event.AttemptCount,
	}
	if d.resolved != nil {
		fields["topic"] = d.topic()
		fields["event_id"] = d.resolved.Envelope.EventID
	}
	return fields
}

func withError(fields map[string]any, err error) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}

func asNonRetryable(err error) error {
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return err
	}
	return registry.NewNonRetryableError(err)
}

func wrapPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{p}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}

func (g gcpPublisher) ResumePublish(key string) {
	g.p.ResumePublish(key)
}
