package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/config"
	"github.com/angelmondragon/rentalhub-backend/pkg/db/models"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/metrics"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackPoll        = 500 * time.Millisecond
	fallbackTimeout     = 15 * time.Second
	fallbackMaxAttempts = 10
	backoffCeiling      = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkDeadLettered(tx *gorm.DB, id uuid.UUID, err error) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

// publisher is the slice of a Pub/Sub publisher the loop relies on. Messages
// carry the aggregate id as ordering key, so a failed publish pauses that key
// until ResumePublish.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// ServiceParams wires the outbox publisher.
type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
	Now              func() time.Time
}

// Service drains committed outbox rows to Pub/Sub. Each batch runs inside one
// transaction holding row locks, so replicas never publish the same row twice.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	pubsub           pubSubClient
	repo             outboxRepository
	registry         registryResolver
	dlq              dlqRepository
	publisherFactory publisherFactory
	metrics          *metrics.OutboxMetrics
	now              func() time.Time
	jitter           *rand.Rand

	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, fmt.Errorf("config required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("database client required")
	case params.PubSub == nil:
		return nil, fmt.Errorf("pubsub client required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	case params.Registry == nil:
		return nil, fmt.Errorf("event registry required")
	case params.DLQRepository == nil:
		return nil, fmt.Errorf("dlq repository required")
	}

	cfg := params.Config.Outbox
	svc := &Service{
		logg:             params.Logger,
		db:               params.DB,
		pubsub:           params.PubSub,
		repo:             params.Repository,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		publisherFactory: params.PublisherFactory,
		metrics:          params.Metrics,
		now:              params.Now,
		jitter:           rand.New(rand.NewSource(time.Now().UnixNano())),
		batchSize:        positiveOr(cfg.BatchSize, fallbackBatchSize),
		maxAttempts:      positiveOr(cfg.MaxAttempts, fallbackMaxAttempts),
		pollInterval:     time.Duration(positiveOr(cfg.PollIntervalMS, 0)) * time.Millisecond,
		publishTimeout:   cfg.PublishTimeout,
	}
	if svc.pollInterval <= 0 {
		svc.pollInterval = fallbackPoll
	}
	if svc.publishTimeout <= 0 {
		svc.publishTimeout = fallbackTimeout
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.publisherFactory == nil {
		svc.publisherFactory = func(topic string) publisher {
			return wrapPublisher(params.PubSub.Publisher(topic))
		}
	}
	return svc, nil
}

// Run polls until ctx is canceled. Empty polls sleep one interval; failed
// batches back off exponentially up to backoffCeiling.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		return err
	}

	delay := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher stopping")
			return err
		}

		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			delay = min(delay*2, backoffCeiling)
		case processed:
			delay = s.pollInterval
			continue
		default:
			delay = s.pollInterval
		}

		if err := s.sleep(ctx, delay+s.jitterFor()); err != nil {
			return err
		}
	}
}

func (s *Service) checkDependencies(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.db.Ping(gctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.pubsub.Ping(gctx); err != nil {
			return fmt.Errorf("pubsub ping failed: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logg.Error(ctx, "outbox publisher dependency check failed", err)
		return err
	}
	return nil
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) jitterFor() time.Duration {
	return time.Duration(s.jitter.Int63n(int64(jitterWindow)))
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
