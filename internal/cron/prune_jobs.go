package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
)

const (
	defaultReadRetention   = 30 * 24 * time.Hour
	defaultUnreadRetention = 90 * 24 * time.Hour
	defaultOutboxRetention = 30 * 24 * time.Hour
	outboxMinAttempts      = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// pruneFunc deletes expired rows relative to now and reports the cutoffs it
// used for logging.
type pruneFunc func(ctx context.Context, tx *gorm.DB, now time.Time) (int64, map[string]any, error)

// pruneJob runs a single bulk delete inside a transaction.
type pruneJob struct {
	name  string
	logg  *logger.Logger
	db    txRunner
	prune pruneFunc
	now   func() time.Time
}

func (j *pruneJob) Name() string { return j.name }

func (j *pruneJob) Run(ctx context.Context) error {
	var (
		deleted int64
		fields  map[string]any
	)
	now := j.now().UTC()
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		deleted, fields, err = j.prune(ctx, tx, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["rows_deleted"] = deleted
	j.logg.Info(j.logg.WithFields(ctx, fields), j.name+" complete")
	return nil
}

func newPruneJob(name string, logg *logger.Logger, db txRunner, prune pruneFunc) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if db == nil {
		return nil, fmt.Errorf("db runner required")
	}
	return &pruneJob{name: name, logg: logg, db: db, prune: prune, now: time.Now}, nil
}

type notificationsCleanupRepo interface {
	DeleteExpired(ctx context.Context, tx *gorm.DB, readCutoff, unreadCutoff time.Time) (int64, error)
}

type NotificationCleanupJobParams struct {
	Logger          *logger.Logger
	DB              txRunner
	Repository      notificationsCleanupRepo
	ReadRetention   time.Duration
	UnreadRetention time.Duration
}

// NewNotificationCleanupJob removes read notifications after ReadRetention and
// unread ones after UnreadRetention.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	read := orDuration(params.ReadRetention, defaultReadRetention)
	unread := orDuration(params.UnreadRetention, defaultUnreadRetention)
	return newPruneJob("notification-cleanup", params.Logger, params.DB, func(ctx context.Context, tx *gorm.DB, now time.Time) (int64, map[string]any, error) {
		readCutoff, unreadCutoff := now.Add(-read), now.Add(-unread)
		rows, err := params.Repository.DeleteExpired(ctx, tx, readCutoff, unreadCutoff)
		return rows, map[string]any{"read_cutoff": readCutoff, "unread_cutoff": unreadCutoff}, err
	})
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repository  outboxRetentionRepo
	Retention   time.Duration
	MinAttempts int
}

// NewOutboxRetentionJob prunes published outbox rows older than Retention.
// Rows that needed MinAttempts or more deliveries are kept for inspection.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := orDuration(params.Retention, defaultOutboxRetention)
	minAttempts := params.MinAttempts
	if minAttempts <= 0 {
		minAttempts = outboxMinAttempts
	}
	return newPruneJob("outbox-retention", params.Logger, params.DB, func(ctx context.Context, tx *gorm.DB, now time.Time) (int64, map[string]any, error) {
		cutoff := now.Add(-retention)
		rows, err := params.Repository.DeletePublishedBefore(ctx, tx, cutoff, minAttempts)
		return rows, map[string]any{"cutoff": cutoff, "min_attempts": minAttempts}, err
	})
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
