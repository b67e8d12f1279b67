package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func asPruneJob(t *testing.T, job Job, err error, now time.Time) *pruneJob {
	t.Helper()
	require.NoError(t, err)
	pj, ok := job.(*pruneJob)
	require.True(t, ok, "unexpected job type %T", job)
	pj.now = func() time.Time { return now }
	return pj
}

func TestNotificationCleanupJobUsesDefaultCutoffs(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	repo := &fakeNotificationRepo{deletedRows: 42}
	var buf bytes.Buffer
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: &buf}),
		DB:         passthroughTx{},
		Repository: repo,
	})
	pj := asPruneJob(t, job, err, now)

	require.Equal(t, "notification-cleanup", pj.Name())
	require.NoError(t, pj.Run(context.Background()))
	require.Equal(t, 1, repo.called)
	require.True(t, repo.readCutoff.Equal(now.Add(-defaultReadRetention)))
	require.True(t, repo.unreadCutoff.Equal(now.Add(-defaultUnreadRetention)))
	require.Contains(t, buf.String(), `"rows_deleted":42`)
}

func TestNotificationCleanupJobPropagatesErrors(t *testing.T) {
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		DB:         passthroughTx{},
		Repository: &fakeNotificationRepo{err: errors.New("boom")},
	})
	require.NoError(t, err)
	require.ErrorContains(t, job.Run(context.Background()), "notification-cleanup: boom")
}

func TestOutboxRetentionJobHonorsConfiguredWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	repo := &fakeOutboxRetentionRepo{}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		DB:         passthroughTx{},
		Repository: repo,
	})
	require.NoError(t, asPruneJob(t, job, err, now).Run(context.Background()))
	require.True(t, repo.lastCutoff.Equal(now.Add(-defaultOutboxRetention)))
	require.Equal(t, outboxMinAttempts, repo.minAttempts)

	repo = &fakeOutboxRetentionRepo{}
	job, err = NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "test"}),
		DB:          passthroughTx{},
		Repository:  repo,
		Retention:   72 * time.Hour,
		MinAttempts: 2,
	})
	require.NoError(t, asPruneJob(t, job, err, now).Run(context.Background()))
	require.True(t, repo.lastCutoff.Equal(now.Add(-72*time.Hour)))
	require.Equal(t, 2, repo.minAttempts)
}

func TestPruneJobConstructorsRequireDependencies(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{DB: passthroughTx{}, Repository: &fakeOutboxRetentionRepo{}})
	require.ErrorContains(t, err, "logger required")
	_, err = NewNotificationCleanupJob(NotificationCleanupJobParams{Logger: logger.New(logger.Options{ServiceName: "test"})})
	require.ErrorContains(t, err, "notifications repository required")
	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.New(logger.Options{ServiceName: "test"}), Repository: &fakeOutboxRetentionRepo{}})
	require.ErrorContains(t, err, "db runner required")
}

type fakeNotificationRepo struct {
	readCutoff   time.Time
	unreadCutoff time.Time
	deletedRows  int64
	err          error
	called       int
}

func (f *fakeNotificationRepo) DeleteExpired(ctx context.Context, tx *gorm.DB, readCutoff, unreadCutoff time.Time) (int64, error) {
	f.called++
	f.readCutoff, f.unreadCutoff = readCutoff, unreadCutoff
	return f.deletedRows, f.err
}

type fakeOutboxRetentionRepo struct {
	lastCutoff  time.Time
	minAttempts int
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.lastCutoff, f.minAttempts = cutoff, minAttemptCount
	return 7, nil
}
