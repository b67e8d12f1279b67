package cron

import (
	"context"
	"fmt"
	"time"

	robfig "github.com/robfig/cron/v3"

	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/metrics"
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
}

// Service runs each registered job on its own schedule.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
	}, nil
}

// Run schedules every job and blocks until the context is canceled. Runs in
// flight are allowed to finish.
func (s *Service) Run(ctx context.Context) error {
	scheduler := robfig.New(
		robfig.WithLocation(time.UTC),
		robfig.WithChain(robfig.SkipIfStillRunning(schedulerLogger{ctx: ctx, logg: s.logg})),
	)
	for _, entry := range s.registry.Entries() {
		job := entry.Job
		if _, err := scheduler.AddFunc(entry.Spec, func() { _ = s.RunJob(ctx, job) }); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name(), err)
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "schedule": entry.Spec}), "job scheduled")
	}
	scheduler.Start()
	<-ctx.Done()
	s.logg.Info(ctx, "cron service stopping; waiting for running jobs")
	<-scheduler.Stop().Done()
	return ctx.Err()
}

// RunOnce executes a single job by name, honoring the job lock.
func (s *Service) RunOnce(ctx context.Context, name string) error {
	job, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.RunJob(ctx, job)
}

// RunJob runs one job under its lock and records metrics. A run skipped
// because another instance holds the lock is not an error.
func (s *Service) RunJob(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	locked, err := s.lock.Acquire(jobCtx, name)
	switch {
	case err != nil:
		s.logg.Error(jobCtx, "job lock failed", err)
		s.metrics.IncFailure(name)
		return fmt.Errorf("lock acquire: %w", err)
	case !locked:
		s.logg.Info(jobCtx, "job held by another instance; skipping")
		s.metrics.IncSkipped(name)
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(jobCtx, name); relErr != nil {
			s.logg.Error(jobCtx, "failed to release job lock", relErr)
		}
	}()

	start := time.Now()
	s.logg.Info(jobCtx, "job start")
	err = runGuarded(jobCtx, job)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(name, elapsed)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(name)
		return err
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(name)
	return nil
}

// runGuarded turns a panicking job into a failed run so the lock is released
// and the scheduler keeps ticking.
func runGuarded(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// schedulerLogger routes robfig/cron's own messages (skipped overlapping
// ticks) into the service logger.
type schedulerLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (l schedulerLogger) Info(msg string, keysAndValues ...any) {
	l.logg.Debug(l.logg.WithFields(l.ctx, kvFields(keysAndValues)), msg)
}

func (l schedulerLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logg.Error(l.logg.WithFields(l.ctx, kvFields(keysAndValues)), msg, err)
}

func kvFields(kv []any) map[string]any {
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
