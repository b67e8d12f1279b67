package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/rentalhub-backend/internal/app"
	"github.com/angelmondragon/rentalhub-backend/internal/cron"
	"github.com/angelmondragon/rentalhub-backend/pkg/config"
	"github.com/angelmondragon/rentalhub-backend/pkg/db"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/metrics"
	"github.com/angelmondragon/rentalhub-backend/pkg/migrate"
	"github.com/angelmondragon/rentalhub-backend/pkg/redis"
	"github.com/angelmondragon/rentalhub-backend/pkg/stripe"
)

const serviceKind = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return fmt.Errorf("bootstrap stripe: %w", err)
	}

	reg := metrics.NewWorkerRegistry()
	services, err := app.NewServices(app.ServicesParams{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Stripe:  stripeClient,
		Metrics: metrics.NewBookingMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	registry, err := app.NewJobRegistry(cfg, logg, dbClient, services)
	if err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		return fmt.Errorf("create cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("create cron service: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(logg.WithField(gctx, "jobs", len(registry.Entries())), "starting cron worker")
		return service.Run(gctx)
	})
	g.Go(func() error {
		return metrics.Serve(gctx, cfg.Service.MetricsAddr, reg, logg)
	})
	return g.Wait()
}

// lockKey scopes the job locks per environment.
func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("rh:cron-worker:lock:%s", env)
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
