package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/rentalhub-backend/internal/app"
	"github.com/angelmondragon/rentalhub-backend/pkg/config"
	"github.com/angelmondragon/rentalhub-backend/pkg/db"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/metrics"
	"github.com/angelmondragon/rentalhub-backend/pkg/redis"
	"github.com/angelmondragon/rentalhub-backend/pkg/stripe"
)

const (
	flagEnvFile = "env-file"
	serviceName = "rentalctl"
)

// runtime lazily opens the resources a subcommand asks for and closes
// whatever was opened once the command finishes.
type runtime struct {
	envFile string

	cfg   *config.Config
	logg  *logger.Logger
	db    *db.Client
	redis *redis.Client
}

func (rt *runtime) config() (*config.Config, error) {
	if rt.cfg != nil {
		return rt.cfg, nil
	}
	if rt.envFile != "" {
		if err := godotenv.Load(rt.envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", rt.envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Service.Kind = serviceName
	rt.cfg = cfg
	rt.logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	return cfg, nil
}

func (rt *runtime) logger() *logger.Logger {
	if rt.logg == nil {
		rt.logg = logger.New(logger.Options{ServiceName: serviceName})
	}
	return rt.logg
}

func (rt *runtime) database(ctx context.Context) (*db.Client, error) {
	if rt.db != nil {
		return rt.db, nil
	}
	cfg, err := rt.config()
	if err != nil {
		return nil, err
	}
	client, err := db.New(ctx, cfg.DB, rt.logger())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	rt.db = client
	return client, nil
}

func (rt *runtime) redisClient(ctx context.Context) (*redis.Client, error) {
	if rt.redis != nil {
		return rt.redis, nil
	}
	cfg, err := rt.config()
	if err != nil {
		return nil, err
	}
	client, err := redis.New(ctx, cfg.Redis, rt.logger())
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	rt.redis = client
	return client, nil
}

func (rt *runtime) services(ctx context.Context) (*app.Services, error) {
	cfg, err := rt.config()
	if err != nil {
		return nil, err
	}
	dbClient, err := rt.database(ctx)
	if err != nil {
		return nil, err
	}
	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, rt.logger())
	if err != nil {
		return nil, fmt.Errorf("stripe: %w", err)
	}
	return app.NewServices(app.ServicesParams{
		Config:  cfg,
		Logger:  rt.logger(),
		DB:      dbClient,
		Stripe:  stripeClient,
		Metrics: metrics.NewBookingMetrics(nil),
	})
}

func (rt *runtime) close(ctx context.Context) {
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.logger().Error(ctx, "error closing redis", err)
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.logger().Error(ctx, "error closing database", err)
		}
	}
}

func openSQL(cmd *cobra.Command, rt *runtime) (*sql.DB, error) {
	client, err := rt.database(cmd.Context())
	if err != nil {
		return nil, err
	}
	return client.DB().DB()
}
