package app

import (
	"fmt"

	"github.com/angelmondragon/rentalhub-backend/internal/cron"
	"github.com/angelmondragon/rentalhub-backend/internal/notifications"
	"github.com/angelmondragon/rentalhub-backend/pkg/config"
	"github.com/angelmondragon/rentalhub-backend/pkg/db"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox"
)

// NewJobRegistry registers every scheduled booking job on its configured
// schedule.
func NewJobRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, services *Services) (*cron.Registry, error) {
	if cfg == nil || logg == nil || dbClient == nil || services == nil {
		return nil, fmt.Errorf("config, logger, db and services required")
	}
	batch := cfg.Booking.ReconcileBatchSize

	rentalStart, err := cron.NewRentalStartJob(cron.RentalStartJobParams{
		Logger:    logg,
		Bookings:  services.Bookings,
		BatchSize: batch,
	})
	if err != nil {
		return nil, err
	}
	escrow, err := cron.NewEscrowReconcileJob(cron.EscrowReconcileJobParams{
		Logger:    logg,
		Ledger:    services.Ledger,
		Bookings:  services.Bookings,
		BatchSize: batch,
	})
	if err != nil {
		return nil, err
	}
	refunds, err := cron.NewRefundReconcileJob(cron.RefundReconcileJobParams{
		Logger:    logg,
		Ledger:    services.Ledger,
		BatchSize: batch,
	})
	if err != nil {
		return nil, err
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:          logg,
		DB:              dbClient,
		Repository:      notifications.NewRepository(dbClient.DB()),
		ReadRetention:   cfg.Notifications.ReadRetention,
		UnreadRetention: cfg.Notifications.UnreadRetention,
	})
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Outbox.PublishedMaxAge,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	entries := []cron.Entry{
		{Spec: cfg.Booking.RentalStartSchedule, Job: rentalStart},
		{Spec: cfg.Booking.EscrowReconcileSpec, Job: escrow},
		{Spec: cfg.Booking.RefundReconcileSpec, Job: refunds},
		{Spec: cfg.Booking.MaintenanceSchedule, Job: notificationCleanup},
		{Spec: cfg.Booking.MaintenanceSchedule, Job: outboxRetention},
	}
	for _, entry := range entries {
		if err := registry.Register(entry.Spec, entry.Job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
