// Package app assembles the booking service graph shared by the binaries.
package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/rentalhub-backend/internal/availability"
	"github.com/angelmondragon/rentalhub-backend/internal/bookings"
	"github.com/angelmondragon/rentalhub-backend/internal/inspections"
	"github.com/angelmondragon/rentalhub-backend/internal/ledger"
	"github.com/angelmondragon/rentalhub-backend/internal/notifications"
	"github.com/angelmondragon/rentalhub-backend/internal/payments"
	stripewebhook "github.com/angelmondragon/rentalhub-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/rentalhub-backend/pkg/config"
	"github.com/angelmondragon/rentalhub-backend/pkg/db"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/metrics"
	"github.com/angelmondragon/rentalhub-backend/pkg/outbox"
	"github.com/angelmondragon/rentalhub-backend/pkg/redis"
	"github.com/angelmondragon/rentalhub-backend/pkg/stripe"
)

const webhookScope = "stripe"

type ServicesParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Redis   *redis.Client
	Stripe  *stripe.Client
	Metrics *metrics.BookingMetrics
}

// Services is the wired booking domain. Webhook and WebhookGuard are nil
// when no redis client was supplied.
type Services struct {
	Bookings      bookings.Service
	BookingRepo   bookings.Repository
	Payments      payments.Service
	Ledger        ledger.Service
	Inspections   inspections.Service
	Notifications notifications.Service
	Notifier      *notifications.Sink
	Outbox        *outbox.Service
	Webhook       *stripewebhook.Service
	WebhookGuard  *stripewebhook.IdempotencyGuard
}

func NewServices(params ServicesParams) (*Services, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Stripe == nil {
		return nil, errors.New("stripe client is required")
	}

	conn := params.DB.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), params.Logger)

	gateway, err := payments.NewStripeGateway(params.Stripe)
	if err != nil {
		return nil, fmt.Errorf("stripe gateway: %w", err)
	}
	checker, err := availability.NewChecker(conn)
	if err != nil {
		return nil, fmt.Errorf("availability checker: %w", err)
	}

	notificationRepo := notifications.NewRepository(conn)
	sink, err := notifications.NewSink(notificationRepo, params.DB, outboxSvc, params.Logger)
	if err != nil {
		return nil, fmt.Errorf("notification sink: %w", err)
	}
	notificationSvc, err := notifications.NewService(notificationRepo)
	if err != nil {
		return nil, fmt.Errorf("notification service: %w", err)
	}

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:     ledger.NewRepository(conn),
		Tx:       params.DB,
		Outbox:   outboxSvc,
		Refunder: gateway,
		Logger:   params.Logger,
		Now:      time.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	bookingRepo := bookings.NewRepository(conn)
	inspectionSvc, err := inspections.NewService(inspections.NewRepository(conn), bookingRepo, time.Now)
	if err != nil {
		return nil, fmt.Errorf("inspection service: %w", err)
	}

	bookingSvc, err := bookings.NewService(bookings.ServiceParams{
		Repo:         bookingRepo,
		Tx:           params.DB,
		Outbox:       outboxSvc,
		Inspections:  inspectionSvc,
		Escrow:       ledgerSvc,
		Notifier:     sink,
		Availability: checker,
		Metrics:      params.Metrics,
		Logger:       params.Logger,
		Now:          time.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("booking service: %w", err)
	}

	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Bookings:     bookingRepo,
		Transitions:  bookingSvc,
		Ledger:       ledgerSvc,
		Availability: checker,
		Gateway:      gateway,
		Notifier:     sink,
		Metrics:      params.Metrics,
		Logger:       params.Logger,
		Currency:     params.Config.Booking.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("payment service: %w", err)
	}

	services := &Services{
		Bookings:      bookingSvc,
		BookingRepo:   bookingRepo,
		Payments:      paymentSvc,
		Ledger:        ledgerSvc,
		Inspections:   inspectionSvc,
		Notifications: notificationSvc,
		Notifier:      sink,
		Outbox:        outboxSvc,
	}

	if params.Redis != nil {
		webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
			Payments: paymentSvc,
			Logger:   params.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("stripe webhook service: %w", err)
		}
		guard, err := stripewebhook.NewIdempotencyGuard(params.Redis, params.Config.Eventing.OutboxIdempotencyTTL, webhookScope)
		if err != nil {
			return nil, fmt.Errorf("stripe webhook guard: %w", err)
		}
		services.Webhook = webhookSvc
		services.WebhookGuard = guard
	}

	return services, nil
}
