package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/rentalhub-backend/api/controllers"
	bookingcontrollers "github.com/angelmondragon/rentalhub-backend/api/controllers/bookings"
	webhookcontrollers "github.com/angelmondragon/rentalhub-backend/api/controllers/webhooks"
	"github.com/angelmondragon/rentalhub-backend/api/middleware"
	"github.com/angelmondragon/rentalhub-backend/internal/bookings"
	"github.com/angelmondragon/rentalhub-backend/internal/inspections"
	"github.com/angelmondragon/rentalhub-backend/internal/notifications"
	"github.com/angelmondragon/rentalhub-backend/internal/payments"
	stripewebhook "github.com/angelmondragon/rentalhub-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/rentalhub-backend/pkg/config"
	"github.com/angelmondragon/rentalhub-backend/pkg/db"
	"github.com/angelmondragon/rentalhub-backend/pkg/enums"
	"github.com/angelmondragon/rentalhub-backend/pkg/logger"
	"github.com/angelmondragon/rentalhub-backend/pkg/redis"
	"github.com/angelmondragon/rentalhub-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	bookingService bookings.Service,
	paymentService payments.Service,
	inspectionService inspections.Service,
	notificationsService notifications.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	intentPolicy := middleware.NewRateLimitPolicy(
		"payment-intent",
		cfg.Booking.IntentRateWindow,
		cfg.Booking.IntentRateLimit,
	)
	idem, moneyIdem, intentLimit := passthrough, passthrough, passthrough
	if redisClient != nil {
		idem = middleware.Idempotency(redisClient, middleware.IdempotencyTTL, logg)
		moneyIdem = middleware.Idempotency(redisClient, middleware.MoneyIdempotencyTTL, logg)
		intentLimit = middleware.RateLimit(intentPolicy, redisClient, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessDeps(dbP, redisClient)))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	if stripeClient != nil && stripeWebhookService != nil && stripeWebhookGuard != nil {
		r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", bookingcontrollers.List(bookingService, logg))
			r.With(idem).Post("/", bookingcontrollers.Request(bookingService, logg))
			r.Route("/{bookingID}", func(r chi.Router) {
				r.Get("/", bookingcontrollers.Detail(bookingService, logg))
				r.Get("/events", bookingcontrollers.Events(bookingService, logg))
				r.With(intentLimit, moneyIdem).
					Post("/payment-intent", bookingcontrollers.CreatePaymentIntent(paymentService, logg))
				r.Get("/inspections", bookingcontrollers.ListInspections(inspectionService, logg))
				r.With(idem).Post("/inspections", bookingcontrollers.SubmitInspection(inspectionService, logg))
				r.With(idem).Post("/pickup-inspection/complete", bookingcontrollers.CompletePickupInspection(bookingService, logg))
				r.With(idem).Post("/start", bookingcontrollers.StartRental(bookingService, logg))
				r.With(idem).Post("/return", bookingcontrollers.InitiateReturn(bookingService, logg))
				r.With(idem).Post("/return-inspection/complete", bookingcontrollers.CompleteReturnInspection(bookingService, logg))
				r.With(moneyIdem).Post("/confirm", bookingcontrollers.OwnerConfirm(bookingService, logg))
				r.With(idem).Post("/damage", bookingcontrollers.ReportDamage(bookingService, logg))
				r.With(moneyIdem).Post("/cancel", bookingcontrollers.Cancel(bookingService, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.With(idem).Post("/{notificationID}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.With(idem).Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
			r.Route("/bookings/{bookingID}", func(r chi.Router) {
				r.Get("/", bookingcontrollers.Detail(bookingService, logg))
				r.With(idem).Post("/start", bookingcontrollers.StartRental(bookingService, logg))
				r.With(moneyIdem).Post("/resolve-dispute", bookingcontrollers.ResolveDispute(bookingService, logg))
			})
		})
	})

	return r
}

func passthrough(next http.Handler) http.Handler { return next }

func readinessDeps(dbP db.Pinger, redisClient *redis.Client) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{}
	if dbP != nil {
		deps["postgres"] = dbP
	}
	if redisClient != nil {
		deps["redis"] = redisClient
	}
	return deps
}
