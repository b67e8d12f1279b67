package config

const (
	EnvPrefix = "RENTALHUB"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "RENTALHUB_APP_ENV"
	EnvPort     = "RENTALHUB_APP_PORT"
	EnvLogLevel = "RENTALHUB_LOG_LEVEL"

	EnvDBDSN  = "RENTALHUB_DB_DSN"
	EnvDBHost = "RENTALHUB_DB_HOST"
	EnvDBUser = "RENTALHUB_DB_USER"
	EnvDBName = "RENTALHUB_DB_NAME"

	EnvRedisURL = "RENTALHUB_REDIS_URL"

	EnvJWTSecret = "RENTALHUB_JWT_SECRET"
	EnvJWTIssuer = "RENTALHUB_JWT_ISSUER"

	EnvGCPProjectID = "RENTALHUB_GCP_PROJECT_ID"

	EnvPubSubBookingTopic      = "RENTALHUB_PUBSUB_BOOKING_TOPIC"
	EnvPubSubNotificationTopic = "RENTALHUB_PUBSUB_NOTIFICATION_TOPIC"

	EnvStripeSecret        = "RENTALHUB_STRIPE_SECRET"
	EnvStripeWebhookSecret = "RENTALHUB_STRIPE_WEBHOOK_SECRET"

	EnvBookingCurrency       = "RENTALHUB_BOOKING_CURRENCY"
	EnvBookingReconcileBatch = "RENTALHUB_BOOKING_RECONCILE_BATCH_SIZE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
