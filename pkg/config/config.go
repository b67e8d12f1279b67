package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Stripe        StripeConfig
	Booking       BookingConfig
	Sendgrid      SendgridConfig
	Notifications NotificationsConfig
	Outbox        OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Booking.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RENTALHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"RENTALHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"RENTALHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RENTALHUB_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"RENTALHUB_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"RENTALHUB_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RENTALHUB_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers serve /metrics. Empty disables
	// it; the API serves metrics on its own router.
	MetricsAddr string `envconfig:"RENTALHUB_WORKER_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"RENTALHUB_DB_DSN"`
	Driver string `envconfig:"RENTALHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RENTALHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"RENTALHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RENTALHUB_DB_USER"`
	LegacyPassword string `envconfig:"RENTALHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"RENTALHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"RENTALHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RENTALHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RENTALHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RENTALHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RENTALHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"RENTALHUB_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
	TxRetries          int           `envconfig:"RENTALHUB_DB_TX_RETRIES" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RENTALHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RENTALHUB_REDIS_ADDR"`
	Password     string        `envconfig:"RENTALHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"RENTALHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RENTALHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RENTALHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RENTALHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RENTALHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RENTALHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the access tokens minted by the identity provider.
// This service only verifies them.
type JWTConfig struct {
	Secret string `envconfig:"RENTALHUB_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"RENTALHUB_JWT_ISSUER" required:"true"`
	// Leeway absorbs clock skew between the identity provider and us.
	Leeway time.Duration `envconfig:"RENTALHUB_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"RENTALHUB_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"RENTALHUB_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"RENTALHUB_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RENTALHUB_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"RENTALHUB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RENTALHUB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BookingTopic             string `envconfig:"RENTALHUB_PUBSUB_BOOKING_TOPIC" default:"rh-booking-events"`
	PaymentTopic             string `envconfig:"RENTALHUB_PUBSUB_PAYMENT_TOPIC" default:"rh-payment-events"`
	NotificationTopic        string `envconfig:"RENTALHUB_PUBSUB_NOTIFICATION_TOPIC" default:"rh-notification-events"`
	NotificationSubscription string `envconfig:"RENTALHUB_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"rh-notification-email"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"RENTALHUB_STRIPE_API_KEY"`
	Secret         string        `envconfig:"RENTALHUB_STRIPE_SECRET"`
	WebhookSecret  string        `envconfig:"RENTALHUB_STRIPE_WEBHOOK_SECRET"`
	Env            string        `envconfig:"RENTALHUB_STRIPE_ENV" default:"test"`
	RequestTimeout time.Duration `envconfig:"RENTALHUB_STRIPE_REQUEST_TIMEOUT" default:"15s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// BookingConfig carries marketplace pricing knobs and the schedules of the
// booking maintenance jobs.
type BookingConfig struct {
	Currency            string `envconfig:"RENTALHUB_BOOKING_CURRENCY" default:"usd"`
	RentalStartSchedule string `envconfig:"RENTALHUB_BOOKING_RENTAL_START_SCHEDULE" default:"@every 15m"`
	EscrowReconcileSpec string `envconfig:"RENTALHUB_BOOKING_ESCROW_RECONCILE_SCHEDULE" default:"@every 1h"`
	RefundReconcileSpec string `envconfig:"RENTALHUB_BOOKING_REFUND_RECONCILE_SCHEDULE" default:"@every 10m"`
	MaintenanceSchedule string `envconfig:"RENTALHUB_BOOKING_MAINTENANCE_SCHEDULE" default:"@daily"`
	ReconcileBatchSize  int    `envconfig:"RENTALHUB_BOOKING_RECONCILE_BATCH_SIZE" default:"100"`

	IntentRateLimit  int           `envconfig:"RENTALHUB_BOOKING_INTENT_RATE_LIMIT" default:"10"`
	IntentRateWindow time.Duration `envconfig:"RENTALHUB_BOOKING_INTENT_RATE_WINDOW" default:"1m"`
}

func (b BookingConfig) validate() error {
	if len(strings.TrimSpace(b.Currency)) != 3 {
		return fmt.Errorf("%s must be a 3-letter ISO currency code", EnvBookingCurrency)
	}
	if b.ReconcileBatchSize <= 0 {
		return fmt.Errorf("%s must be positive", EnvBookingReconcileBatch)
	}
	return nil
}

type SendgridConfig struct {
	APIKey      string        `envconfig:"RENTALHUB_SENDGRID_API_KEY"`
	DefaultFrom string        `envconfig:"RENTALHUB_SENDGRID_FROM_EMAIL" default:"no-reply@rentalhub.app"`
	FromName    string        `envconfig:"RENTALHUB_SENDGRID_FROM_NAME" default:"RentalHub"`
	Timeout     time.Duration `envconfig:"RENTALHUB_SENDGRID_TIMEOUT" default:"10s"`
}

type NotificationsConfig struct {
	ReadRetention   time.Duration `envconfig:"RENTALHUB_NOTIFICATIONS_READ_RETENTION" default:"720h"`
	UnreadRetention time.Duration `envconfig:"RENTALHUB_NOTIFICATIONS_UNREAD_RETENTION" default:"2160h"`
}

type OutboxConfig struct {
	BatchSize       int           `envconfig:"RENTALHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS  int           `envconfig:"RENTALHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts     int           `envconfig:"RENTALHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PublishedMaxAge time.Duration `envconfig:"RENTALHUB_OUTBOX_PUBLISHED_MAX_AGE" default:"720h"`
	PublishTimeout  time.Duration `envconfig:"RENTALHUB_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
