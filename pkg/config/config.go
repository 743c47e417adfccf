package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	CORS         CORSConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Gateway      GatewayConfig
	Storage      StorageConfig
	Email        EmailConfig
	Documents    DocumentsConfig
	Payouts      PayoutsConfig
	Checkout     CheckoutConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TINDAHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"TINDAHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TINDAHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TINDAHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TINDAHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TINDAHUB_DB_DSN"`
	Driver string `envconfig:"TINDAHUB_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TINDAHUB_DB_HOST"`
	Port     int    `envconfig:"TINDAHUB_DB_PORT" default:"5432"`
	User     string `envconfig:"TINDAHUB_DB_USER"`
	Password string `envconfig:"TINDAHUB_DB_PASSWORD"`
	Name     string `envconfig:"TINDAHUB_DB_NAME"`
	SSLMode  string `envconfig:"TINDAHUB_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"TINDAHUB_SQLITE_PATH" default:"tindahub.db"`

	MaxOpenConns    int           `envconfig:"TINDAHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TINDAHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TINDAHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TINDAHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TINDAHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TINDAHUB_REDIS_ADDR"`
	Password     string        `envconfig:"TINDAHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"TINDAHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TINDAHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TINDAHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TINDAHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TINDAHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TINDAHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TINDAHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TINDAHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TINDAHUB_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TINDAHUB_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TINDAHUB_AUTO_MIGRATE" default:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"TINDAHUB_CORS_ALLOWED_ORIGINS" default:"*"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"TINDAHUB_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"TINDAHUB_PUBSUB_DOMAIN_TOPIC" default:"th-domain-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"TINDAHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"TINDAHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"TINDAHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"TINDAHUB_OUTBOX_RETENTION" default:"720h"`
}

// GatewayConfig holds the payment gateway webhook settings.
type GatewayConfig struct {
	WebhookSecret      string        `envconfig:"TINDAHUB_GATEWAY_WEBHOOK_SECRET"`
	SignatureTolerance time.Duration `envconfig:"TINDAHUB_GATEWAY_SIGNATURE_TOLERANCE" default:"5m"`
	IdempotencyTTL     time.Duration `envconfig:"TINDAHUB_GATEWAY_IDEMPOTENCY_TTL" default:"168h"`
}

// StorageConfig points at an S3 compatible bucket (AWS S3, Cloudflare R2, MinIO).
type StorageConfig struct {
	Endpoint        string `envconfig:"TINDAHUB_STORAGE_ENDPOINT"`
	Region          string `envconfig:"TINDAHUB_STORAGE_REGION" default:"auto"`
	AccessKeyID     string `envconfig:"TINDAHUB_STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"TINDAHUB_STORAGE_SECRET_ACCESS_KEY"`
	Bucket          string `envconfig:"TINDAHUB_STORAGE_BUCKET"`
	PublicBaseURL   string `envconfig:"TINDAHUB_STORAGE_PUBLIC_BASE_URL"`
}

func (s StorageConfig) Enabled() bool {
	return s.Bucket != "" && s.AccessKeyID != "" && s.SecretAccessKey != ""
}

type EmailConfig struct {
	SMTPHost     string `envconfig:"TINDAHUB_SMTP_HOST"`
	SMTPPort     int    `envconfig:"TINDAHUB_SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"TINDAHUB_SMTP_USERNAME"`
	SMTPPassword string `envconfig:"TINDAHUB_SMTP_PASSWORD"`
	From         string `envconfig:"TINDAHUB_EMAIL_FROM" default:"payouts@tindahub.local"`
}

func (e EmailConfig) Enabled() bool {
	return e.SMTPHost != "" && e.From != ""
}

type DocumentsConfig struct {
	PDFEnabled bool          `envconfig:"TINDAHUB_PDF_ENABLED" default:"true"`
	PDFTimeout time.Duration `envconfig:"TINDAHUB_PDF_TIMEOUT" default:"30s"`
}

type PayoutsConfig struct {
	CronInterval time.Duration `envconfig:"TINDAHUB_PAYOUT_CRON_INTERVAL" default:"1h"`
	LockTTL      time.Duration `envconfig:"TINDAHUB_PAYOUT_LOCK_TTL" default:"25h"`
}

// CheckoutConfig prices shipping and bounds how long a pending checkout may be paid.
type CheckoutConfig struct {
	ShippingFee decimal.Decimal `envconfig:"TINDAHUB_CHECKOUT_SHIPPING_FEE" default:"50.00"`
	SessionTTL  time.Duration   `envconfig:"TINDAHUB_CHECKOUT_SESSION_TTL" default:"30m"`
}

// RateLimitConfig throttles the checkout and gateway webhook surfaces.
type RateLimitConfig struct {
	Window          time.Duration `envconfig:"TINDAHUB_RATE_LIMIT_WINDOW" default:"1m"`
	CheckoutPerUser int           `envconfig:"TINDAHUB_RATE_LIMIT_CHECKOUT_PER_USER" default:"10"`
	CheckoutPerIP   int           `envconfig:"TINDAHUB_RATE_LIMIT_CHECKOUT_PER_IP" default:"60"`
	WebhookPerIP    int           `envconfig:"TINDAHUB_RATE_LIMIT_WEBHOOK_PER_IP" default:"600"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = db.SQLitePath
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
