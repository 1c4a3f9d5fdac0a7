package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Procurement  ProcurementConfig
	Archival     ArchivalConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Procurement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env             string        `envconfig:"PROCUREMENT_APP_ENV" required:"true"`
	Port            string        `envconfig:"PROCUREMENT_APP_PORT" required:"true"`
	LogLevel        string        `envconfig:"PROCUREMENT_LOG_LEVEL" default:"info"`
	LogWarnStack    bool          `envconfig:"PROCUREMENT_LOG_WARN_STACK" default:"false"`
	CORSOrigins     []string      `envconfig:"PROCUREMENT_CORS_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"PROCUREMENT_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"PROCUREMENT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PROCUREMENT_DB_DSN"`
	Driver string `envconfig:"PROCUREMENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PROCUREMENT_DB_HOST"`
	LegacyPort     int    `envconfig:"PROCUREMENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PROCUREMENT_DB_USER"`
	LegacyPassword string `envconfig:"PROCUREMENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"PROCUREMENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"PROCUREMENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PROCUREMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PROCUREMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PROCUREMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PROCUREMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"PROCUREMENT_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

// IsSQLite reports whether the configured driver is sqlite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"PROCUREMENT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PROCUREMENT_REDIS_ADDR"`
	Password     string        `envconfig:"PROCUREMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"PROCUREMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PROCUREMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PROCUREMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PROCUREMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PROCUREMENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PROCUREMENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PROCUREMENT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	HTTPIdempotencyTTL    time.Duration `envconfig:"PROCUREMENT_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
	PaymentIdempotencyTTL time.Duration `envconfig:"PROCUREMENT_EVENTING_PAYMENT_IDEMPOTENCY_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"PROCUREMENT_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"PROCUREMENT_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	PurchaseOrdersTopic string `envconfig:"PROCUREMENT_PUBSUB_PURCHASE_ORDERS_TOPIC" default:"purchase-order-events"`
	PaymentsTopic       string `envconfig:"PROCUREMENT_PUBSUB_PAYMENTS_TOPIC" default:"purchase-order-payments"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PROCUREMENT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PROCUREMENT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PROCUREMENT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"PROCUREMENT_OUTBOX_RETENTION_DAYS" default:"30"`
	RetentionBatch int `envconfig:"PROCUREMENT_OUTBOX_RETENTION_BATCH_SIZE" default:"1000"`
}

// ProcurementConfig tunes the purchase order engine.
type ProcurementConfig struct {
	CompletionPaymentPolicy string        `envconfig:"PROCUREMENT_COMPLETION_PAYMENT_POLICY" default:"fully_paid"`
	OperationTimeout        time.Duration `envconfig:"PROCUREMENT_OPERATION_TIMEOUT" default:"10s"`
	OrderMaxRetries         int           `envconfig:"PROCUREMENT_ORDER_MAX_RETRIES" default:"3"`
	DefaultCurrency         string        `envconfig:"PROCUREMENT_DEFAULT_CURRENCY" default:"TZS"`
}

func (p ProcurementConfig) validate() error {
	switch strings.TrimSpace(p.CompletionPaymentPolicy) {
	case PaymentPolicyFullyPaid, PaymentPolicyOptional:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvCompletionPaymentPolicy, PaymentPolicyFullyPaid, PaymentPolicyOptional)
	}
	if p.OrderMaxRetries < 0 {
		return fmt.Errorf("%s must not be negative", EnvOrderMaxRetries)
	}
	return nil
}

type ArchivalConfig struct {
	CancelledRetentionDays int           `envconfig:"PROCUREMENT_ARCHIVE_CANCELLED_AFTER_DAYS" default:"90"`
	BatchSize              int           `envconfig:"PROCUREMENT_ARCHIVE_BATCH_SIZE" default:"200"`
	CronInterval           time.Duration `envconfig:"PROCUREMENT_CRON_INTERVAL" default:"24h"`
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
