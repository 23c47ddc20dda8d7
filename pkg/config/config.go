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
	JWT          JWTConfig
	Sync         SyncConfig
	Retention    RetentionConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BLOOMFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"BLOOMFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BLOOMFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BLOOMFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BLOOMFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BLOOMFLOW_DB_DSN"`
	Driver string `envconfig:"BLOOMFLOW_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BLOOMFLOW_DB_HOST"`
	Port     int    `envconfig:"BLOOMFLOW_DB_PORT" default:"5432"`
	User     string `envconfig:"BLOOMFLOW_DB_USER"`
	Password string `envconfig:"BLOOMFLOW_DB_PASSWORD"`
	Name     string `envconfig:"BLOOMFLOW_DB_NAME"`
	SSLMode  string `envconfig:"BLOOMFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BLOOMFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BLOOMFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BLOOMFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BLOOMFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BLOOMFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BLOOMFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"BLOOMFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"BLOOMFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BLOOMFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BLOOMFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BLOOMFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BLOOMFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BLOOMFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BLOOMFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BLOOMFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BLOOMFLOW_JWT_EXPIRATION_MINUTES" default:"60"`
}

// SyncConfig carries the tunables of the order-card synchronization engine.
// The lookback window must stay wide (minutes, not seconds): a narrow window
// silently drops cross-device updates when a client misses a few ticks.
type SyncConfig struct {
	PollInterval   time.Duration `envconfig:"BLOOMFLOW_SYNC_POLL_INTERVAL" default:"2s"`
	LookbackWindow time.Duration `envconfig:"BLOOMFLOW_SYNC_LOOKBACK_WINDOW" default:"5m"`
	ProtectionTTL  time.Duration `envconfig:"BLOOMFLOW_SYNC_PROTECTION_TTL" default:"10s"`
	ReorderWindow  time.Duration `envconfig:"BLOOMFLOW_SYNC_REORDER_WINDOW" default:"180ms"`
	IdempotencyTTL time.Duration `envconfig:"BLOOMFLOW_SYNC_IDEMPOTENCY_TTL" default:"24h"`
}

type RetentionConfig struct {
	MaxAgeDays int           `envconfig:"BLOOMFLOW_RETENTION_MAX_AGE_DAYS" default:"90"`
	Interval   time.Duration `envconfig:"BLOOMFLOW_RETENTION_INTERVAL" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"BLOOMFLOW_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersSubscription string `envconfig:"BLOOMFLOW_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BLOOMFLOW_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
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
