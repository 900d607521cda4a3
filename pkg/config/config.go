package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Storage   StorageConfig
	Redis     RedisConfig
	API       APIConfig
	Profile   ProfileConfig
	History   HistoryConfig
	Cart      CartConfig
	Retention RetentionConfig
	Tracking  TrackingConfig
	Ops       OpsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	if cfg.Storage.Backend == StorageBackendRedis && cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		return nil, fmt.Errorf("%s or %s is required for the redis storage backend", EnvRedisURL, EnvRedisAddr)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type StorageConfig struct {
	Backend    string `envconfig:"STOREFRONT_STORAGE_BACKEND" default:"bolt"`
	Prefix     string `envconfig:"STOREFRONT_STORAGE_PREFIX" default:"storefront"`
	BoltPath   string `envconfig:"STOREFRONT_STORAGE_BOLT_PATH" default:"storefront.db"`
	SQLDriver  string `envconfig:"STOREFRONT_STORAGE_SQL_DRIVER" default:"sqlite"`
	SQLDSN     string `envconfig:"STOREFRONT_STORAGE_SQL_DSN" default:"storefront.sqlite"`
	QuotaBytes int64  `envconfig:"STOREFRONT_STORAGE_QUOTA_BYTES" default:"5242880"`
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(s.Backend) {
	case StorageBackendMemory, StorageBackendBolt, StorageBackendRedis:
	case StorageBackendSQL:
		switch strings.ToLower(s.SQLDriver) {
		case SQLDriverSQLite, SQLDriverPostgres:
		default:
			return fmt.Errorf("unsupported %s %q", EnvStorageSQLDriver, s.SQLDriver)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvStorageBackend, s.Backend)
	}
	if strings.TrimSpace(s.Prefix) == "" {
		return fmt.Errorf("%s must not be empty", EnvStoragePrefix)
	}
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type APIConfig struct {
	BaseURL   string        `envconfig:"STOREFRONT_API_BASE_URL" default:"http://localhost:8080/api/v1"`
	Timeout   time.Duration `envconfig:"STOREFRONT_API_TIMEOUT" default:"10s"`
	UserAgent string        `envconfig:"STOREFRONT_API_USER_AGENT" default:"storefront-cli"`
}

type ProfileConfig struct {
	Retention       time.Duration `envconfig:"STOREFRONT_PROFILE_RETENTION" default:"720h"`
	LegacyRetention time.Duration `envconfig:"STOREFRONT_PROFILE_LEGACY_RETENTION" default:"168h"`
	InstallSalt     string        `envconfig:"STOREFRONT_PROFILE_INSTALL_SALT" default:"storefront-local-profile-v2"`
	KDFIterations   int           `envconfig:"STOREFRONT_PROFILE_KDF_ITERATIONS" default:"100000"`
}

type HistoryConfig struct {
	MaxEntries    int           `envconfig:"STOREFRONT_HISTORY_MAX_ENTRIES" default:"50"`
	Retention     time.Duration `envconfig:"STOREFRONT_HISTORY_RETENTION" default:"2160h"`
	TokenValidity time.Duration `envconfig:"STOREFRONT_HISTORY_TOKEN_VALIDITY" default:"168h"`
}

type CartConfig struct {
	MarketMaxLines      int `envconfig:"STOREFRONT_CART_MARKET_MAX_LINES" default:"50"`
	MarketMaxQtyPerLine int `envconfig:"STOREFRONT_CART_MARKET_MAX_QTY_PER_LINE" default:"99"`
}

type RetentionConfig struct {
	RunInterval   time.Duration `envconfig:"STOREFRONT_RETENTION_RUN_INTERVAL" default:"24h"`
	CheckInterval time.Duration `envconfig:"STOREFRONT_RETENTION_CHECK_INTERVAL" default:"1h"`
	LockTTL       time.Duration `envconfig:"STOREFRONT_RETENTION_LOCK_TTL" default:"10m"`
}

type TrackingConfig struct {
	Interval     time.Duration `envconfig:"STOREFRONT_TRACKING_INTERVAL" default:"30s"`
	StartupDelay time.Duration `envconfig:"STOREFRONT_TRACKING_STARTUP_DELAY" default:"5s"`
	MinBackoff   time.Duration `envconfig:"STOREFRONT_TRACKING_MIN_BACKOFF" default:"30s"`
	MaxBackoff   time.Duration `envconfig:"STOREFRONT_TRACKING_MAX_BACKOFF" default:"10m"`
}

type OpsConfig struct {
	ListenAddr string `envconfig:"STOREFRONT_OPS_LISTEN_ADDR" default:":9090"`
}
