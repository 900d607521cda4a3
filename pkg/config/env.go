package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageBackendMemory = "memory"
	StorageBackendBolt   = "bolt"
	StorageBackendRedis  = "redis"
	StorageBackendSQL    = "sql"

	SQLDriverSQLite   = "sqlite"
	SQLDriverPostgres = "postgres"
)

const (
	EnvAppEnv           = "STOREFRONT_APP_ENV"
	EnvLogLevel         = "STOREFRONT_LOG_LEVEL"
	EnvStorageBackend   = "STOREFRONT_STORAGE_BACKEND"
	EnvStoragePrefix    = "STOREFRONT_STORAGE_PREFIX"
	EnvStorageSQLDriver = "STOREFRONT_STORAGE_SQL_DRIVER"
	EnvRedisURL         = "STOREFRONT_REDIS_URL"
	EnvRedisAddr        = "STOREFRONT_REDIS_ADDR"
	EnvAPIBaseURL       = "STOREFRONT_API_BASE_URL"
	EnvHistoryMax       = "STOREFRONT_HISTORY_MAX_ENTRIES"
	EnvTrackingInterval = "STOREFRONT_TRACKING_INTERVAL"
)
