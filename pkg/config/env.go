package config

// EnvPrefix scopes envconfig lookups; every field carries an explicit name anyway.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	GuestBackendDurable = "durable"
	GuestBackendSession = "session"
	GuestBackendMemory  = "memory"
)

const (
	EnvAppEnv             = "STOREFRONT_APP_ENV"
	EnvPort               = "STOREFRONT_APP_PORT"
	EnvLogLevel           = "STOREFRONT_LOG_LEVEL"
	EnvCORSOrigins        = "STOREFRONT_CORS_ORIGINS"
	EnvUpstreamBaseURL    = "STOREFRONT_UPSTREAM_BASE_URL"
	EnvUpstreamAssetOrig  = "STOREFRONT_UPSTREAM_ASSET_ORIGIN"
	EnvUpstreamTimeout    = "STOREFRONT_UPSTREAM_TIMEOUT"
	EnvDBDSN              = "STOREFRONT_DB_DSN"
	EnvDBDriver           = "STOREFRONT_DB_DRIVER"
	EnvRedisURL           = "STOREFRONT_REDIS_URL"
	EnvJWTSecret          = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer          = "STOREFRONT_JWT_ISSUER"
	EnvSessionIdleTTL     = "STOREFRONT_SESSION_IDLE_TTL"
	EnvGuestStoreBackends = "STOREFRONT_GUEST_STORE_BACKENDS"
	EnvGuestStoreTTL      = "STOREFRONT_GUEST_STORE_TTL"
)
