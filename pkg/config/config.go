package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App        AppConfig
	Upstream   UpstreamConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Session    SessionConfig
	GuestStore GuestStoreConfig
	RateLimit  RateLimitConfig
	Cron       CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Upstream.validate(); err != nil {
		return nil, err
	}
	if err := cfg.DB.validate(); err != nil {
		return nil, err
	}
	if err := cfg.GuestStore.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MigrateConfig is the slice of configuration the migrate command needs. It
// skips the upstream and JWT settings the API requires.
type MigrateConfig struct {
	Env       string `envconfig:"STOREFRONT_APP_ENV" default:"dev"`
	LogLevel  string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	DB        DBConfig
}

func LoadMigrate() (*MigrateConfig, error) {
	var cfg MigrateConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing migrate config: %w", err)
	}
	if err := cfg.DB.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// UpstreamConfig points at the commerce API the session service proxies for authenticated visitors.
type UpstreamConfig struct {
	BaseURL     string        `envconfig:"STOREFRONT_UPSTREAM_BASE_URL" required:"true"`
	AssetOrigin string        `envconfig:"STOREFRONT_UPSTREAM_ASSET_ORIGIN"`
	Timeout     time.Duration `envconfig:"STOREFRONT_UPSTREAM_TIMEOUT" default:"10s"`
}

// ImageOrigin is the origin relative image paths are qualified against.
// It defaults to the scheme and host of the upstream base URL.
func (u UpstreamConfig) ImageOrigin() string {
	if origin := strings.TrimSpace(u.AssetOrigin); origin != "" {
		return strings.TrimRight(origin, "/")
	}
	parsed, err := url.Parse(u.BaseURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

func (u UpstreamConfig) validate() error {
	parsed, err := url.Parse(strings.TrimSpace(u.BaseURL))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", EnvUpstreamBaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url", EnvUpstreamBaseURL)
	}
	return nil
}

// DBConfig configures the durable guest store. An empty DSN disables it.
type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	AutoMigrate     bool          `envconfig:"STOREFRONT_DB_AUTO_MIGRATE" default:"false"`
}

// Enabled reports whether a durable database was configured.
func (db DBConfig) Enabled() bool {
	return strings.TrimSpace(db.DSN) != ""
}

func (db DBConfig) validate() error {
	switch strings.ToLower(db.Driver) {
	case DBDriverPostgres, DBDriverSQLite:
		return nil
	}
	return fmt.Errorf("%s must be one of %s, %s", EnvDBDriver, DBDriverPostgres, DBDriverSQLite)
}

// RedisConfig configures the session-scoped guest store and the cron lock.
// Leaving both URL and Address empty disables Redis.
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

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// JWTConfig verifies customer access tokens issued by the commerce API.
type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER"`
}

type SessionConfig struct {
	CookieName    string        `envconfig:"STOREFRONT_SESSION_COOKIE" default:"sf_session"`
	CookieSecure  bool          `envconfig:"STOREFRONT_SESSION_COOKIE_SECURE" default:"true"`
	IdleTTL       time.Duration `envconfig:"STOREFRONT_SESSION_IDLE_TTL" default:"30m"`
	SweepEvery    time.Duration `envconfig:"STOREFRONT_SESSION_SWEEP_INTERVAL" default:"1m"`
	Notifications int           `envconfig:"STOREFRONT_SESSION_NOTIFICATION_BUFFER" default:"20"`
}

// GuestStoreConfig ranks the guest list backends and bounds their lifetime.
type GuestStoreConfig struct {
	Backends  []string      `envconfig:"STOREFRONT_GUEST_STORE_BACKENDS" default:"durable,session,memory"`
	TTL       time.Duration `envconfig:"STOREFRONT_GUEST_STORE_TTL" default:"168h"`
	Retention time.Duration `envconfig:"STOREFRONT_GUEST_RETENTION" default:"720h"`
}

func (g GuestStoreConfig) validate() error {
	if len(g.Backends) == 0 {
		return fmt.Errorf("%s must list at least one backend", EnvGuestStoreBackends)
	}
	for _, name := range g.Backends {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case GuestBackendDurable, GuestBackendSession, GuestBackendMemory:
		default:
			return fmt.Errorf("unknown guest store backend %q", name)
		}
	}
	return nil
}

// RateLimitConfig throttles promo code attempts. A zero window disables it.
// TrustForwardedFor should only be set behind a proxy that rewrites
// X-Forwarded-For.
type RateLimitConfig struct {
	PromoWindow       time.Duration `envconfig:"STOREFRONT_PROMO_RATE_WINDOW" default:"10m"`
	PromoIPLimit      int           `envconfig:"STOREFRONT_PROMO_RATE_IP_LIMIT" default:"30"`
	PromoSessionLimit int           `envconfig:"STOREFRONT_PROMO_RATE_SESSION_LIMIT" default:"10"`
	TrustForwardedFor bool          `envconfig:"STOREFRONT_PROMO_RATE_TRUST_FORWARDED_FOR" default:"false"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"24h"`
}
