package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/tastybites/storefront/pkg/config"
	"github.com/tastybites/storefront/pkg/database"
)

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Version     string `env:"SERVICE_VERSION" envDefault:"0.1.0"`

	// HTTP server
	HTTPPort           int      `env:"CART_HTTP_PORT" envDefault:"8003"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	SecureCookies      bool     `env:"SECURE_COOKIES" envDefault:"false"`

	// Remote cart record store (PostgreSQL)
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"storefront"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"storefront"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	PostgresMaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	SlowQueryMS      int    `env:"DB_SLOW_QUERY_MS" envDefault:"200"`

	// Local durable storage: "redis" or "memory"
	LocalStorage    string `env:"LOCAL_STORAGE" envDefault:"redis"`
	RedisAddr       string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass       string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	LocalCartTTLHrs int    `env:"LOCAL_CART_TTL_HOURS" envDefault:"720"`

	// Kafka; an empty broker list disables events and the order consumer.
	KafkaBrokers    []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaOrderGroup string   `env:"KAFKA_ORDER_GROUP" envDefault:"cart-service"`

	// Identity provider
	JWTSecret string `env:"JWT_SECRET,required"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:""`

	// Sessions and sync
	SessionIdleMinutes int `env:"SESSION_IDLE_TIMEOUT_MINUTES" envDefault:"30"`
	SyncTimeoutSeconds int `env:"CART_SYNC_TIMEOUT_SECONDS" envDefault:"5"`

	// Circuit breaker around the remote cart record store
	BreakerMaxFailures  uint32 `env:"REMOTE_BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerOpenSeconds  int    `env:"REMOTE_BREAKER_OPEN_SECONDS" envDefault:"30"`
	BreakerHalfOpenReqs uint32 `env:"REMOTE_BREAKER_HALF_OPEN_REQUESTS" envDefault:"1"`

	// Sign-in rate limit (per client IP)
	SignInRateRPS   float64 `env:"SIGNIN_RATE_RPS" envDefault:"1"`
	SignInRateBurst int     `env:"SIGNIN_RATE_BURST" envDefault:"5"`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Profiling
	PprofEnabled      bool     `env:"PPROF_ENABLED" envDefault:"false"`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.LocalStorage != "redis" && c.LocalStorage != "memory" {
		return fmt.Errorf("invalid LOCAL_STORAGE %q: must be redis or memory", c.LocalStorage)
	}
	if c.LocalCartTTLHrs < 1 {
		return fmt.Errorf("invalid LOCAL_CART_TTL_HOURS: %d", c.LocalCartTTLHrs)
	}
	if c.SessionIdleMinutes < 1 {
		return fmt.Errorf("invalid SESSION_IDLE_TIMEOUT_MINUTES: %d", c.SessionIdleMinutes)
	}
	if c.SyncTimeoutSeconds < 1 {
		return fmt.Errorf("invalid CART_SYNC_TIMEOUT_SECONDS: %d", c.SyncTimeoutSeconds)
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("invalid OTEL_SAMPLE_RATE %v: must be within [0, 1]", c.OTELSampleRate)
	}
	if c.SignInRateRPS <= 0 || c.SignInRateBurst < 1 {
		return fmt.Errorf("invalid sign-in rate limit: %v rps, burst %d", c.SignInRateRPS, c.SignInRateBurst)
	}
	return nil
}

// Postgres returns the connection settings for the remote cart record store.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPassword,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSLMode,
		MaxConns:        c.PostgresMaxConns,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 15 * time.Minute,
	}
}

// Redis returns the connection settings for local durable storage.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPass, DB: c.RedisDB}
}

// LocalCartTTL is how long an untouched session's local cart survives.
func (c *Config) LocalCartTTL() time.Duration {
	return time.Duration(c.LocalCartTTLHrs) * time.Hour
}

// SessionIdleTimeout is how long a session may sit idle before eviction.
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// SyncTimeout bounds every remote cart fetch and upsert.
func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.SyncTimeoutSeconds) * time.Second
}

// BreakerOpenTimeout is how long the breaker stays open before probing.
func (c *Config) BreakerOpenTimeout() time.Duration {
	return time.Duration(c.BreakerOpenSeconds) * time.Second
}

// SlowQueryThreshold is the duration above which queries are logged.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMS) * time.Millisecond
}
