package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/accounts/pkg/config"
	"github.com/utafrali/accounts/pkg/database"
	"github.com/utafrali/accounts/pkg/tracing"
)

const (
	ValidationLocal  = "local"
	ValidationRemote = "remote"

	minSecretLength = 32
)

// Config holds all configuration for the user service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort int `env:"USER_HTTP_PORT" envDefault:"3002"`

	DatabaseURL     string `env:"DATABASE_URL"`
	PostgresHost    string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort    int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser    string `env:"POSTGRES_USER" envDefault:"accounts"`
	PostgresPass    string `env:"POSTGRES_PASSWORD" envDefault:"accounts_secret"`
	PostgresDB      string `env:"POSTGRES_DB" envDefault:"accounts"`
	PostgresSSL     string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns      int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns      int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	SlowQueryMillis int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"0"`

	// Token validation. Local mode verifies with JWT_SECRET; remote mode
	// calls the auth service.
	ValidationMode   string        `env:"AUTH_VALIDATION_MODE" envDefault:"local"`
	JWTSecret        string        `env:"JWT_SECRET"`
	AuthServiceURL   string        `env:"AUTH_SERVICE_URL" envDefault:"http://localhost:3001"`
	AuthTimeout      time.Duration `env:"AUTH_SERVICE_TIMEOUT" envDefault:"3s"`
	AuthMaxRetries   int           `env:"AUTH_SERVICE_MAX_RETRIES" envDefault:"2"`
	AuthBreakerTrips uint32        `env:"AUTH_BREAKER_MIN_REQUESTS" envDefault:"5"`

	KafkaEnabled  bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	ConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"user-service"`

	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from the environment, after merging an optional
// .env file, and validates it.
func Load() (*Config, error) {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	}

	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.ValidationMode {
	case ValidationLocal:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_VALIDATION_MODE=%s", ValidationLocal)
		}
		if c.Environment != "development" && len(c.JWTSecret) < minSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d characters long, got %d", minSecretLength, len(c.JWTSecret))
		}
	case ValidationRemote:
		u, err := url.Parse(c.AuthServiceURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("AUTH_SERVICE_URL must be an absolute URL, got %q", c.AuthServiceURL)
		}
		if c.AuthTimeout <= 0 {
			return fmt.Errorf("AUTH_SERVICE_TIMEOUT must be positive")
		}
		if c.AuthMaxRetries < 0 {
			return fmt.Errorf("AUTH_SERVICE_MAX_RETRIES must not be negative")
		}
	default:
		return fmt.Errorf("AUTH_VALIDATION_MODE must be %q or %q, got %q", ValidationLocal, ValidationRemote, c.ValidationMode)
	}

	if c.KafkaEnabled && c.ConsumerGroup == "" {
		return fmt.Errorf("KAFKA_CONSUMER_GROUP is required when Kafka is enabled")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be within [0,1], got %v", c.OTELSampleRate)
	}
	return nil
}

// SlowQueryThreshold returns the slow query log threshold; zero disables it.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryMillis) * time.Millisecond
}

// Postgres returns the connection settings for database.NewPostgresPool.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		URL:      c.DatabaseURL,
		Host:     c.PostgresHost,
		Port:     c.PostgresPort,
		User:     c.PostgresUser,
		Password: c.PostgresPass,
		DBName:   c.PostgresDB,
		SSLMode:  c.PostgresSSL,
		MaxConns: c.DBMaxConns,
		MinConns: c.DBMinConns,
	}
}

// Tracing returns the OpenTelemetry settings.
func (c *Config) Tracing(serviceName string) tracing.Config {
	return tracing.Config{
		ServiceName:  serviceName,
		Environment:  c.Environment,
		OTLPEndpoint: c.OTELEndpoint,
		SampleRate:   c.OTELSampleRate,
		Enabled:      c.OTELEnabled,
	}
}
