// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	pstrings "crummey/pkg/platform/strings"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Config captures every setting the server reads at startup.
//
// Empty DatabaseURL, RedisURL, KafkaBrokers or SMTPURL select the in-process
// fallback for that concern (memory stores, memory limiter, no audit stream,
// logging dispatcher).
type Config struct {
	Addr        string `mapstructure:"CRUMMEY_ADDR"`
	Environment string `mapstructure:"ENVIRONMENT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`

	RedisURL          string        `mapstructure:"REDIS_URL"`
	RedisPoolSize     int           `mapstructure:"REDIS_POOL_SIZE"`
	RedisMinIdleConns int           `mapstructure:"REDIS_MIN_IDLE_CONNS"`
	RedisDialTimeout  time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`
	RedisIOTimeout    time.Duration `mapstructure:"REDIS_IO_TIMEOUT"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	AuditTopic   string   `mapstructure:"AUDIT_TOPIC"`
	AuditBuffer  int      `mapstructure:"AUDIT_BUFFER"`

	JWTSigningKey string `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	JWTAudience   string `mapstructure:"JWT_AUDIENCE"`

	AppURL          string        `mapstructure:"APP_URL"`
	SMTPURL         string        `mapstructure:"SMTP_URL"`
	DispatchTimeout time.Duration `mapstructure:"DISPATCH_TIMEOUT"`
	SendConcurrency int           `mapstructure:"SEND_CONCURRENCY"`

	ReminderSchedule   string `mapstructure:"REMINDER_SCHEDULE"`
	ReminderWindowDays int    `mapstructure:"REMINDER_WINDOW_DAYS"`

	WebhookSecretHash string `mapstructure:"WEBHOOK_SECRET_HASH"`

	AckRateLimit  int           `mapstructure:"ACK_RATE_LIMIT"`
	AckRateWindow time.Duration `mapstructure:"ACK_RATE_WINDOW"`

	CORSAllowedOrigins []string      `mapstructure:"CORS_ALLOWED_ORIGINS"`
	ShutdownTimeout    time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

// RedisConfig is the subset of Config used to build the Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) Redis() RedisConfig {
	return RedisConfig{
		URL:          c.RedisURL,
		PoolSize:     c.RedisPoolSize,
		MinIdleConns: c.RedisMinIdleConns,
		DialTimeout:  c.RedisDialTimeout,
		ReadTimeout:  c.RedisIOTimeout,
		WriteTimeout: c.RedisIOTimeout,
	}
}

// IsProduction reports whether the service runs with production guards.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("CRUMMEY_ADDR", ":8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_IO_TIMEOUT", 3*time.Second)
	v.SetDefault("KAFKA_BROKERS", []string{})
	v.SetDefault("AUDIT_TOPIC", "crummey.audit")
	v.SetDefault("AUDIT_BUFFER", 256)
	v.SetDefault("JWT_SIGNING_KEY", devSigningKey)
	v.SetDefault("JWT_ISSUER", "crummey")
	v.SetDefault("JWT_AUDIENCE", "crummey-api")
	v.SetDefault("APP_URL", "http://localhost:8080")
	v.SetDefault("SMTP_URL", "")
	v.SetDefault("DISPATCH_TIMEOUT", 30*time.Second)
	v.SetDefault("SEND_CONCURRENCY", 4)
	v.SetDefault("REMINDER_SCHEDULE", "0 9 * * *")
	v.SetDefault("REMINDER_WINDOW_DAYS", 7)
	v.SetDefault("WEBHOOK_SECRET_HASH", "")
	v.SetDefault("ACK_RATE_LIMIT", 20)
	v.SetDefault("ACK_RATE_WINDOW", time.Minute)
	v.SetDefault("CORS_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
}

// Load reads dir/.env (if present) into the process environment, then
// resolves every setting from the environment over the defaults.
func Load(dir string) (Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.KafkaBrokers = pstrings.SplitList(cfg.KafkaBrokers)
	cfg.CORSAllowedOrigins = pstrings.SplitList(cfg.CORSAllowedOrigins)
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch {
	case c.SendConcurrency < 1:
		return errors.New("SEND_CONCURRENCY must be at least 1")
	case c.DispatchTimeout <= 0:
		return errors.New("DISPATCH_TIMEOUT must be positive")
	case c.ReminderWindowDays < 1:
		return errors.New("REMINDER_WINDOW_DAYS must be at least 1")
	case c.AckRateLimit < 1 || c.AckRateWindow <= 0:
		return errors.New("ACK_RATE_LIMIT and ACK_RATE_WINDOW must be positive")
	case c.IsProduction() && c.JWTSigningKey == devSigningKey:
		return errors.New("JWT_SIGNING_KEY must be set in production")
	}
	return nil
}
