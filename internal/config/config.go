// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Notifier kinds accepted by OTP_NOTIFIER.
const (
	NotifierConsole = "console"
	NotifierWebhook = "webhook"
	NotifierCapture = "capture"
)

// Challenge store kinds accepted by CHALLENGE_STORE.
const (
	ChallengeStoreMemory   = "memory"
	ChallengeStoreRedis    = "redis"
	ChallengeStorePostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN. Empty runs the console against the in-memory account store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL enables the Redis challenge store and the account event stream (e.g. redis://localhost:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// PBKDF2Hash is the PRF for password derivation: sha256 or sha512.
	PBKDF2Hash string `mapstructure:"PBKDF2_HASH"`
	// PBKDF2Iterations is the iteration count; at least 10000.
	PBKDF2Iterations int `mapstructure:"PBKDF2_ITERATIONS"`
	// PBKDF2KeyLength is the derived key length in bytes; at least 32.
	PBKDF2KeyLength int `mapstructure:"PBKDF2_KEY_LENGTH"`
	// PBKDF2SaltLength is the per-account salt length in bytes; at least 16.
	PBKDF2SaltLength int `mapstructure:"PBKDF2_SALT_LENGTH"`

	// OTPTTL is how long a one-time code stays valid (e.g. "5m").
	OTPTTL string `mapstructure:"OTP_TTL"`
	// OTPNotifier selects how codes are delivered: console, webhook or capture (dev only).
	OTPNotifier string `mapstructure:"OTP_NOTIFIER"`
	// OTPWebhookURL receives codes as JSON when OTPNotifier is webhook.
	OTPWebhookURL string `mapstructure:"OTP_WEBHOOK_URL"`
	// ChallengeStore selects where pending challenges live: memory, redis or postgres.
	ChallengeStore string `mapstructure:"CHALLENGE_STORE"`

	// UniformLoginErrors hides whether an account exists behind "invalid credentials".
	UniformLoginErrors bool `mapstructure:"UNIFORM_LOGIN_ERRORS"`
	// MaxTransactionAmount caps a single deposit or withdrawal.
	MaxTransactionAmount string `mapstructure:"MAX_TRANSACTION_AMOUNT"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// EventsTopic is the stream account events are published to.
	EventsTopic string `mapstructure:"EVENTS_TOPIC"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("PBKDF2_HASH", "sha256")
	v.SetDefault("PBKDF2_ITERATIONS", 20000)
	v.SetDefault("PBKDF2_KEY_LENGTH", 32)
	v.SetDefault("PBKDF2_SALT_LENGTH", 16)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_NOTIFIER", NotifierConsole)
	v.SetDefault("OTP_WEBHOOK_URL", "")
	v.SetDefault("CHALLENGE_STORE", ChallengeStoreMemory)
	v.SetDefault("UNIFORM_LOGIN_ERRORS", true)
	v.SetDefault("MAX_TRANSACTION_AMOUNT", "1000000")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("EVENTS_TOPIC", "securebank.account")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	switch cfg.OTPNotifier {
	case NotifierConsole, NotifierCapture:
	case NotifierWebhook:
		if cfg.OTPWebhookURL == "" {
			return nil, errors.New("config: OTP_WEBHOOK_URL must be set when OTP_NOTIFIER=webhook")
		}
	default:
		return nil, errors.New("config: OTP_NOTIFIER must be console, webhook or capture")
	}
	if cfg.OTPNotifier == NotifierCapture && cfg.Env == "production" {
		return nil, errors.New("config: OTP_NOTIFIER=capture must not be used when APP_ENV=production")
	}

	switch cfg.ChallengeStore {
	case ChallengeStoreMemory:
	case ChallengeStoreRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("config: REDIS_URL must be set when CHALLENGE_STORE=redis")
		}
	case ChallengeStorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: DATABASE_URL must be set when CHALLENGE_STORE=postgres")
		}
	default:
		return nil, errors.New("config: CHALLENGE_STORE must be memory, redis or postgres")
	}

	if _, err := decimal.NewFromString(cfg.MaxTransactionAmount); err != nil {
		return nil, errors.New("config: MAX_TRANSACTION_AMOUNT must be a decimal number")
	}

	return &cfg, nil
}

// ChallengeTTL parses OTPTTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	d, err := time.ParseDuration(c.OTPTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// MaxAmount returns MaxTransactionAmount as a decimal. Returns 1,000,000 if unparsable.
func (c *Config) MaxAmount() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(c.MaxTransactionAmount))
	if err != nil || !d.IsPositive() {
		return decimal.NewFromInt(1000000)
	}
	return d
}
