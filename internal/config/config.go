// Package config provides environment variable-based configuration loading.
//
// Purpose:
//
//	This package defines the service configuration structure and provides
//	functions to load configuration from environment variables using envconfig.
//
// Dependencies:
//   - github.com/kelseyhightower/envconfig: Environment variable parsing
//
// Key Responsibilities:
//   - Config struct defines all service configuration fields
//   - Load reads and validates environment variables
//   - MustLoad exits the process if configuration is invalid
//
// Debugging Notes:
//   - Required fields: BOT_TOKEN, ADMIN_ID, DATABASE_URL, AI_TOKEN
//   - Defaults provided for optional fields (Redis, AI model, ops port, TTLs)
//   - Kafka is optional (audit events fall back to the logger emitter)
//
// Thread Safety:
//   - Config struct is read-only after loading (safe for concurrent read access)
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents runtime configuration for the bot binary.
// All fields are populated from environment variables with defaults where specified.
// Required fields must be set or Load/MustLoad will return an error.
type Config struct {
	// ServiceName is emitted in logs and metrics.
	ServiceName string `envconfig:"SERVICE_NAME" default:"referral-ai-bot"`
	// BotToken is the Telegram Bot API token.
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`
	// AdminID is the Telegram user ID of the operator. Admin commands and
	// failure notifications are bound to this identity.
	AdminID int64 `envconfig:"ADMIN_ID" required:"true"`
	// DatabaseURL is the Postgres connection string for the referral ledger.
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	// RedisAddr is the host:port of the Redis instance used for counters, flags and locks.
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	// RedisPassword is the optional password for Redis authentication.
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	// RedisDB selects the logical Redis database index.
	RedisDB int `envconfig:"REDIS_DB" default:"0"`
	// AIToken authenticates against the completion service.
	AIToken string `envconfig:"AI_TOKEN" required:"true"`
	// AIBaseURL is the base URL of the completion service.
	AIBaseURL string `envconfig:"AI_BASE_URL" default:"https://api.mistral.ai"`
	// AIModel is the fixed model identifier sent with every completion request.
	AIModel string `envconfig:"AI_MODEL" default:"mistral-small-latest"`
	// EnvFile is the dotenv file updated in place when the operator rotates the AI key.
	EnvFile string `envconfig:"ENV_FILE" default:".env"`
	// LogFile is the admin action log shipped on demand from the admin panel.
	LogFile string `envconfig:"LOG_FILE" default:"admin_actions.log"`
	// OpsPort is the port the operational HTTP server (health, metrics) listens on.
	OpsPort int `envconfig:"OPS_PORT" default:"8090"`
	// LogLevel controls the zap log level (debug, info, warn, error).
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// Environment describes the current deployment environment (development, production, etc.).
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	// KafkaBrokers is a comma-separated list of Kafka broker addresses.
	// If empty, audit events are logged instead of sent to Kafka.
	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:""`
	// KafkaTopic is the Kafka topic name for audit events.
	KafkaTopic string `envconfig:"KAFKA_TOPIC" default:"audit.bot"`
	// KafkaClientID is the client ID used when connecting to Kafka.
	KafkaClientID string `envconfig:"KAFKA_CLIENT_ID" default:"referral-ai-bot"`

	// FloodLimit is the minimum interval between messages from a single user.
	FloodLimit time.Duration `envconfig:"FLOOD_LIMIT" default:"2s"`
	// ReferralCacheTTL bounds the staleness of cached referral counts.
	ReferralCacheTTL time.Duration `envconfig:"REFERRAL_CACHE_TTL" default:"600s"`
	// StatsCacheTTL bounds the staleness of the cached stats snapshot.
	StatsCacheTTL time.Duration `envconfig:"STATS_CACHE_TTL" default:"600s"`
	// FirstQuestionTTL is the lifetime of the one-time free question marker.
	FirstQuestionTTL time.Duration `envconfig:"FIRST_QUESTION_TTL" default:"24h"`
	// RequiredReferrals is the number of invitations unlocking full access.
	RequiredReferrals int `envconfig:"REQUIRED_REFERRALS" default:"2"`

	// BroadcastBatchSize is the number of recipients dispatched concurrently per batch.
	BroadcastBatchSize int `envconfig:"BROADCAST_BATCH_SIZE" default:"20"`
	// BroadcastBatchPause is the pause between broadcast batches.
	BroadcastBatchPause time.Duration `envconfig:"BROADCAST_BATCH_PAUSE" default:"1s"`
	// BroadcastLockStale is the age after which an unreleased broadcast lock is reclaimed.
	BroadcastLockStale time.Duration `envconfig:"BROADCAST_LOCK_STALE" default:"30m"`
}

// Load reads environment variables into Config, applying defaults where necessary.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads the configuration and exits the process on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
