// Package bootstrap provides centralized initialization and lifecycle
// management for core service dependencies.
//
// Purpose:
//
//	Wires the foundational runtime dependencies in a fixed order:
//	Postgres → Redis → audit emitter → AI gateway. The cache client is
//	constructed exactly once here and injected everywhere, replacing any
//	notion of a lazily initialized global connection.
//
// Key Responsibilities:
//   - Initialize connects to Postgres and Redis and composes the gateway
//   - Runtime bundles all initialized dependencies for the binary
//   - Close releases resources in reverse initialization order
//
// Error Handling:
//   - Postgres failures prevent startup (required dependency)
//   - Redis connection uses bounded exponential backoff, then fails startup
//   - Kafka failures fall back to the logger audit emitter
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/ai"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/audit"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/cache"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/config"
	"github.com/extraordinarysolutiontoproblems/Asynchronous-AI-Telegram-bot/internal/storage/postgres"
)

// Runtime bundles initialized runtime dependencies. All fields are populated
// during Initialize and remain valid until Close is called.
type Runtime struct {
	Config   *config.Config
	Postgres *postgres.Store
	Cache    *cache.Cache
	Gateway  *ai.Client
	Audit    audit.Emitter

	kafkaEmitter *audit.KafkaEmitter
}

// Initialize wires core dependencies based on the provided configuration.
// The returned Runtime must be closed via Close during shutdown.
func Initialize(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	pgStore, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	cacheStore, err := cache.Connect(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		pgStore.Close()
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	runtime := &Runtime{
		Config:   cfg,
		Postgres: pgStore,
		Cache:    cacheStore,
		Gateway: ai.NewClient(ai.Options{
			BaseURL: cfg.AIBaseURL,
			APIKey:  cfg.AIToken,
			Model:   cfg.AIModel,
		}),
	}

	if kafkaEmitter, err := audit.NewKafkaEmitterFromConfig(
		cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaClientID, logger,
	); err != nil {
		logger.Warn("kafka audit emitter unavailable, falling back to logger", zap.Error(err))
		runtime.Audit = audit.NewLoggerEmitter(zerolog.New(os.Stdout).With().Timestamp().Logger())
	} else if kafkaEmitter != nil {
		logger.Info("audit events streaming to kafka", zap.String("topic", cfg.KafkaTopic))
		runtime.Audit = kafkaEmitter
		runtime.kafkaEmitter = kafkaEmitter
	} else {
		runtime.Audit = audit.NewLoggerEmitter(zerolog.New(os.Stdout).With().Timestamp().Logger())
	}

	return runtime, nil
}

// Readiness checks Postgres and Redis connectivity for the ops server probe.
func (r *Runtime) Readiness(ctx context.Context) error {
	if err := r.Postgres.Pool().Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := r.Cache.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close releases resources in reverse initialization order.
func (r *Runtime) Close() error {
	var firstErr error
	if r.kafkaEmitter != nil {
		if err := r.kafkaEmitter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.Postgres != nil {
		r.Postgres.Close()
	}
	return firstErr
}
