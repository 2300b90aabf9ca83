// Package cache provides the Redis-backed key-value layer used for referral
// counters, one-time question flags, flood gates and the broadcast lock.
//
// Purpose:
//
//	Thin semantic wrapper over go-redis. The client is constructed once during
//	bootstrap and injected into every component that needs it; there is no
//	package-level singleton.
//
// Dependencies:
//   - github.com/redis/go-redis/v9: Redis client
//
// Key Responsibilities:
//   - Connect with bounded exponential backoff and a terminal error
//   - Get/SetEx/Set/Delete/Exists over text keys
//   - Readiness ping for the ops server
//
// Error Handling:
//   - Connectivity failures are wrapped with ErrUnavailable so callers can
//     fail closed via errors.Is.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when the cache store cannot be reached.
var ErrUnavailable = errors.New("cache: store unavailable")

const (
	connectAttempts = 5
	connectBaseWait = 500 * time.Millisecond
)

// Cache wraps a single logical Redis connection.
type Cache struct {
	client *redis.Client
}

// Options configure the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect dials Redis, retrying with exponential backoff. After the final
// attempt the error is terminal and should stop service startup.
func Connect(ctx context.Context, opts Options, logger *zap.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	wait := connectBaseWait
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			return &Cache{client: client}, nil
		}
		logger.Warn("redis connect failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
	_ = client.Close()
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// NewFromClient wraps an existing Redis client. Used by tests.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get returns the value for key, or ("", false, nil) when the key is absent.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %s: %v", ErrUnavailable, key, err)
	}
	return val, true, nil
}

// SetEx stores value under key with the given expiry.
func (c *Cache) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: setex %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Set stores value under key without expiry.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	if err := c.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Delete removes the given keys. Missing keys are not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: del: %v", ErrUnavailable, err)
	}
	return nil
}

// Exists reports whether key is present.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %v", ErrUnavailable, key, err)
	}
	return n > 0, nil
}

// Ping checks connectivity. Used by the readiness probe.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the underlying connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
