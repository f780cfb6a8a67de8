// Package cache provides a Redis-backed read cache for computed
// profiles. Cache misses and Redis outages degrade to the underlying
// store, never to an error.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/brewtaste/pkg/logger"
)

// Cache wraps a Redis client with JSON serialization.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the default entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger overrides the default named logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Cache) {
		c.log = log
	}
}

// New creates a cache over addr. A nil return from callers is valid
// everywhere a *Cache is accepted.
func New(addr, password string, opts ...Option) *Cache {
	c := &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: 5 * time.Minute,
		log: logger.Get().Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// GetJSON loads key into v. The second return is false on a miss or
// any Redis failure.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) bool {
	if c == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.log.Debug(ctx, "cache read failed", logger.String("key", key), logger.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.log.Warn(ctx, "cache entry corrupt, dropping", logger.String("key", key), logger.Error(err))
		c.client.Del(ctx, key)
		return false
	}
	return true
}

// SetJSON stores v under key for the configured TTL. Failures are
// logged and swallowed.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn(ctx, "cache encode failed", logger.String("key", key), logger.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Debug(ctx, "cache write failed", logger.String("key", key), logger.Error(err))
	}
}

// Invalidate removes key. Failures are logged and swallowed.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Debug(ctx, "cache invalidate failed", logger.String("key", key), logger.Error(err))
	}
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
