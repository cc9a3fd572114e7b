// Package cache wraps go-redis for two purposes: HTTP response
// caching on the Query Surface, and value caching of the RSI
// indicator's computed point series per series — both adapted from
// services/api-gateway/internal/middleware/redis_cache.go's
// SHA256-keyed get-or-store pattern.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisCache is a thin typed wrapper over a *redis.Client.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisCache(client *redis.Client, prefix string, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, logger: logger}
}

// Key hashes an arbitrary set of parts into a stable cache key, the
// same scheme redis_cache.go uses for path+query.
func (c *RedisCache) Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%s:%s", c.prefix, hex.EncodeToString(h.Sum(nil)))
}

// GetJSON reads and unmarshals a cached value; ok is false on miss.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) (ok bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("cache: failed to unmarshal cached value", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// SetJSON marshals and stores a value with a TTL.
func (c *RedisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache: failed to marshal value", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.Error("cache: failed to set value", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes a single cached key, e.g. when a series advances.
func (c *RedisCache) Invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("cache: failed to invalidate key", zap.String("key", key), zap.Error(err))
	}
}
