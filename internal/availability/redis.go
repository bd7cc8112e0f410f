package availability

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "quorum:avail:"

// RedisCache shares availability state across engine instances. Expiry is
// delegated to Redis key TTLs. Errors degrade to "unknown" so a Redis
// outage only costs extra probes, never wrong answers.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, modelID string) (bool, bool) {
	val, err := c.rdb.Get(ctx, redisKeyPrefix+modelID).Result()
	if err == redis.Nil {
		return false, false
	}
	if err != nil {
		slog.Warn("availability cache read failed", "model", modelID, "error", err)
		return false, false
	}
	return val == "1", true
}

func (c *RedisCache) Set(ctx context.Context, modelID string, available bool) {
	val := "0"
	if available {
		val = "1"
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+modelID, val, c.ttl).Err(); err != nil {
		slog.Warn("availability cache write failed", "model", modelID, "error", err)
	}
}
