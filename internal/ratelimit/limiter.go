package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "quorum:rpm:"

// Limiter enforces per-key requests-per-minute limits with a fixed Redis
// window. Redis failures fail open; a broken limiter must not take down
// consensus traffic.
type Limiter struct {
	rdb    *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewLimiter(rdb *redis.Client, logger *slog.Logger) *Limiter {
	return &Limiter{rdb: rdb, logger: logger, now: time.Now}
}

// Allow reports whether the key may proceed under limit requests per
// minute. A nil client or limit <= 0 always allows.
func (l *Limiter) Allow(ctx context.Context, key string, limit int) bool {
	if l.rdb == nil || limit <= 0 {
		return true
	}

	window := l.now().UTC().Unix() / 60
	redisKey := keyPrefix + key + ":" + strconv.FormatInt(window, 10)

	count, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing request", "error", err)
		return true
	}
	if count == 1 {
		l.rdb.Expire(ctx, redisKey, 2*time.Minute)
	}
	return count <= int64(limit)
}
