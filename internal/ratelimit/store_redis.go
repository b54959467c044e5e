package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter: INCR and EXPIRE run in one
// MULTI/EXEC so every key that is counted also expires.
type RedisLimiter struct {
	rdb    redis.Cmdable
	limit  int
	window time.Duration
	cfg    config
}

func NewRedisLimiter(rdb redis.Cmdable, limit int, window time.Duration, opts ...Option) *RedisLimiter {
	return &RedisLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		cfg:    newConfig(opts),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	now := l.cfg.now()
	start := now.Truncate(l.window)
	resetAt := start.Add(l.window)
	redisKey := l.cfg.prefix + ":" + key + ":" + strconv.FormatInt(start.Unix(), 10)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("count request for %s: %w", key, err)
	}

	count := int(incr.Val())
	result := &Result{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: max(l.limit-count, 0),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = resetAt.Sub(now)
	}
	return result, nil
}
