package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trezcool/walimu/core"
)

// Limiter counts hits per key in a fixed window. Used to slow down brute-force
// attempts on the login and password-reset endpoints.
type Limiter interface {
	// Allow records one hit and reports whether the key is still under limit.
	Allow(ctx context.Context, key string) (bool, error)
}

type redisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger core.Logger
}

var _ Limiter = (*redisLimiter)(nil)

func NewRedisLimiter(limit int, window time.Duration, logger core.Logger, conf *core.Config) *redisLimiter {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	return &redisLimiter{
		client: client,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// Allow fails open: if redis is unreachable, traffic is not blocked.
func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	rkey := fmt.Sprintf("ratelimit:%s", key)

	count, err := l.client.Incr(ctx, rkey).Result()
	if err != nil {
		l.logger.Warn("rate limiter unavailable", err)
		return true, nil
	}
	if count == 1 {
		if err = l.client.Expire(ctx, rkey, l.window).Err(); err != nil {
			l.logger.Warn("rate limiter expire failed", err)
		}
	}
	return count <= int64(l.limit), nil
}

// noopLimiter always allows; used in tests and when redis is not configured.
type noopLimiter struct{}

var _ Limiter = (*noopLimiter)(nil)

func NewNoopLimiter() *noopLimiter { return &noopLimiter{} }

func (noopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
