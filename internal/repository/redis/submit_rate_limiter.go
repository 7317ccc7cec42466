package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/nastyazhadan/paper-exchange/shared/infra/redis"
)

const submitRateLimitPrefix = "rate:order:submit:"

type SubmitRateLimiter struct {
	client redis.Client
	limit  int64
	window time.Duration
}

func NewSubmitRateLimiter(client redis.Client, limit int64, window time.Duration) *SubmitRateLimiter {
	return &SubmitRateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow counts one submission for symbol in the current window.
func (r *SubmitRateLimiter) Allow(ctx context.Context, symbol string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}

	key := submitRateLimitPrefix + symbol

	// INCR атомарно увеличивает счётчик и создаёт ключ со значением 1, если его не было.
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("rate limiter incr: %w", err)
	}

	// TTL ставим только на первой заявке окна, чтобы окно не сдвигалось.
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window); err != nil {
			return false, fmt.Errorf("rate limiter expire: %w", err)
		}
	}

	return count <= r.limit, nil
}
