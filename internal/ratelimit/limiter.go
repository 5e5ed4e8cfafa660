package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultIPLimit  = 10
	DefaultIPWindow = 15 * time.Minute
)

// Limiter counts requests per subject and purpose in a Redis fixed window.
// The subject is a client IP or a normalized account email.
type Limiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

func NewLimiter(redisClient *redis.Client, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultIPLimit
	}
	if window <= 0 {
		window = DefaultIPWindow
	}
	return &Limiter{redis: redisClient, limit: limit, window: window}
}

// Allow records one request and reports whether it fits in the current window.
// When it does not, retryAfter is the time left until the window resets.
func (l *Limiter) Allow(ctx context.Context, subject, purpose string) (bool, time.Duration, error) {
	key := limitKey(purpose, subject)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	if count <= int64(l.limit) {
		return true, 0, nil
	}

	ttl, err := l.redis.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to read rate limit window: %w", err)
	}
	if ttl < 0 {
		// counter lost its expiry; start a new window
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("failed to set rate limit window: %w", err)
		}
		ttl = l.window
	}

	return false, ttl, nil
}

// Reset clears the counter for subject and purpose
func (l *Limiter) Reset(ctx context.Context, subject, purpose string) error {
	if err := l.redis.Del(ctx, limitKey(purpose, subject)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}

func limitKey(purpose, subject string) string {
	return "ratelimit:" + purpose + ":" + subject
}
