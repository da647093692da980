package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter guards the routes that spend the server-held provider key.
type RateLimiter interface {
	// CheckLimit returns true if the request is allowed.
	CheckLimit(userID int64) bool
	Backend() string
}

// InMemoryRateLimiter keeps one token bucket per user. Limits are per replica.
type InMemoryRateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*userLimiter
	limit    int
	window   time.Duration
	logger   log.Logger
}

type userLimiter struct {
	limiter   *rate.Limiter
	lastReset time.Time
}

func NewInMemoryRateLimiter(logger log.Logger) *InMemoryRateLimiter {
	return newInMemoryRateLimiter(AskRateLimitPerHour, AskRateLimitWindow, logger)
}

func newInMemoryRateLimiter(limit int, window time.Duration, logger log.Logger) *InMemoryRateLimiter {
	return &InMemoryRateLimiter{
		limiters: make(map[int64]*userLimiter),
		limit:    limit,
		window:   window,
		logger:   logger,
	}
}

func (r *InMemoryRateLimiter) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(r.window/time.Duration(r.limit)), r.limit)
}

func (r *InMemoryRateLimiter) CheckLimit(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	rl, exists := r.limiters[userID]
	switch {
	case !exists:
		rl = &userLimiter{limiter: r.newLimiter(), lastReset: now}
		r.limiters[userID] = rl
	case now.Sub(rl.lastReset) > r.window:
		rl.limiter = r.newLimiter()
		rl.lastReset = now
	}

	allowed := rl.limiter.Allow()
	if !allowed {
		r.logger.Warn("Rate limit exceeded", "userId", userID, "backend", "memory")
	}
	return allowed
}

func (r *InMemoryRateLimiter) Backend() string {
	return "memory"
}

// RedisRateLimiter counts requests per user in fixed windows shared by all
// replicas.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	logger log.Logger
}

func NewRedisRateLimiter(client *redis.Client, logger log.Logger) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		limit:  AskRateLimitPerHour,
		window: AskRateLimitWindow,
		logger: logger,
	}
}

func (r *RedisRateLimiter) CheckLimit(userID int64) bool {
	key := fmt.Sprintf("%s%d", rateLimitKeyPrefix, userID)

	ctx, cancel := getContextWithTimeout(RedisOpTimeout)
	defer cancel()
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		// Fail open: a Redis outage must not lock users out.
		r.logger.Warn("Failed to increment rate limit counter", "error", err, "userId", userID)
		return true
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			r.logger.Warn("Failed to set rate limit TTL", "error", err, "userId", userID)
		}
	}

	if count > r.limit {
		r.logger.Warn("Rate limit exceeded", "userId", userID, "backend", "redis", "count", count)
		return false
	}
	return true
}

func (r *RedisRateLimiter) Backend() string {
	return "redis"
}

func getContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
