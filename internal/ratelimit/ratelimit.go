// internal/ratelimit/ratelimit.go
package ratelimit

import (
	"context"
	"sync"
	"time"

	"notification-service/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// Limiter answers whether one more request keyed by key is allowed right now.
// Implementations are fixed-window counters; callers treat a denial as HTTP
// 429, never as an internal error.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// ==========================
// Redis fixed-window limiter
// ==========================

// RedisLimiter counts requests per key in Redis so the limit holds across
// service replicas.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	logger logger.Logger
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, log logger.Logger) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		logger: log.WithFields(map[string]interface{}{"component": "ratelimit"}),
	}
}

// Allow increments the window counter for key and compares it to the limit.
// Redis being unavailable fails open; throttling is protection, not policy.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "ratelimit:" + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		l.logger.Warn("rate limit counter unavailable", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return true, nil
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			l.logger.Warn("rate limit expiry failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	return count <= l.limit, nil
}

// ==========================
// In-memory fixed-window limiter
// ==========================

// MemoryLimiter is the single-process fallback used when Redis is not
// configured.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket
}

type bucket struct {
	count   int
	resetAt time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok || now.After(b.resetAt) {
		l.buckets[key] = &bucket{count: 1, resetAt: now.Add(l.window)}
		l.sweep(now)
		return true, nil
	}

	b.count++
	return b.count <= l.limit, nil
}

// sweep drops expired buckets so the map does not grow without bound.
func (l *MemoryLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.After(b.resetAt) {
			delete(l.buckets, key)
		}
	}
}
