package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts hits per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key, action string, limit int, window time.Duration) (bool, error)
}

type RedisRateLimiter struct {
	client *redis.Client
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

// rateLimitScript counts a hit and arms the window expiry in one step. A key
// left without a TTL is re-armed on the next hit.
var rateLimitScript = redis.NewScript(`
	local count = redis.call("INCR", KEYS[1])
	if redis.call("PTTL", KEYS[1]) < 0 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return count
`)

func (r *RedisRateLimiter) Allow(ctx context.Context, key, action string, limit int, window time.Duration) (bool, error) {
	redisKey := fmt.Sprintf(KeyRateLimit, key, action)

	count, err := rateLimitScript.Run(ctx, r.client, []string{redisKey}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	return count <= int64(limit), nil
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

func (r *MemoryRateLimiter) Allow(ctx context.Context, key, action string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	k := key + ":" + action
	w, ok := r.windows[k]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		r.windows[k] = w
	}
	w.count++

	if len(r.windows) > 10000 {
		for wk, ww := range r.windows {
			if !now.Before(ww.resetAt) {
				delete(r.windows, wk)
			}
		}
	}

	return w.count <= limit, nil
}
