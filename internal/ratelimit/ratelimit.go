// Package ratelimit gates per-session outbound sends with a fixed-window
// counter. The window is coarse on purpose: exceeding it converts into a
// few extra seconds of queue latency, never into a user-visible error.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Defaults for the send gate: 5 messages per 60-second window.
const (
	DefaultMax    = 5
	DefaultWindow = 60 * time.Second
)

// Limiter is the send gate consulted before each gateway call.
type Limiter interface {
	// Allow reports whether one more send is allowed for the key within
	// the current window, consuming a slot when it is.
	Allow(ctx context.Context, key string) (bool, error)
	// Window returns the decay period, used to reschedule throttled sends.
	Window() time.Duration
}

// RedisLimiter counts in redis so the window is shared across workers.
// INCR is atomic, so two concurrent jobs cannot both observe "under
// limit" and proceed; the expiry is attached on the first hit of each
// window.
type RedisLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
}

// NewRedisLimiter creates a redis-backed fixed-window limiter
func NewRedisLimiter(client *redis.Client, max int, window time.Duration) *RedisLimiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{client: client, max: int64(max), window: window}
}

// Allow implements Limiter
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "ratelimit:session:" + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= l.max, nil
}

// Window implements Limiter
func (l *RedisLimiter) Window() time.Duration {
	return l.window
}

// MemoryLimiter is the in-process fallback used when redis is not
// configured. Same fixed-window semantics, scoped to one process.
type MemoryLimiter struct {
	mutex   sync.Mutex
	max     int
	window  time.Duration
	counts  map[string]int
	resets  map[string]time.Time
	nowFunc func() time.Time
}

// NewMemoryLimiter creates an in-memory fixed-window limiter
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryLimiter{
		max:     max,
		window:  window,
		counts:  make(map[string]int),
		resets:  make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

// Allow implements Limiter
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := l.nowFunc()
	if reset, ok := l.resets[key]; !ok || now.After(reset) {
		l.counts[key] = 0
		l.resets[key] = now.Add(l.window)
	}

	l.counts[key]++
	return l.counts[key] <= l.max, nil
}

// Window implements Limiter
func (l *MemoryLimiter) Window() time.Duration {
	return l.window
}
