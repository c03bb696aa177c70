package authgate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// attemptLimiter is the fast failed-login counter tier. The persisted
// per-account counter remains the authority; this tier only ever adds
// restriction, so the effective count is the max of the two. The window is
// measured from the last recorded failure.
type attemptLimiter interface {
	// Bump records a failure and returns the count inside the window.
	Bump(ctx context.Context, key string) (int, error)
	// Count returns the current in-window count without recording.
	Count(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

/*
====================================
IN-PROCESS TIER
====================================
*/

type attemptEntry struct {
	count int
	last  time.Time
}

type memoryAttemptLimiter struct {
	mu        sync.Mutex
	entries   map[string]attemptEntry
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func newMemoryAttemptLimiter(window time.Duration) *memoryAttemptLimiter {
	return &memoryAttemptLimiter{
		entries: make(map[string]attemptEntry),
		window:  window,
		now:     time.Now,
	}
}

func (l *memoryAttemptLimiter) Bump(_ context.Context, key string) (int, error) {
	key = strings.ToLower(key)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	entry := l.entries[key]
	if entry.count > 0 && now.Sub(entry.last) > l.window {
		entry.count = 0
	}
	entry.count++
	entry.last = now
	l.entries[key] = entry
	return entry.count, nil
}

func (l *memoryAttemptLimiter) Count(_ context.Context, key string) (int, error) {
	key = strings.ToLower(key)
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok {
		return 0, nil
	}
	if l.now().Sub(entry.last) > l.window {
		delete(l.entries, key)
		return 0, nil
	}
	return entry.count, nil
}

func (l *memoryAttemptLimiter) Reset(_ context.Context, key string) error {
	key = strings.ToLower(key)
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
	return nil
}

// sweep drops every out-of-window entry, at most once per window. Every
// probed email gets an entry, so without eviction the map grows for the
// process lifetime; this is the in-process analogue of the Redis key TTL.
// Called with l.mu held.
func (l *memoryAttemptLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, entry := range l.entries {
		if now.Sub(entry.last) > l.window {
			delete(l.entries, key)
		}
	}
}

/*
====================================
REDIS TIER
====================================
*/

// redisAttemptLimiter shares the counter across processes. The key TTL is
// refreshed on every bump, so expiry fires only after a quiet period longer
// than the window.
type redisAttemptLimiter struct {
	client *redis.Client
	window time.Duration
	prefix string
}

func newRedisAttemptLimiter(client *redis.Client, prefix string, window time.Duration) *redisAttemptLimiter {
	return &redisAttemptLimiter{
		client: client,
		window: window,
		prefix: prefix,
	}
}

func (l *redisAttemptLimiter) key(key string) string {
	return l.prefix + ":fla:" + strings.ToLower(key)
}

func (l *redisAttemptLimiter) Bump(ctx context.Context, key string) (int, error) {
	k := l.key(key)
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("attempt counter incr: %w", err)
	}
	if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
		return 0, fmt.Errorf("attempt counter expire: %w", err)
	}
	return int(count), nil
}

func (l *redisAttemptLimiter) Count(ctx context.Context, key string) (int, error) {
	count, err := l.client.Get(ctx, l.key(key)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("attempt counter get: %w", err)
	}
	return count, nil
}

func (l *redisAttemptLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("attempt counter del: %w", err)
	}
	return nil
}
