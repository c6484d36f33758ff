// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskFlow Contributors

// Package ratelimit provides fixed-window attempt counters that satisfy
// auth.Throttle. RedisLimiter shares counters across processes;
// MemoryLimiter keeps them in the local process.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/Lugadilu/TaskFlow/internal/auth"
)

// Config sets a limiter's budget: at most Max attempts per key in each
// Window. Prefix namespaces the keys so limiters with different budgets can
// share one Redis.
type Config struct {
	Prefix string
	Max    int
	Window time.Duration
}

func (c Config) validate() error {
	if c.Max <= 0 {
		return oops.Code("CONFIG_INVALID").With("field", "max").With("value", c.Max).
			Errorf("throttle budget must be positive")
	}
	if c.Window <= 0 {
		return oops.Code("CONFIG_INVALID").With("field", "window").With("value", c.Window).
			Errorf("throttle window must be positive")
	}
	return nil
}

// RedisLimiter counts attempts in Redis. INCR and EXPIRE NX go out in one
// MULTI/EXEC, so a counter never exists without a TTL and later hits never
// extend the window set by the first.
type RedisLimiter struct {
	client redis.UniversalClient
	cfg    Config
}

// NewRedisLimiter creates a RedisLimiter.
func NewRedisLimiter(client redis.UniversalClient, cfg Config) (*RedisLimiter, error) {
	if client == nil {
		return nil, oops.Errorf("redis client is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{client: client, cfg: cfg}, nil
}

func (l *RedisLimiter) key(key string) string {
	return "taskflow:throttle:" + l.cfg.Prefix + key
}

// Allow implements auth.Throttle.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.key(key)
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.cfg.Window)
		return nil
	})
	if err != nil {
		return false, oops.Code("THROTTLE_UNAVAILABLE").With("operation", "incr").Wrap(err)
	}
	return incr.Val() <= int64(l.cfg.Max), nil
}

// Reset implements auth.Throttle.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return oops.Code("THROTTLE_UNAVAILABLE").With("operation", "del").Wrap(err)
	}
	return nil
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps counters in process memory. Call Prune periodically to
// drop windows that have ended.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryLimiter creates a MemoryLimiter. A nil now uses time.Now.
func NewMemoryLimiter(cfg Config, now func() time.Time) (*MemoryLimiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{cfg: cfg, now: now, windows: make(map[string]*window)}, nil
}

// Allow implements auth.Throttle.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.cfg.Window)}
		l.windows[key] = w
	}
	w.count++
	return w.count <= l.cfg.Max, nil
}

// Reset implements auth.Throttle.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
	return nil
}

// Prune drops ended windows and returns how many were dropped.
func (l *MemoryLimiter) Prune() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			dropped++
		}
	}
	return dropped
}

var (
	_ auth.Throttle = (*RedisLimiter)(nil)
	_ auth.Throttle = (*MemoryLimiter)(nil)
)
