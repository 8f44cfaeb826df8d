// Package ratelimit counts requests per key in fixed windows. The
// in-memory limiter suits a single instance; RedisLimiter shares the
// counters between instances.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the wait until the window resets, rounded up to a second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	return (wait + time.Second - 1) / time.Second * time.Second
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int) Decision
}

func decide(count, limit int, resetAt time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= limit, Count: count, Limit: limit, Remaining: remaining, ResetAt: resetAt}
}

type window struct {
	count   int
	resetAt time.Time
}

// InMemoryLimiter keeps fixed-window counters in a map.
type InMemoryLimiter struct {
	mu     sync.Mutex
	window time.Duration
	items  map[string]window
	now    func() time.Time
}

func NewInMemory(w time.Duration) *InMemoryLimiter {
	if w <= 0 {
		w = time.Minute
	}
	return &InMemoryLimiter{window: w, items: make(map[string]window), now: time.Now}
}

func (l *InMemoryLimiter) Allow(_ context.Context, key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	now := l.now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	curr, ok := l.items[key]
	if !ok || !now.Before(curr.resetAt) {
		curr = window{resetAt: now.Add(l.window)}
	}
	curr.count++
	l.items[key] = curr
	return decide(curr.count, limit, curr.resetAt)
}

func (l *InMemoryLimiter) sweep(now time.Time) {
	for k, v := range l.items {
		if !now.Before(v.resetAt) {
			delete(l.items, k)
		}
	}
}
