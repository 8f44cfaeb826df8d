package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/boardcontext/internal/logging"
)

var windowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

const redisTimeout = 2 * time.Second

// RedisLimiter runs the window counter as one Lua script per request. When
// Redis is unreachable it degrades to the in-process fallback.
type RedisLimiter struct {
	client   redis.Scripter
	window   time.Duration
	prefix   string
	fallback *InMemoryLimiter
	logger   logging.Logger
}

func NewRedis(client redis.Scripter, w time.Duration, logger logging.Logger) *RedisLimiter {
	if w <= 0 {
		w = time.Minute
	}
	return &RedisLimiter{
		client:   client,
		window:   w,
		prefix:   "boardcontext:rl:",
		fallback: NewInMemory(w),
		logger:   logger.With("module", "ratelimit"),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	res, err := windowScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil || len(res) < 2 {
		l.logger.Warn(ctx, "redis limiter unavailable, using local counters", "error", err)
		return l.fallback.Allow(ctx, key, limit)
	}
	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl < 0 {
		ttl = l.window
	}
	return decide(int(res[0]), limit, time.Now().UTC().Add(ttl))
}
