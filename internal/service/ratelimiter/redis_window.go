package ratelimiter

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow is a fixed-window limiter whose counter lives in Redis so several
// server processes share one per-minute budget.
type RedisWindow struct {
	redis  *redis.Client
	key    string
	budget int
	window time.Duration
	script *redis.Script
}

// NewRedisWindow returns nil when rdb is nil; a nil *RedisWindow is not usable as a Limiter.
func NewRedisWindow(rdb *redis.Client, key string, budget int, window time.Duration) *RedisWindow {
	if rdb == nil {
		return nil
	}
	if budget <= 0 {
		budget = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisWindow{
		redis:  rdb,
		key:    "rate:" + key,
		budget: budget,
		window: window,
		script: redis.NewScript(luaFixedWindowScript),
	}
}

// KEYS[1] counter key; ARGV[1] budget; ARGV[2] window in ms.
// Returns {granted, pttl}.
const luaFixedWindowScript = `
local key = KEYS[1]
local budget = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local count = tonumber(redis.call("GET", key) or "0")
local ttl = redis.call("PTTL", key)
if ttl < 0 then
  count = 0
  ttl = window_ms
end

if count < budget then
  count = redis.call("INCR", key)
  if count == 1 then
    redis.call("PEXPIRE", key, window_ms)
    ttl = window_ms
  end
  return { 1, ttl }
end

return { 0, ttl }
`

// TryAcquire runs the window script. Redis failures fail open so a cache outage does
// not halt the queue; the provider's own limits still apply.
func (l *RedisWindow) TryAcquire(ctx context.Context) (bool, time.Duration) {
	res, err := l.script.Run(ctx, l.redis, []string{l.key}, l.budget, l.window.Milliseconds()).Result()
	if err != nil {
		slog.Error("redis rate window script error", slog.String("key", l.key), slog.Any("error", err))
		return true, 0
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		slog.Error("redis rate window unexpected script result", slog.String("key", l.key), slog.Any("result", res))
		return true, 0
	}
	if toInt64(vals[0]) == 1 {
		return true, 0
	}
	return false, time.Duration(toInt64(vals[1])) * time.Millisecond
}

// Status reads the shared counter without consuming budget.
func (l *RedisWindow) Status(ctx context.Context) Status {
	st := Status{Budget: l.budget, Remaining: l.budget, ResetIn: l.window}
	pipe := l.redis.Pipeline()
	getCmd := pipe.Get(ctx, l.key)
	ttlCmd := pipe.PTTL(ctx, l.key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("redis rate window status error", slog.String("key", l.key), slog.Any("error", err))
		return st
	}
	if ttl := ttlCmd.Val(); ttl > 0 {
		st.ResetIn = ttl
		if n, err := strconv.Atoi(getCmd.Val()); err == nil {
			st.Remaining = max(l.budget-n, 0)
		}
	}
	return st
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
