package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"skyguard/internal/types"
)

// slidingWindowScript trims the key's sorted set to the window, then either
// rejects or records the attempt. Returns {allowed, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then
  oldestScore = tonumber(oldest[2])
end
return {allowed, count, oldestScore}
`)

// RedisLimiter is a sliding-window limiter backed by a Redis sorted set per
// key. The whole check runs in one Lua script, so it is atomic across
// instances. Keys expire on their own after a quiet window.
type RedisLimiter struct {
	rdb    redis.Scripter
	limits Limits
	clock  types.Clock
	prefix string
}

// NewRedisLimiter creates a RedisLimiter. A nil clock uses wall time.
func NewRedisLimiter(rdb redis.Scripter, limits Limits, clock types.Clock) *RedisLimiter {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &RedisLimiter{
		rdb:    rdb,
		limits: limits.normalized(),
		clock:  clock,
		prefix: "skyguard:ratelimit:",
	}
}

// Allow records an attempt for key when the window has room.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.clock.Now()
	nowMs := now.UnixMilli()
	windowMs := l.limits.Window.Milliseconds()

	res, err := slidingWindowScript.Run(ctx, l.rdb,
		[]string{l.prefix + key},
		nowMs, windowMs, l.limits.Max, fmt.Sprintf("%d-%s", nowMs, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("redis rate limit script: unexpected reply length %d", len(res))
	}

	count := int(res[1])
	d := Decision{
		Allowed: res[0] == 1,
		Limit:   l.limits.Max,
		ResetAt: time.UnixMilli(res[2]).UTC().Add(l.limits.Window),
	}
	if d.Allowed {
		d.Remaining = l.limits.Max - count
	}
	return d, nil
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
