package ratelimit

import (
	"context"
	"time"

	"skyguard/internal/types"
)

// AttemptLog atomically prunes, checks and appends to a per-key log of
// admitted attempts. db.RateLimitRepository implements it.
type AttemptLog interface {
	Attempt(ctx context.Context, key string, now, windowStart time.Time, limit int) (allowed bool, count int, oldest time.Time, err error)
}

// StoreLimiter is a sliding-window limiter over an AttemptLog. It admits
// exactly what the Redis limiter admits: at most Max attempts in any
// Window-long interval.
type StoreLimiter struct {
	log    AttemptLog
	limits Limits
	clock  types.Clock
}

// NewStoreLimiter creates a StoreLimiter. A nil clock uses wall time.
func NewStoreLimiter(log AttemptLog, limits Limits, clock types.Clock) *StoreLimiter {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &StoreLimiter{log: log, limits: limits.normalized(), clock: clock}
}

// Allow records the attempt when the window has room.
func (l *StoreLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.clock.Now()
	allowed, count, oldest, err := l.log.Attempt(ctx, key, now, now.Add(-l.limits.Window), l.limits.Max)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{
		Allowed: allowed,
		Limit:   l.limits.Max,
		ResetAt: oldest.Add(l.limits.Window),
	}
	if allowed {
		d.Remaining = l.limits.Max - count
	}
	return d, nil
}
