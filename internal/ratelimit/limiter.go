// Package ratelimit provides per-key request limiters. The in-memory limiter
// serves single-instance deployments; the Redis and PostgreSQL limiters share
// counters across instances.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the oldest counted attempt leaves the window.
	ResetAt time.Time
}

// RetryAfter returns how long a rejected caller should wait, at least one
// second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < time.Second {
		return time.Second
	}
	return wait.Round(time.Second)
}

// Limiter admits or rejects attempts for an operation key. Implementations
// must make the check-and-count step atomic so two concurrent callers cannot
// both take the last slot.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Limits configures a limiter: at most Max attempts per key in any Window.
type Limits struct {
	Max    int
	Window time.Duration
}

// Default send quota per sender.
var DefaultSendLimits = Limits{Max: 5, Window: 60 * time.Second}

func (l Limits) normalized() Limits {
	if l.Max <= 0 {
		l.Max = DefaultSendLimits.Max
	}
	if l.Window <= 0 {
		l.Window = DefaultSendLimits.Window
	}
	return l
}

// SendKey is the limiter key for alert sends by senderID.
func SendKey(senderID string) string {
	return "send_alert:" + senderID
}
