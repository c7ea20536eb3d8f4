package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"skyguard/internal/types"
)

// MemoryLimiter is a sliding-window log limiter held in process memory.
// Keys with no attempts inside the window are reclaimed by Sweep.
type MemoryLimiter struct {
	limits Limits
	clock  types.Clock

	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewMemoryLimiter creates a MemoryLimiter. A nil clock uses wall time.
func NewMemoryLimiter(limits Limits, clock types.Clock) *MemoryLimiter {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &MemoryLimiter{
		limits:  limits.normalized(),
		clock:   clock,
		windows: make(map[string][]time.Time),
	}
}

// Allow records an attempt for key when the window has room.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	attempts := prune(l.windows[key], now.Add(-l.limits.Window))
	if len(attempts) >= l.limits.Max {
		l.windows[key] = attempts
		return Decision{
			Allowed: false,
			Limit:   l.limits.Max,
			ResetAt: attempts[0].Add(l.limits.Window),
		}, nil
	}

	attempts = append(attempts, now)
	l.windows[key] = attempts
	return Decision{
		Allowed:   true,
		Limit:     l.limits.Max,
		Remaining: l.limits.Max - len(attempts),
		ResetAt:   attempts[0].Add(l.limits.Window),
	}, nil
}

// prune drops attempts at or before cutoff. attempts is in ascending order.
func prune(attempts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(attempts) && !attempts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return attempts
	}
	return append(attempts[:0], attempts[i:]...)
}

// Sweep removes keys whose attempts have all expired and returns how many
// were removed.
func (l *MemoryLimiter) Sweep() int {
	cutoff := l.clock.Now().Add(-l.limits.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, attempts := range l.windows {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(cutoff) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// StartJanitor runs Sweep every interval until ctx is cancelled.
func (l *MemoryLimiter) StartJanitor(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := l.Sweep(); n > 0 {
					logger.Debug("rate limiter swept idle keys", "removed", n)
				}
			}
		}
	}()
}
