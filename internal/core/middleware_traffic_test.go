package core

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"skyguard/internal/ratelimit"
	"skyguard/internal/types"
)

func TestRateLimit_AllowedSetsHeaders(t *testing.T) {
	s, _, _ := newTestServer(t, &MockAuthenticator{Actor: employeeActor()})
	s.APILimiter = &MockLimiter{Decision: ratelimit.Decision{
		Allowed: true, Limit: 120, Remaining: 119, ResetAt: serverNow.Add(time.Minute),
	}}

	rec := do(s, http.MethodGet, "/v1/whoami", "tok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "119", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1772366460", rec.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimit_FailsOpen(t *testing.T) {
	s, _, _ := newTestServer(t, &MockAuthenticator{Actor: employeeActor()})
	s.APILimiter = &MockLimiter{Err: errors.New("redis: connection refused")}

	rec := do(s, http.MethodGet, "/v1/whoami", "tok")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_SkipsSystemActor(t *testing.T) {
	system := types.SystemActor()
	s, _, _ := newTestServer(t, &MockAuthenticator{Actor: &system})
	limiter := &MockLimiter{AllowFunc: func(context.Context, string) (ratelimit.Decision, error) {
		t.Fatal("limiter must not be consulted for the system actor")
		return ratelimit.Decision{}, nil
	}}
	s.APILimiter = limiter

	rec := do(s, http.MethodPost, "/v1/jobs/weather", "machine")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRateLimit_RealLimiterSixthRequestRejected(t *testing.T) {
	s, _, _ := newTestServer(t, &MockAuthenticator{Actor: employeeActor()})
	clock := &types.FixedClock{T: serverNow}
	s.Clock = clock
	s.APILimiter = ratelimit.NewMemoryLimiter(ratelimit.Limits{Max: 5, Window: time.Minute}, clock)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/v1/whoami", "tok").Code, "request %d", i+1)
	}
	rec := do(s, http.MethodGet, "/v1/whoami", "tok")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	clock.Advance(61 * time.Second)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/v1/whoami", "tok").Code)
}
