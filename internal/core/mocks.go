package core

import (
	"context"
	"net/http"
	"sync"
	"time"

	"skyguard/internal/ratelimit"
	"skyguard/internal/types"
)

// MockAuthenticator implements Authenticator for tests. ResolveTokenFunc,
// when set, takes precedence over Err and Actor.
//
//	auth := &MockAuthenticator{Actor: &types.Actor{ID: "u1", Type: types.ActorTypeUser}}
type MockAuthenticator struct {
	Actor            *types.Actor
	Err              error
	ResolveTokenFunc func(ctx context.Context, token string) (*types.Actor, error)

	mu       sync.Mutex
	Calls    []string
	Failures []string
}

func (m *MockAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.ResolveTokenFunc != nil {
		return m.ResolveTokenFunc(ctx, token)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Actor, nil
}

// RecordFailure stores reason for assertion.
func (m *MockAuthenticator) RecordFailure(_ context.Context, reason, _, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures = append(m.Failures, reason)
}

// MockLimiter implements ratelimit.Limiter. AllowFunc overrides the fixed
// Decision and Err.
type MockLimiter struct {
	Decision  ratelimit.Decision
	Err       error
	AllowFunc func(ctx context.Context, key string) (ratelimit.Decision, error)

	mu   sync.Mutex
	Keys []string
}

func (m *MockLimiter) Allow(ctx context.Context, key string) (ratelimit.Decision, error) {
	m.mu.Lock()
	m.Keys = append(m.Keys, key)
	m.mu.Unlock()

	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key)
	}
	return m.Decision, m.Err
}

// ObservedRequest is one MockMetrics observation.
type ObservedRequest struct {
	Method string
	Route  string
	Status int
}

// MockMetrics implements MetricsCollector.
type MockMetrics struct {
	mu       sync.Mutex
	Requests []ObservedRequest
}

func (m *MockMetrics) ObserveRequest(method, route string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, ObservedRequest{Method: method, Route: route, Status: status})
}

func (m *MockMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
}

// MockAccessAuditor implements AccessAuditor.
type MockAccessAuditor struct {
	mu     sync.Mutex
	Denied []string
}

func (m *MockAccessAuditor) UnauthorizedAccess(_ context.Context, actor types.Actor, method, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Denied = append(m.Denied, actor.ID+" "+method+" "+path)
}
