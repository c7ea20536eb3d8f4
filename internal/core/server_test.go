package core

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyguard/internal/config"
	"skyguard/internal/ratelimit"
	"skyguard/internal/types"
)

var serverNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := &config.Config{Environment: "local"}
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Observability.MetricsPath = "/metrics"
	cfg.Build.Version = "1.2.3"
	return cfg
}

func adminActor() *types.Actor {
	return &types.Actor{ID: "admin-1", Type: types.ActorTypeUser, Role: types.RoleAdmin}
}

func employeeActor() *types.Actor {
	return &types.Actor{ID: "emp-1", Type: types.ActorTypeUser, Role: types.RoleEmployee}
}

// newTestServer mounts /v1/whoami (any user) and /v1/admin (admin only).
func newTestServer(t *testing.T, authn Authenticator) (*Server, *MockMetrics, *MockAccessAuditor) {
	t.Helper()
	s, err := NewServer(testConfig(), testLogger())
	require.NoError(t, err)
	s.Clock = &types.FixedClock{T: serverNow}

	metrics := &MockMetrics{}
	auditor := &MockAccessAuditor{}
	s.Metrics = metrics
	s.Auditor = auditor
	s.Authenticator = authn
	s.V1RouteRegistrars = append(s.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
			actor, _ := types.GetActor(r.Context())
			JSON(w, r, http.StatusOK, map[string]string{"id": actor.ID, "ip": actor.IPAddress})
		})
		r.With(s.RequireRole(types.RoleAdmin)).Get("/admin", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		r.With(s.RequireRoleOrSystem(types.RoleAdmin)).Post("/jobs/{name}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		})
		r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })
	})
	s.MountRoutes()
	return s, metrics, auditor
}

func do(s *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "10.0.0.7:5555"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestNewServer_RequiresConfigAndLogger(t *testing.T) {
	_, err := NewServer(nil, testLogger())
	assert.Error(t, err)
	_, err = NewServer(testConfig(), nil)
	assert.Error(t, err)
}

func TestServer_AuthenticatedRequest(t *testing.T) {
	s, metrics, _ := newTestServer(t, &MockAuthenticator{Actor: employeeActor()})

	rec := do(s, http.MethodGet, "/v1/whoami", "tok")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"emp-1","ip":"10.0.0.7"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	require.Len(t, metrics.Requests, 1)
	assert.Equal(t, ObservedRequest{Method: "GET", Route: "/v1/whoami", Status: 200}, metrics.Requests[0])
}

func TestServer_MetricsUseRoutePattern(t *testing.T) {
	s, metrics, _ := newTestServer(t, &MockAuthenticator{Actor: adminActor()})

	do(s, http.MethodPost, "/v1/jobs/weather", "tok")
	do(s, http.MethodPost, "/v1/jobs/archive", "tok")

	require.Len(t, metrics.Requests, 2)
	assert.Equal(t, "/v1/jobs/{name}", metrics.Requests[0].Route)
	assert.Equal(t, metrics.Requests[0].Route, metrics.Requests[1].Route)
	assert.Equal(t, http.StatusAccepted, metrics.Requests[1].Status)
}

func TestServer_PublicPathsSkipAuth(t *testing.T) {
	authn := &MockAuthenticator{}
	s, _, _ := newTestServer(t, authn)

	rec := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","version":"1.2.3"}`, rec.Body.String())

	rec = do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, authn.Calls)
}

func TestServer_PanicRecovered(t *testing.T) {
	s, _, _ := newTestServer(t, &MockAuthenticator{Actor: employeeActor()})

	rec := do(s, http.MethodGet, "/v1/boom", "tok")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), decodeError(t, rec).Code)
}

func TestServer_APIRateLimit(t *testing.T) {
	s, _, _ := newTestServer(t, &MockAuthenticator{Actor: employeeActor()})
	limiter := &MockLimiter{Decision: ratelimit.Decision{
		Allowed: false, Limit: 120, Remaining: 0, ResetAt: serverNow.Add(42 * time.Second),
	}}
	s.APILimiter = limiter

	rec := do(s, http.MethodGet, "/v1/whoami", "tok")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
	assert.Equal(t, "120", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, []string{"api:emp-1"}, limiter.Keys)
}
