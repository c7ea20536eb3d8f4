package core

import (
	"context"
	"net/http"
	"time"

	"skyguard/internal/types"
)

// Authenticator decouples the HTTP layer from token verification.
// *auth.Authenticator implements it.
type Authenticator interface {
	// ResolveToken returns the Actor for a bearer token. Errors carry
	// auth_token_invalid or auth_token_expired.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)

	// RecordFailure reports a rejected credential so repeated failures from
	// one address can be flagged.
	RecordFailure(ctx context.Context, reason, ip, userAgent string)
}

// AccessAuditor records authorization denials. *audit.Monitor implements it.
type AccessAuditor interface {
	UnauthorizedAccess(ctx context.Context, actor types.Actor, method, path string)
}

// MetricsCollector records per-request telemetry. *metrics.Prometheus
// implements it.
type MetricsCollector interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
	Handler() http.Handler
}
