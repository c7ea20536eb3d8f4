package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"skyguard/internal/ratelimit"
)

// validateTimeout bounds each active check, DNS and TLS included.
const validateTimeout = 15 * time.Second

// defaultWeatherBaseURL is overridden in tests with an httptest server.
const defaultWeatherBaseURL = "https://api.openweathermap.org"

// ValidationResult is a pass/fail verdict with a message for the operator.
type ValidationResult struct {
	Valid   bool
	Message string
}

func invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Message: fmt.Sprintf(format, args...)}
}

// HTTPClient is the outbound client used by key checks.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector opens and immediately closes a connection to dsn.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector verifies a DSN with a real pgx connection. A single
// connection is used instead of a pool so a bad password fails once instead
// of once per pool member.
type PgxConnector struct{}

// Connect dials dsn and closes the connection straight away.

func (PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// Validator holds the clients the active checks use.
type Validator struct {
	httpClient     HTTPClient
	dbConn         DatabaseConnector
	weatherBaseURL string
}

// NewValidator creates a Validator with production dependencies.
func NewValidator() *Validator {
	return NewValidatorWithDeps(&http.Client{Timeout: 10 * time.Second}, PgxConnector{}, defaultWeatherBaseURL)
}

// NewValidatorWithDeps creates a Validator with injected dependencies.
func NewValidatorWithDeps(httpClient HTTPClient, dbConn DatabaseConnector, weatherBaseURL string) *Validator {
	return &Validator{httpClient: httpClient, dbConn: dbConn, weatherBaseURL: strings.TrimRight(weatherBaseURL, "/")}
}

// ValidateDatabaseURL checks the scheme and then connects with the DSN.
//
// The static checks run first so a typo is reported without waiting out a
// DNS or TCP timeout. Connect errors from pgx never include the password.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return invalid("invalid URL format: %v", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return invalid("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return invalid("database URL has no host")
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
		return invalid("connection failed: %v", err)
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("database connection verified (host=%s)", parsed.Hostname())}
}

// ValidateWeatherKey calls the current-conditions endpoint once at (0, 0).
// A 401 means the key is wrong. Any other non-200 status is also rejected,
// with a short excerpt of the body so the operator can tell a bad key from a
// plan limit (429) or an outage.
func (v *Validator) ValidateWeatherKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if len(key) < 16 {
		return invalid("OpenWeather API key looks too short (%d chars)", len(key))
	}

	reqCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	// The key rides in the query string, so the URL is never logged.
	q := url.Values{"lat": {"0"}, "lon": {"0"}, "appid": {key}}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, v.weatherBaseURL+"/data/2.5/weather?"+q.Encode(), nil)
	if err != nil {
		return invalid("building request: %v", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return invalid("OpenWeather unreachable: %v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return ValidationResult{Valid: true, Message: "OpenWeather API key verified"}
	case http.StatusUnauthorized:
		return invalid("OpenWeather rejected the key (401)")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return invalid("unexpected OpenWeather response %d: %s", resp.StatusCode, string(body))
	}
}

// ValidateRedisURL parses the URL and pings the server. It uses the same
// constructor as the API, so a URL that passes here also parses at startup.
func (v *Validator) ValidateRedisURL(ctx context.Context, rawURL string) ValidationResult {
	client, err := ratelimit.NewRedisClient(strings.TrimSpace(rawURL))
	if err != nil {
		return invalid("%v", err)
	}
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return invalid("redis ping failed: %v", err)
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("redis reachable at %s", client.Options().Addr)}
}

// ValidateMinLength accepts any value of at least n characters. It is for
// credentials with no cheap endpoint to check against.
func (v *Validator) ValidateMinLength(n int, field string) func(context.Context, string) ValidationResult {
	return func(_ context.Context, input string) ValidationResult {
		if len(strings.TrimSpace(input)) < n {
			return invalid("%s must be at least %d characters", field, n)
		}
		return ValidationResult{Valid: true, Message: field + " accepted"}
	}
}
