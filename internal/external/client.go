// Package external holds the clients for third-party services: the weather
// data source and the SMS, email and push delivery providers. HTTP providers
// go through BaseClient, which applies circuit breaking, retries and error
// mapping uniformly.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"skyguard/internal/types"
)

// RetryPolicy controls BaseClient retries.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns the policy used by provider clients.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// BaseClient wraps an *http.Client with a circuit breaker and retry loop so
// every HTTP provider (weather, push) fails the same way. Retries happen on
// 429 and 5xx only; other 4xx responses belong to the caller.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	// upstreamCode is the error code used when the upstream stays unhealthy.
	upstreamCode types.ErrorCode
	// sleepFn waits between attempts and returns early when ctx ends.
	sleepFn func(context.Context, time.Duration) error
}

// BaseClientOption configures a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc replaces the wait between retries. Tests use it to avoid
// real delays.
func WithSleepFunc(fn func(context.Context, time.Duration) error) BaseClientOption {
	return func(c *BaseClient) { c.sleepFn = fn }
}

// WithUpstreamCode sets the error code reported once retries are exhausted.
func WithUpstreamCode(code types.ErrorCode) BaseClientOption {
	return func(c *BaseClient) { c.upstreamCode = code }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) BaseClientOption {
	return func(c *BaseClient) { c.breaker = cb }
}

// NewBreaker builds the breaker used by provider clients: it opens after
// more than tripAfter consecutive failures and probes again after 30s.
func NewBreaker(name string, tripAfter uint32) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > tripAfter
		},
		IsSuccessful: func(err error) bool { return err == nil },
	})
}

// NewBaseClient creates a BaseClient named for its circuit breaker.
func NewBaseClient(httpClient *http.Client, name string, policy RetryPolicy, userAgent string, opts ...BaseClientOption) *BaseClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	bc := &BaseClient{
		client:       httpClient,
		breaker:      NewBreaker(name, 5),
		retryPolicy:  policy,
		userAgent:    userAgent,
		upstreamCode: types.ErrCodeUpstreamUnavailable,
		sleepFn:      sleepCtx,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// sleepCtx is the default sleepFn. Unlike time.Sleep it gives up as soon as
// the request context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do executes req with:
//  1. request id propagation (X-Request-ID from context)
//  2. User-Agent injection
//  3. circuit breaker wrapping
//  4. retry on 429 and 5xx, honoring Retry-After
//  5. error mapping to types.AppError
//
// Any other response (2xx, 3xx, 4xx except 429) is returned as-is and the
// caller closes its body. When the breaker is open or retries are exhausted
// Do returns an AppError carrying the client's upstream code.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if traceID := types.GetRequestID(req.Context()); traceID != "" {
		req.Header.Set("X-Request-ID", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// Buffer the body so each attempt can replay it.
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to buffer request body", err)
		}
	}

	var lastResp *http.Response
	var lastErr error
	attempts := 1 + c.retryPolicy.MaxRetries

	for attempt := 0; attempt < attempts; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			// 5xx and 429 count against the breaker; the response is still
			// returned so backoff can read Retry-After.
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		// Keep only the newest failed response open; mapError inspects it.
		if lastResp != nil {
			lastResp.Body.Close()
		}
		lastResp, lastErr = resp, err

		// An open breaker fails fast; retrying would only hit it again.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if req.Context().Err() != nil {
			break
		}
		if attempt < attempts-1 {
			// A cancelled wait ends the loop with the last upstream error.
			if err := c.sleepFn(req.Context(), c.backoff(attempt, resp)); err != nil {
				break
			}
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

// backoff honors Retry-After (seconds or HTTP date) and otherwise uses
// jittered exponential backoff bounded by the policy.
func (c *BaseClient) backoff(attempt int, resp *http.Response) time.Duration {
	p := c.retryPolicy
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				return min(time.Duration(secs)*time.Second, p.MaxWait)
			}
			if at, err := http.ParseTime(ra); err == nil {
				wait := time.Until(at)
				if wait <= 0 {
					return p.MinWait
				}
				return min(wait, p.MaxWait)
			}
		}
	}

	// Jitter is drawn from [MinWait, min(MaxWait, MinWait*2^attempt)] so
	// clients that failed together do not retry in lockstep.
	ceiling := math.Min(float64(p.MinWait)*math.Pow(2, float64(attempt)), float64(p.MaxWait))
	if ceiling <= float64(p.MinWait) {
		return p.MinWait
	}
	return time.Duration(float64(p.MinWait) + rand.Float64()*(ceiling-float64(p.MinWait)))
}

// mapError translates the final transport failure into an AppError. Upstream
// 429 keeps its own code so callers can back off longer; everything else
// uses the client's upstream code.
func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return types.NewAppError(c.upstreamCode, "circuit breaker open", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return types.NewAppError(c.upstreamCode, "upstream request timed out", err)
	case resp != nil && resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err)
	case resp != nil && resp.StatusCode >= 500:
		return types.NewAppError(c.upstreamCode, fmt.Sprintf("upstream returned %d after retries", resp.StatusCode), err)
	}
	return types.NewAppError(c.upstreamCode, "upstream request failed", err)
}

// IsRetryable reports whether a provider error may succeed on a later
// attempt. Rejections and validation failures are terminal. Errors that are
// not AppErrors come from the transport and are assumed transient.
func IsRetryable(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return true
	}
	switch appErr.Code {
	case types.ErrCodeDeliveryRejected, types.ErrCodeValidationPhone:
		return false
	}
	return true
}
