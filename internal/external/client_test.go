package external

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"skyguard/internal/types"
)

func noSleep(context.Context, time.Duration) error { return nil }

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond}
}

func newTestClient(opts ...BaseClientOption) *BaseClient {
	opts = append([]BaseClientOption{WithSleepFunc(noSleep)}, opts...)
	return NewBaseClient(&http.Client{Timeout: 5 * time.Second}, "test", fastPolicy(), "SkyGuard-Test/1.0", opts...)
}

func TestDo_SuccessSetsHeaders(t *testing.T) {
	var gotUA, gotTrace string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotTrace = r.Header.Get("X-Request-ID")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	ctx := types.WithRequestID(context.Background(), "req-42")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := newTestClient().Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("unexpected body %q", body)
	}
	if gotUA != "SkyGuard-Test/1.0" {
		t.Errorf("user agent = %q", gotUA)
	}
	if gotTrace != "req-42" {
		t.Errorf("request id = %q", gotTrace)
	}
}

func TestDo_RetriesServerErrorsAndReplaysBody(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if string(b) != `{"x":1}` {
			t.Errorf("attempt %d got body %q", calls.Load()+1, b)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"x":1}`))
	resp, err := newTestClient().Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestDo_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := newTestClient().Do(req)
	if err != nil {
		t.Fatalf("4xx should be returned as a response, got %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || calls.Load() != 1 {
		t.Errorf("status=%d calls=%d", resp.StatusCode, calls.Load())
	}
}

func TestDo_ExhaustedRetriesUseUpstreamCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, err := newTestClient(WithUpstreamCode(types.ErrCodeUpstreamWeather)).Do(req)
	if !types.IsCode(err, types.ErrCodeUpstreamWeather) {
		t.Fatalf("expected upstream weather error, got %v", err)
	}
}

func TestDo_TooManyRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	var waits []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, err := newTestClient(WithSleepFunc(sleep)).Do(req)
	if !types.IsCode(err, types.ErrCodeUpstreamRateLimited) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
	// Retry-After of 1s is clamped to MaxWait.
	for _, w := range waits {
		if w != 5*time.Millisecond {
			t.Errorf("unexpected wait %v", w)
		}
	}
}

func TestDo_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(WithBreaker(NewBreaker("tight", 1)))
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		_, _ = client.Do(req)
	}
	// The breaker trips after the second failure; later calls never reach the server.
	if calls.Load() != 2 {
		t.Errorf("expected 2 upstream calls before the breaker opened, got %d", calls.Load())
	}
}

func TestDo_CancelledContextStopsRetrying(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stop := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	_, err := newTestClient(WithSleepFunc(stop)).Do(req)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(types.NewAppError(types.ErrCodeDeliveryRejected, "bad number", nil)) {
		t.Error("rejections are terminal")
	}
	if !IsRetryable(types.NewAppError(types.ErrCodeUpstreamDelivery, "timeout", nil)) {
		t.Error("upstream outages are retryable")
	}
}
