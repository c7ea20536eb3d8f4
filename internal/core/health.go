package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout bounds all probes of one health check together.
const healthCheckTimeout = 2 * time.Second

// HealthProbe checks one dependency (database, weather API, SNS).
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

// ProbeFunc adapts a function to HealthProbe.
type ProbeFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (p ProbeFunc) Name() string                    { return p.Label }
func (p ProbeFunc) Check(ctx context.Context) error { return p.Fn(ctx) }

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// RunProbes runs probes concurrently under timeout and returns each probe's
// error by name. A probe still running at the deadline reports a timeout; a
// panicking probe reports the panic.
func RunProbes(ctx context.Context, probes []HealthProbe, timeout time.Duration) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]error, len(probes))
		wg      sync.WaitGroup
	)
	for _, probe := range probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()
			var err error
			func() {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("probe panicked: %v", r)
					}
				}()
				err = p.Check(ctx)
			}()
			mu.Lock()
			results[p.Name()] = err
			mu.Unlock()
		}(probe)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]error, len(probes))
	for _, p := range probes {
		err, ok := results[p.Name()]
		if !ok {
			err = fmt.Errorf("health check timed out")
		}
		out[p.Name()] = err
	}
	return out
}

// HandleHealth serves GET /health: 200 when every probe passes, 503
// otherwise. Public.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}
	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	resp.Components = make(map[string]componentStatus, len(s.HealthProbes))
	for name, err := range RunProbes(r.Context(), s.HealthProbes, healthCheckTimeout) {
		if err != nil {
			resp.Status = "unhealthy"
			resp.Components[name] = componentStatus{Status: "unhealthy", Message: err.Error()}
			continue
		}
		resp.Components[name] = componentStatus{Status: "healthy"}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}
