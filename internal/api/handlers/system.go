package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"skyguard/internal/core"
)

// systemTestTimeout bounds one connectivity test across all channels.
const systemTestTimeout = 5 * time.Second

// Connectivity probe names. Each becomes a boolean in the response.
const (
	ProbeSMS      = "sms"
	ProbePush     = "push"
	ProbeEmail    = "email"
	ProbeWeather  = "weather"
	ProbeDatabase = "database"
)

// SystemHandler serves the admin connectivity test.
type SystemHandler struct {
	probes  []core.HealthProbe
	timeout time.Duration
	logger  *slog.Logger
}

// NewSystemHandler creates a SystemHandler over probes named with the
// Probe* constants. Channels without a probe report false.
func NewSystemHandler(probes []core.HealthProbe, l *slog.Logger) *SystemHandler {
	if l == nil {
		l = slog.Default()
	}
	return &SystemHandler{probes: probes, timeout: systemTestTimeout, logger: l}
}

// RegisterRoutes mounts /system.
func (h *SystemHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.With(g.Admin).Get("/system/test", h.Test)
}

// Test handles GET /v1/system/test. Failures are logged and reported as
// false; the endpoint itself always answers 200.
func (h *SystemHandler) Test(w http.ResponseWriter, r *http.Request) {
	out := map[string]bool{
		ProbeSMS:      false,
		ProbePush:     false,
		ProbeEmail:    false,
		ProbeWeather:  false,
		ProbeDatabase: false,
	}
	for name, err := range core.RunProbes(r.Context(), h.probes, h.timeout) {
		if err != nil {
			h.logger.WarnContext(r.Context(), "connectivity test failed", "component", name, "error", err)
			out[name] = false
			continue
		}
		out[name] = true
	}
	writeData(w, r, http.StatusOK, out)
}
