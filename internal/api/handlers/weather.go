package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"skyguard/internal/core"
	"skyguard/internal/types"
	"skyguard/internal/weather"
)

// RuleManager edits weather rules. *weather.RuleService implements it.
type RuleManager interface {
	List(ctx context.Context) ([]types.WeatherAlertRule, error)
	Create(ctx context.Context, in weather.RuleInput) (*types.WeatherAlertRule, error)
	Update(ctx context.Context, id string, in weather.RuleInput) (*types.WeatherAlertRule, error)
	Toggle(ctx context.Context, id string) (*types.WeatherAlertRule, error)
	Delete(ctx context.Context, id string) error
}

// MonitorRunner runs evaluation cycles. *weather.Evaluator implements it.
type MonitorRunner interface {
	RunCycle(ctx context.Context, locations []types.Location) (*weather.CycleResult, error)
	CurrentConditions(ctx context.Context, lat, lon float64) (*types.Conditions, error)
}

// MonitorAuditor records manual monitor runs. *audit.Monitor implements it.
type MonitorAuditor interface {
	AdminAction(ctx context.Context, actor types.Actor, action string, details map[string]any)
}

// CycleRecorder receives cycle counts. *metrics.Prometheus implements it.
type CycleRecorder interface {
	MonitorCycle(alertsCreated, failures int)
}

// RuleRequest is the body of POST and PUT /v1/weather/rules. Only presence
// is checked here; the rule service owns value validation.
type RuleRequest struct {
	AlertType         types.RuleType          `json:"alert_type" validate:"required"`
	ConditionOperator types.ConditionOperator `json:"condition_operator" validate:"required"`
	ThresholdValue    *float64                `json:"threshold_value" validate:"required"`
	LocationFilter    *string                 `json:"location_filter,omitempty"`
	IsActive          *bool                   `json:"is_active,omitempty"`
	AlertTitle        string                  `json:"alert_title"`
	AlertMessage      string                  `json:"alert_message"`
}

func (req RuleRequest) input() weather.RuleInput {
	return weather.RuleInput{
		AlertType:         req.AlertType,
		ConditionOperator: req.ConditionOperator,
		ThresholdValue:    *req.ThresholdValue,
		LocationFilter:    req.LocationFilter,
		IsActive:          req.IsActive,
		AlertTitle:        req.AlertTitle,
		AlertMessage:      req.AlertMessage,
	}
}

// WeatherHandler serves rule management, the manual monitor trigger and
// current conditions.
type WeatherHandler struct {
	rules     RuleManager
	monitor   MonitorRunner
	auditor   MonitorAuditor
	recorder  CycleRecorder
	locations []types.Location
	validator *core.Validator
	logger    *slog.Logger
}

// NewWeatherHandler creates a WeatherHandler. locations is the configured
// monitoring list used by manual runs. auditor and recorder may be nil.
func NewWeatherHandler(rules RuleManager, monitor MonitorRunner, auditor MonitorAuditor, recorder CycleRecorder,
	locations []types.Location, v *core.Validator, l *slog.Logger) *WeatherHandler {
	if l == nil {
		l = slog.Default()
	}
	return &WeatherHandler{
		rules:     rules,
		monitor:   monitor,
		auditor:   auditor,
		recorder:  recorder,
		locations: locations,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts /weather.
func (h *WeatherHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Route("/weather", func(r chi.Router) {
		r.Route("/rules", func(r chi.Router) {
			r.Use(g.Admin)
			r.Get("/", h.ListRules)
			r.Post("/", h.CreateRule)
			r.Put("/{id}", h.UpdateRule)
			r.Delete("/{id}", h.DeleteRule)
			r.Post("/{id}/toggle", h.ToggleRule)
		})
		r.With(g.AdminOrSystem).Post("/monitor/run", h.RunMonitor)
		r.Get("/current", h.Current)
	})
}

// ListRules handles GET /v1/weather/rules.
func (h *WeatherHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.List(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if rules == nil {
		rules = []types.WeatherAlertRule{}
	}
	writeData(w, r, http.StatusOK, rules)
}

// CreateRule handles POST /v1/weather/rules.
func (h *WeatherHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRule(w, r)
	if !ok {
		return
	}
	rule, err := h.rules.Create(r.Context(), req.input())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, rule)
}

// UpdateRule handles PUT /v1/weather/rules/{id}.
func (h *WeatherHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	req, ok := h.decodeRule(w, r)
	if !ok {
		return
	}
	rule, err := h.rules.Update(r.Context(), id, req.input())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, rule)
}

// ToggleRule handles POST /v1/weather/rules/{id}/toggle.
func (h *WeatherHandler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	rule, err := h.rules.Toggle(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, rule)
}

// DeleteRule handles DELETE /v1/weather/rules/{id}.
func (h *WeatherHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.rules.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WeatherHandler) decodeRule(w http.ResponseWriter, r *http.Request) (RuleRequest, bool) {
	var req RuleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return req, false
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return req, false
	}
	return req, true
}

// RunMonitor handles POST /v1/weather/monitor/run. Per-location failures
// are part of the 200 response; only a failure to load rules is an error.
func (h *WeatherHandler) RunMonitor(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.monitor.RunCycle(r.Context(), h.locations)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if h.recorder != nil {
		h.recorder.MonitorCycle(result.AlertsCreated, result.Failures)
	}
	if h.auditor != nil {
		h.auditor.AdminAction(r.Context(), actor, types.ActionMonitorTriggered, map[string]any{
			"locations":      result.LocationsChecked,
			"alerts_created": result.AlertsCreated,
			"failures":       result.Failures,
		})
	}
	writeData(w, r, http.StatusOK, result)
}

// Current handles GET /v1/weather/current?lat=..&lon=..
func (h *WeatherHandler) Current(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if latErr != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidLat, "lat must be a number", latErr))
		return
	}
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if lonErr != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidLon, "lon must be a number", lonErr))
		return
	}

	conditions, err := h.monitor.CurrentConditions(r.Context(), lat, lon)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, conditions)
}
