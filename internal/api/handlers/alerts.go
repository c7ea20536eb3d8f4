package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"skyguard/internal/alerting"
	"skyguard/internal/core"
	"skyguard/internal/receipts"
	"skyguard/internal/types"
)

// AlertSender is the fan-out entry point. *alerting.Engine implements it.
type AlertSender interface {
	SendAlert(ctx context.Context, req alerting.SendRequest) (*alerting.SendResult, error)
}

// ReceiptTracker serves alert listings, receipts and stats.
// *receipts.Tracker implements it.
type ReceiptTracker interface {
	MarkAlertAsRead(ctx context.Context, alertID, userID string) error
	GetReadReceipts(ctx context.Context, alertID string) (*receipts.Receipts, error)
	GetUserAlerts(ctx context.Context, userID string, limit, offset int) ([]types.UserAlert, error)
	GetAllAlerts(ctx context.Context, limit, offset int) ([]types.AlertSummary, error)
	GetStats(ctx context.Context) (*types.Stats, error)
}

// SendAlertRequest is the body of POST /v1/alerts. Field-level rules
// (lengths, enums) are enforced by alerting.ValidateRequest so the API and
// the weather monitor share them.
type SendAlertRequest struct {
	Type       types.AlertType      `json:"type" validate:"required"`
	Title      string               `json:"title" validate:"required"`
	Message    string               `json:"message" validate:"required"`
	Priority   types.Priority       `json:"priority" validate:"required"`
	Recipients types.TargetSpec     `json:"recipients" validate:"required"`
	Channel    types.DeliveryMethod `json:"channel,omitempty"`
}

// AlertHandler serves the alert endpoints.
type AlertHandler struct {
	sender    AlertSender
	tracker   ReceiptTracker
	validator *core.Validator
	logger    *slog.Logger
}

// NewAlertHandler creates an AlertHandler.
func NewAlertHandler(sender AlertSender, tracker ReceiptTracker, v *core.Validator, l *slog.Logger) *AlertHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AlertHandler{sender: sender, tracker: tracker, validator: v, logger: l}
}

// RegisterRoutes mounts the alert and stats routes.
func (h *AlertHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Route("/alerts", func(r chi.Router) {
		r.With(g.Admin).Post("/", h.Send)
		r.With(g.Admin).Get("/", h.ListAll)
		r.With(g.User).Get("/mine", h.ListMine)
		r.With(g.User).Post("/{id}/read", h.MarkRead)
		r.With(g.Admin).Get("/{id}/receipts", h.Receipts)
	})
	r.With(g.Admin).Get("/stats", h.Stats)
}

// Send handles POST /v1/alerts. A partial fan-out still answers 201; the
// result reports how many recipients were enrolled.
func (h *AlertHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendAlertRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.sender.SendAlert(r.Context(), alerting.SendRequest{
		Type:       req.Type,
		Title:      req.Title,
		Message:    req.Message,
		Priority:   req.Priority,
		Recipients: req.Recipients,
		Channel:    req.Channel,
		Source:     "api",
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, result)
}

// ListAll handles GET /v1/alerts: every alert with recipient and read
// counts, newest first.
func (h *AlertHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := core.ParsePage(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	alerts, err := h.tracker.GetAllAlerts(r.Context(), limit+1, offset)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, types.NewListResponse(alerts, offset, limit))
}

// ListMine handles GET /v1/alerts/mine.
func (h *AlertHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	limit, offset, err := core.ParsePage(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	alerts, err := h.tracker.GetUserAlerts(r.Context(), actor.ID, limit+1, offset)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, types.NewListResponse(alerts, offset, limit))
}

// MarkRead handles POST /v1/alerts/{id}/read. Repeat calls succeed without
// moving read_at.
func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	alertID, err := pathID(r, "id")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.tracker.MarkAlertAsRead(r.Context(), alertID, actor.ID); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Receipts handles GET /v1/alerts/{id}/receipts.
func (h *AlertHandler) Receipts(w http.ResponseWriter, r *http.Request) {
	alertID, err := pathID(r, "id")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	rec, err := h.tracker.GetReadReceipts(r.Context(), alertID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, rec)
}

// Stats handles GET /v1/stats.
func (h *AlertHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tracker.GetStats(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, stats)
}
