package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"skyguard/internal/core"
	"skyguard/internal/db"
	"skyguard/internal/types"
)

// AuditReader lists audit entries. Both db.AuditRepository and
// audit.MemoryStore implement it.
type AuditReader interface {
	List(ctx context.Context, f db.AuditFilter) ([]types.AuditLogEntry, error)
}

// AuditHandler serves the admin audit log.
type AuditHandler struct {
	reader AuditReader
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(reader AuditReader, l *slog.Logger) *AuditHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AuditHandler{reader: reader, logger: l}
}

// RegisterRoutes mounts /audit.
func (h *AuditHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.With(g.Admin).Get("/audit", h.List)
}

// List handles GET /v1/audit?event_type=&user_id=&limit=&offset=
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := core.ParsePage(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	f := db.AuditFilter{Limit: limit + 1, Offset: offset}
	if et := r.URL.Query().Get("event_type"); et != "" {
		f.EventType = types.AuditEventType(et)
		if !f.EventType.Valid() {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationEventType,
				"unknown event_type", nil, map[string]any{"value": et}))
			return
		}
	}
	f.UserID = r.URL.Query().Get("user_id")

	entries, err := h.reader.List(r.Context(), f)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, types.NewListResponse(entries, offset, limit))
}
