package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"skyguard/internal/core"
	"skyguard/internal/directory"
	"skyguard/internal/types"
)

// UserDirectory manages profiles and preferences. *directory.Service
// implements it.
type UserDirectory interface {
	ListUsers(ctx context.Context, limit, offset int) ([]directory.User, error)
	GetPreferences(ctx context.Context, userID string) (*types.Preferences, error)
	UpdatePreferences(ctx context.Context, userID string, patch types.PreferencesPatch) (*types.Preferences, error)
	ChangeRole(ctx context.Context, targetID string, role types.UserRole) (*types.Profile, error)
	UpdatePhone(ctx context.Context, targetID, phone string) (*types.Profile, error)
}

// ChangeRoleRequest is the body of PUT /v1/users/{id}/role.
type ChangeRoleRequest struct {
	Role types.UserRole `json:"role" validate:"required,user_role"`
}

// UpdatePhoneRequest is the body of PUT /v1/users/{id}/phone. An empty
// number clears it.
type UpdatePhoneRequest struct {
	PhoneNumber string `json:"phone_number" validate:"phone_number"`
}

// UserHandler serves user management and the caller's own preferences.
type UserHandler struct {
	directory UserDirectory
	validator *core.Validator
	logger    *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(dir UserDirectory, v *core.Validator, l *slog.Logger) *UserHandler {
	if l == nil {
		l = slog.Default()
	}
	return &UserHandler{directory: dir, validator: v, logger: l}
}

// RegisterRoutes mounts /users and /preferences.
func (h *UserHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Route("/users", func(r chi.Router) {
		r.With(g.Admin).Get("/", h.List)
		r.With(g.Admin).Put("/{id}/role", h.ChangeRole)
		// Self or admin; the service enforces which.
		r.With(g.User).Put("/{id}/phone", h.UpdatePhone)
	})
	r.With(g.User).Get("/preferences", h.GetPreferences)
	r.With(g.User).Patch("/preferences", h.UpdatePreferences)
}

// List handles GET /v1/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := core.ParsePage(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	users, err := h.directory.ListUsers(r.Context(), limit+1, offset)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, types.NewListResponse(users, offset, limit))
}

// ChangeRole handles PUT /v1/users/{id}/role.
func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r, "id")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	var req ChangeRoleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	profile, err := h.directory.ChangeRole(r.Context(), targetID, req.Role)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, profile)
}

// UpdatePhone handles PUT /v1/users/{id}/phone.
func (h *UserHandler) UpdatePhone(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r, "id")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	var req UpdatePhoneRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	profile, err := h.directory.UpdatePhone(r.Context(), targetID, req.PhoneNumber)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, profile)
}

// GetPreferences handles GET /v1/preferences.
func (h *UserHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	prefs, err := h.directory.GetPreferences(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, prefs)
}

// UpdatePreferences handles PATCH /v1/preferences. Omitted fields keep
// their value.
func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	var patch types.PreferencesPatch
	if err := core.DecodeJSON(w, r, &patch); err != nil {
		core.Error(w, r, err)
		return
	}

	prefs, err := h.directory.UpdatePreferences(r.Context(), actor.ID, patch)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, prefs)
}
