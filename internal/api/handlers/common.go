// Package handlers contains the HTTP handlers for the SkyGuard API. Each
// handler decodes and validates the request, calls one domain service and
// writes the response envelope; business rules live in the services.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"skyguard/internal/core"
	"skyguard/internal/types"
)

// Guards carries the role middleware handlers attach to their routes.
type Guards struct {
	Admin         func(http.Handler) http.Handler
	AdminOrSystem func(http.Handler) http.Handler
	User          func(http.Handler) http.Handler
}

// NewGuards builds Guards from the server's role middleware.
func NewGuards(s *core.Server) Guards {
	return Guards{
		Admin:         s.RequireRole(types.RoleAdmin),
		AdminOrSystem: s.RequireRoleOrSystem(types.RoleAdmin),
		User:          s.RequireUser,
	}
}

// writeData wraps v in the {"data": ...} envelope.
func writeData(w http.ResponseWriter, r *http.Request, status int, v any) {
	core.JSON(w, r, status, core.APIResponse{Data: v})
}

// pathID returns the named URL parameter after checking it is a UUID.
func pathID(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidID,
			"invalid "+name, err, map[string]any{"value": raw})
	}
	return id.String(), nil
}

// actorFrom returns the authenticated actor. AuthMiddleware guarantees one
// on /v1 routes; the check covers handlers mounted without it.
func actorFrom(r *http.Request) (types.Actor, error) {
	actor, ok := types.GetActor(r.Context())
	if !ok || actor.ID == "" {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil)
	}
	return actor, nil
}
