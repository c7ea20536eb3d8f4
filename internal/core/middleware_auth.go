package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"skyguard/internal/types"
)

// AuthMiddleware resolves the bearer token to an Actor and stores it in the
// request context, along with the caller's IP and user agent. Failures are
// reported to the Authenticator and answered with 401.
//
// With no Authenticator configured the middleware passes through.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil || s.isPublicPath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		ip := extractClientIP(r)
		ua := r.UserAgent()

		token := extractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthRequired, "Bearer token is required")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil || actor == nil {
			code, message, reason := classifyAuthError(err)
			s.logger(r).Warn("authentication failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("error_code", string(code)),
			)
			s.Authenticator.RecordFailure(r.Context(), reason, ip, ua)
			s.writeAuthError(w, r, code, message)
			return
		}

		a := *actor
		a.IPAddress = ip
		a.UserAgent = ua
		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), a)))
	})
}

func classifyAuthError(err error) (types.ErrorCode, string, string) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthTokenExpired:
			return types.ErrCodeAuthTokenExpired, "Authentication token has expired", "token_expired"
		case types.ErrCodeAuthTokenInvalid:
			return types.ErrCodeAuthTokenInvalid, "Invalid authentication token", "token_invalid"
		}
	}
	return types.ErrCodeAuthTokenInvalid, "Authentication failed", "resolution_error"
}

// extractBearerToken returns the token from "Bearer <token>". The scheme is
// case-insensitive (RFC 7235).
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	Error(w, r, types.NewAppError(code, message, nil))
}

// RequireRole admits user actors holding role. Admins satisfy any role.
// The scheduler's machine identity is rejected; routes it may call use
// RequireRoleOrSystem. Denials are audited.
func (s *Server) RequireRole(role types.UserRole) func(http.Handler) http.Handler {
	return s.requireRole(role, false)
}

// RequireRoleOrSystem is RequireRole that also admits system actors.
func (s *Server) RequireRoleOrSystem(role types.UserRole) func(http.Handler) http.Handler {
	return s.requireRole(role, true)
}

func (s *Server) requireRole(role types.UserRole, allowSystem bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := types.GetActor(r.Context())
			if !ok {
				s.writeAuthError(w, r, types.ErrCodeAuthRequired, "Authentication required")
				return
			}

			if actor.Type == types.ActorTypeSystem {
				if allowSystem {
					next.ServeHTTP(w, r)
					return
				}
				s.deny(w, r, actor)
				return
			}

			if actor.Role != role && !actor.IsAdmin() {
				s.deny(w, r, actor)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser rejects the machine identity on routes that only make sense
// for a person (their alerts, their preferences).
func (s *Server) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok {
			s.writeAuthError(w, r, types.ErrCodeAuthRequired, "Authentication required")
			return
		}
		if actor.Type != types.ActorTypeUser {
			s.deny(w, r, actor)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) deny(w http.ResponseWriter, r *http.Request, actor types.Actor) {
	if s.Auditor != nil {
		s.Auditor.UnauthorizedAccess(r.Context(), actor, r.Method, r.URL.Path)
	}
	Error(w, r, types.NewAppError(types.ErrCodePermissionRole, "Insufficient role for this operation", nil))
}

func (s *Server) logger(r *http.Request) *slog.Logger {
	return types.LoggerFromContext(r.Context(), s.Logger)
}
