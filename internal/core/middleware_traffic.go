package core

import (
	"log/slog"
	"net/http"
	"strconv"

	"skyguard/internal/ratelimit"
	"skyguard/internal/types"
)

// apiLimitKey is the limiter key for general API traffic from actorID.
// It is distinct from the send_alert quota enforced by the alert engine.
func apiLimitKey(actorID string) string {
	return "api:" + actorID
}

// RateLimit applies the per-actor API quota. Unauthenticated requests pass
// (AuthMiddleware has already answered them) and limiter errors fail open.
//
// Every limited response carries X-RateLimit-Limit, X-RateLimit-Remaining
// and X-RateLimit-Reset; rejections add Retry-After.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.APILimiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		actor, ok := types.GetActor(r.Context())
		if !ok || actor.Type == types.ActorTypeSystem {
			next.ServeHTTP(w, r)
			return
		}

		decision, err := s.APILimiter.Allow(r.Context(), apiLimitKey(actor.ID))
		if err != nil {
			s.logger(r).Error("rate limiter unavailable, allowing request",
				slog.String("actor_id", actor.ID),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, decision)
		if !decision.Allowed {
			retry := decision.RetryAfter(s.now())
			s.logger(r).Warn("api rate limit exceeded",
				slog.String("actor_id", actor.ID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
			Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeRateLimit,
				"Rate limit exceeded. Please retry after the reset time.", nil,
				map[string]any{"retry_after_seconds": int(retry.Seconds())}))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}
