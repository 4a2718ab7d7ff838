// Package admin gates admin-only routes behind a validated session cookie.
package admin

import (
	"log/slog"
	"net/http"

	request "openletter/pkg/platform/middleware/request"
	"openletter/pkg/requestcontext"
)

// SessionValidator verifies a session token and returns its subject.
type SessionValidator interface {
	ValidateSession(token string) (string, error)
}

// RequireSession rejects requests without a valid session cookie and stores the
// admin subject in the context for the rest.
func RequireSession(validator SessionValidator, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				logger.WarnContext(ctx, "admin session missing",
					"request_id", request.GetRequestID(ctx),
				)
				writeUnauthorized(w)
				return
			}

			subject, err := validator.ValidateSession(cookie.Value)
			if err != nil {
				logger.WarnContext(ctx, "admin session rejected",
					"request_id", request.GetRequestID(ctx),
					"error", err,
				)
				writeUnauthorized(w)
				return
			}

			ctx = requestcontext.WithAdminSubject(ctx, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin session required"}`))
}
