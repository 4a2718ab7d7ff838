package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"openletter/internal/audit"
	dErrors "openletter/pkg/domain-errors"
	"openletter/pkg/platform/httputil"
	"openletter/pkg/requestcontext"
)

// DefaultCookieName names the session cookie.
const DefaultCookieName = "openletter_admin"

// Auditor records login attempts.
type Auditor interface {
	Emit(ctx context.Context, e audit.Event)
}

// CookieConfig controls how the session cookie is written.
type CookieConfig struct {
	Name   string
	Secure bool
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Handler serves login and logout.
type Handler struct {
	credentials *Credentials
	sessions    *Sessions
	auditor     Auditor
	cookie      CookieConfig
	logger      *slog.Logger
}

func NewHandler(credentials *Credentials, sessions *Sessions, auditor Auditor, cookie CookieConfig, logger *slog.Logger) *Handler {
	if cookie.Name == "" {
		cookie.Name = DefaultCookieName
	}
	return &Handler{
		credentials: credentials,
		sessions:    sessions,
		auditor:     auditor,
		cookie:      cookie,
		logger:      logger,
	}
}

// CookieName is the cookie RequireSession should read.
func (h *Handler) CookieName() string {
	return h.cookie.Name
}

// Register mounts the session endpoints under the admin prefix. loginGuards
// wrap only the login endpoint.
func (h *Handler) Register(r chi.Router, loginGuards ...func(http.Handler) http.Handler) {
	r.With(loginGuards...).Post("/login", h.HandleLogin)
	r.Post("/logout", h.HandleLogout)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if !h.credentials.Check(req.Username, req.Password) {
		h.logger.WarnContext(ctx, "admin login failed",
			"request_id", requestID,
			"client_ip", requestcontext.ClientIP(ctx),
		)
		h.auditor.Emit(ctx, audit.Event{Action: audit.ActionAdminLoginFailed, Actor: audit.ActorPublic})
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials"))
		return
	}

	token, expires, err := h.sessions.Issue(h.credentials.username)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue admin session",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue session"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/admin",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	h.auditor.Emit(ctx, audit.Event{Action: audit.ActionAdminLogin, Actor: h.credentials.username})
	h.logger.InfoContext(ctx, "admin logged in", "request_id", requestID)
	httputil.WriteJSON(w, http.StatusOK, LoginResponse{Username: h.credentials.username, ExpiresAt: expires})
}

// HandleLogout clears the cookie. Tokens are stateless, so an earlier copy
// stays valid until it expires.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/admin",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
