// Package httpapi assembles the HTTP surface: public signature routes, the
// session-guarded admin area, health and metrics.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"openletter/internal/admin"
	"openletter/internal/audit"
	dumphandler "openletter/internal/dump/handler"
	nationhandler "openletter/internal/nation/handler"
	"openletter/internal/platform/metrics"
	"openletter/internal/ratelimit"
	sighandler "openletter/internal/signature/handler"
	"openletter/pkg/platform/httputil"
	adminmw "openletter/pkg/platform/middleware/admin"
	"openletter/pkg/platform/middleware/metadata"
	"openletter/pkg/platform/middleware/request"
	"openletter/pkg/platform/middleware/requesttime"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the handlers and infrastructure the router mounts. Admin, Sessions,
// Ingest, Audit and Nations are optional; without Admin and Sessions no admin routes exist.
// A nil RateLimit disables request limits and a nil Redis skips its health check.
type Deps struct {
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Database    Pinger
	Redis       Pinger
	RateLimit   *ratelimit.Middleware
	SignPolicy  ratelimit.Policy
	LoginPolicy ratelimit.Policy
	Signatures  *sighandler.Handler
	Admin       *admin.Handler
	Sessions    adminmw.SessionValidator
	Ingest      *dumphandler.Handler
	Audit       *audit.Handler
	Nations     *nationhandler.Handler
}

// NewRouter wires every route behind the shared middleware chain.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(chimw.Recoverer)
	r.Use(d.Metrics.Middleware)
	r.Use(accessLog(d.Logger))

	r.Get("/healthz", health(d.Logger, check{"database", d.Database}, check{"redis", d.Redis}))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	d.Signatures.Register(r, d.RateLimit.Limit(d.SignPolicy))

	if d.Admin != nil && d.Sessions != nil {
		r.Route("/admin", func(r chi.Router) {
			d.Admin.Register(r, d.RateLimit.Limit(d.LoginPolicy))
			r.Group(func(r chi.Router) {
				r.Use(adminmw.RequireSession(d.Sessions, d.Admin.CookieName(), d.Logger))
				d.Signatures.RegisterAdmin(r)
				if d.Ingest != nil {
					d.Ingest.Register(r)
				}
				if d.Audit != nil {
					d.Audit.Register(r)
				}
				if d.Nations != nil {
					d.Nations.Register(r)
				}
			})
		})
	}
	return r
}

type check struct {
	name   string
	pinger Pinger
}

func health(logger *slog.Logger, checks ...check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, c := range checks {
			if c.pinger == nil {
				continue
			}
			if err := c.pinger.PingContext(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed",
					"request_id", request.GetRequestID(ctx),
					"dependency", c.name,
					"error", err,
				)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "dependency": c.name})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.DebugContext(r.Context(), "http request",
				"request_id", request.GetRequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}
