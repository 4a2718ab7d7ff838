// Package handler exposes the admin controls for nation dump ingestion.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"openletter/internal/audit"
	"openletter/internal/dump"
	dErrors "openletter/pkg/domain-errors"
	"openletter/pkg/platform/httputil"
	"openletter/pkg/requestcontext"
)

// Ingester is the part of the pipeline the admin surface drives.
type Ingester interface {
	Trigger(ctx context.Context) error
	Status() dump.Status
}

// Counter reports how many nations are cached.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Auditor interface {
	Emit(ctx context.Context, e audit.Event)
}

type StatusResponse struct {
	dump.Status
	CacheEntries int `json:"cache_entries"`
}

type TriggerResponse struct {
	Message string `json:"message"`
}

type Handler struct {
	ingester Ingester
	cache    Counter
	auditor  Auditor
	logger   *slog.Logger
}

func New(ingester Ingester, cache Counter, auditor Auditor, logger *slog.Logger) *Handler {
	return &Handler{ingester: ingester, cache: cache, auditor: auditor, logger: logger}
}

// Register mounts the ingest routes. Callers guard them with the admin session.
func (h *Handler) Register(r chi.Router) {
	r.Post("/ingest", h.HandleTrigger)
	r.Get("/ingest/status", h.HandleStatus)
}

// HandleTrigger starts a run and answers 202, or 409 when one is in progress.
func (h *Handler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if err := h.ingester.Trigger(ctx); err != nil {
		if errors.Is(err, dump.ErrAlreadyRunning) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "ingestion already running"))
			return
		}
		if errors.Is(err, dump.ErrShuttingDown) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "server is shutting down"))
			return
		}
		h.logger.ErrorContext(ctx, "failed to trigger ingestion",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to trigger ingestion"))
		return
	}

	h.auditor.Emit(ctx, audit.Event{Action: audit.ActionIngestTriggered})
	h.logger.InfoContext(ctx, "ingestion triggered",
		"request_id", requestID,
		"admin", requestcontext.AdminSubject(ctx),
	)
	httputil.WriteJSON(w, http.StatusAccepted, TriggerResponse{Message: "ingestion started"})
}

// HandleStatus reports the pipeline state. A failing count is logged and
// reported as -1 so the pipeline state is still visible.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{Status: h.ingester.Status()}

	count, err := h.cache.Count(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to count nation cache",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		count = -1
	}
	resp.CacheEntries = count
	httputil.WriteJSON(w, http.StatusOK, resp)
}
