package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	dErrors "openletter/pkg/domain-errors"
	"openletter/pkg/platform/httputil"
	"openletter/pkg/requestcontext"
)

const maxRecentLimit = 500

// Reader reads back persisted events.
type Reader interface {
	Recent(ctx context.Context, action Action, limit int) ([]Event, error)
}

type RecentResponse struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
}

// Handler serves the admin audit view.
type Handler struct {
	reader Reader
	logger *slog.Logger
}

func NewHandler(reader Reader, logger *slog.Logger) *Handler {
	return &Handler{reader: reader, logger: logger}
}

// Register mounts GET /audit. Callers guard it with the admin session.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.HandleRecent)
}

// HandleRecent lists recent events. Query: action (optional), limit (1-500).
func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRecentLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be between 1 and 500"))
			return
		}
		limit = n
	}
	action := Action(r.URL.Query().Get("action"))

	events, err := h.reader.Recent(ctx, action, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read audit events",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit events"))
		return
	}
	if events == nil {
		events = []Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, RecentResponse{Events: events, Total: len(events)})
}
