// Package handler exposes the admin control for refreshing one cached nation.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"openletter/internal/audit"
	"openletter/internal/nation"
	"openletter/internal/nation/models"
	id "openletter/pkg/domain"
	dErrors "openletter/pkg/domain-errors"
	"openletter/pkg/platform/httputil"
	"openletter/pkg/requestcontext"
)

type Refresher interface {
	Policy() nation.MissPolicy
	Refresh(ctx context.Context, name string) (models.DisplayData, error)
}

type Auditor interface {
	Emit(ctx context.Context, e audit.Event)
}

type RefreshResponse struct {
	Nation string `json:"nation"`
	models.DisplayData
}

type Handler struct {
	nations Refresher
	auditor Auditor
	logger  *slog.Logger
}

func New(nations Refresher, auditor Auditor, logger *slog.Logger) *Handler {
	return &Handler{nations: nations, auditor: auditor, logger: logger}
}

// Register mounts the refresh route. Callers guard it with the admin session.
func (h *Handler) Register(r chi.Router) {
	r.Post("/nations/{nation}/refresh", h.HandleRefresh)
}

// HandleRefresh re-fetches one nation upstream. It needs the live miss
// policy; with bulk-only population the dump is the sole writer and the
// route answers 409.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	name, err := id.ParseNationName(chi.URLParam(r, "nation"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if h.nations.Policy() != nation.MissPolicyLive {
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "live nation lookups are disabled"))
		return
	}

	data, err := h.nations.Refresh(ctx, name.String())
	if err != nil {
		if errors.Is(err, nation.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "nation not found upstream"))
			return
		}
		h.logger.ErrorContext(ctx, "failed to refresh nation",
			"request_id", requestcontext.RequestID(ctx),
			"nation", name.String(),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to refresh nation"))
		return
	}

	h.auditor.Emit(ctx, audit.Event{Action: audit.ActionNationRefreshed, Nation: name.String()})
	httputil.WriteJSON(w, http.StatusOK, RefreshResponse{Nation: name.String(), DisplayData: data})
}
