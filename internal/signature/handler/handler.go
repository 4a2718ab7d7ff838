package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"openletter/internal/signature/models"
	id "openletter/pkg/domain"
	dErrors "openletter/pkg/domain-errors"
	"openletter/pkg/platform/httputil"
	"openletter/pkg/requestcontext"
)

// Service defines the signature operations the handlers need.
type Service interface {
	Sign(ctx context.Context, nation id.NationName, checksum string) (*models.Signature, error)
	List(ctx context.Context) ([]models.SignedEntry, error)
	Delete(ctx context.Context, sigID id.SignatureID) error
	Token(nation id.NationName) string
}

// Handler wires signature endpoints to the signature service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public endpoints. signGuards wrap only the sign
// endpoint.
func (h *Handler) Register(r chi.Router, signGuards ...func(http.Handler) http.Handler) {
	r.Get("/api/signatures", h.HandleList)
	r.With(signGuards...).Post("/api/signatures", h.HandleSign)
	r.Get("/api/token/{nation}", h.HandleToken)
}

// RegisterAdmin mounts the admin endpoints. The caller is responsible for the
// session check.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/signatures", h.HandleAdminList)
	r.Delete("/signatures/{id}", h.HandleDelete)
}

// HandleList handles GET /api/signatures.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	entries, ok := h.list(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEntries(entries))
}

// HandleAdminList handles GET /admin/signatures.
func (h *Handler) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	entries, ok := h.list(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEntriesAdmin(entries))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) ([]models.SignedEntry, bool) {
	entries, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return entries, true
}

// HandleSign handles POST /api/signatures.
func (h *Handler) HandleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[SignRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	nation, err := req.ParsedNation()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	sig, err := h.service.Sign(ctx, nation, req.Checksum)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeVerificationFailed) {
			h.logger.InfoContext(ctx, "signature verification failed",
				"request_id", requestID,
				"nation", nation.String(),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "letter signed",
		"request_id", requestID,
		"nation", sig.Nation,
		"id", sig.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, SignResponse{Nation: sig.Nation, SignedAt: sig.SignedAt})
}

// HandleToken handles GET /api/token/{nation}. The signing page shows this
// token so the game includes it in the checksum it issues.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	nation, err := id.ParseNationName(chi.URLParam(r, "nation"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TokenResponse{Nation: nation.String(), Token: h.service.Token(nation)})
}

// HandleDelete handles DELETE /admin/signatures/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sigID, err := id.ParseSignatureID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Delete(ctx, sigID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "signature deleted",
		"request_id", requestcontext.RequestID(ctx),
		"id", sigID.String(),
		"admin", requestcontext.AdminSubject(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}
