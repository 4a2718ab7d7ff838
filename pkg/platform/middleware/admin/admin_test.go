package admin

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"openletter/pkg/requestcontext"
)

type stubValidator struct {
	valid string
}

func (s stubValidator) ValidateSession(token string) (string, error) {
	if token != s.valid {
		return "", errors.New("invalid token")
	}
	return "admin", nil
}

func TestRequireSession(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var subject string
	h := RequireSession(stubValidator{valid: "good"}, "session", logger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject = requestcontext.AdminSubject(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	t.Run("missing cookie is unauthorized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/signatures", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid cookie is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/signatures", nil)
		req.AddCookie(&http.Cookie{Name: "session", Value: "forged"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid cookie passes subject through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/signatures", nil)
		req.AddCookie(&http.Cookie{Name: "session", Value: "good"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "admin", subject)
	})
}
