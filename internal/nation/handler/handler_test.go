package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openletter/internal/audit"
	"openletter/internal/nation"
	"openletter/internal/nation/models"
)

type stubRefresher struct {
	policy nation.MissPolicy
	data   models.DisplayData
	err    error
	calls  []string
}

func (s *stubRefresher) Policy() nation.MissPolicy { return s.policy }

func (s *stubRefresher) Refresh(_ context.Context, name string) (models.DisplayData, error) {
	s.calls = append(s.calls, name)
	return s.data, s.err
}

type recordingAuditor struct{ events []audit.Event }

func (a *recordingAuditor) Emit(_ context.Context, e audit.Event) { a.events = append(a.events, e) }

func refresh(t *testing.T, ref *stubRefresher, aud *recordingAuditor, nationParam string) *httptest.ResponseRecorder {
	t.Helper()
	h := New(ref, aud, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Route("/admin", h.Register)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/nations/"+nationParam+"/refresh", nil))
	return rec
}

func TestHandleRefresh(t *testing.T) {
	t.Run("returns fresh display data", func(t *testing.T) {
		ref := &stubRefresher{
			policy: nation.MissPolicyLive,
			data:   models.DisplayData{FlagURL: "https://example.test/t.svg", Region: "Testregionia"},
		}
		aud := &recordingAuditor{}

		rec := refresh(t, ref, aud, "Testlandia")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp RefreshResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Testlandia", resp.Nation)
		assert.Equal(t, "Testregionia", resp.Region)
		assert.Equal(t, []string{"Testlandia"}, ref.calls)
		require.Len(t, aud.events, 1)
		assert.Equal(t, audit.ActionNationRefreshed, aud.events[0].Action)
	})

	t.Run("vanished nation is not found", func(t *testing.T) {
		ref := &stubRefresher{policy: nation.MissPolicyLive, err: nation.ErrNotFound}
		aud := &recordingAuditor{}

		rec := refresh(t, ref, aud, "Ghostland")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, aud.events)
	})

	t.Run("bulk-only policy refuses", func(t *testing.T) {
		ref := &stubRefresher{policy: nation.MissPolicyNotFound}

		rec := refresh(t, ref, &recordingAuditor{}, "Testlandia")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Empty(t, ref.calls)
	})

	t.Run("invalid name", func(t *testing.T) {
		ref := &stubRefresher{policy: nation.MissPolicyLive}

		rec := refresh(t, ref, &recordingAuditor{}, "bad%21name")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, ref.calls)
	})
}
