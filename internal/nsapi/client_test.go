package nsapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openletter/internal/nation/models"
	"openletter/internal/throttle"
	"openletter/pkg/platform/sentinel"
)

const testUA = "openletter-tests (contact: tests@example.test)"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	signer, err := NewTokenSigner("s3cret")
	require.NoError(t, err)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c, err := New(testUA, throttle.New(time.Millisecond), signer,
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return fixed }),
	)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresUserAgentAndSigner(t *testing.T) {
	signer, _ := NewTokenSigner("s")
	_, err := New(" ", throttle.New(time.Second), signer)
	assert.Error(t, err)

	_, err = New(testUA, throttle.New(time.Second), nil)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestVerify(t *testing.T) {
	t.Run("body of 1 verifies and carries the site token", func(t *testing.T) {
		var got http.Header
		var query map[string][]string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
			query = r.URL.Query()
			_, _ = io.WriteString(w, " 1\n")
		})

		assert.True(t, c.Verify(context.Background(), "Testlandia", "abc"))
		assert.Equal(t, testUA, got.Get("User-Agent"))
		assert.Equal(t, []string{"verify"}, query["a"])
		assert.Equal(t, []string{"testlandia"}, query["nation"])
		assert.Equal(t, []string{"abc"}, query["checksum"])
		assert.Equal(t, []string{c.Token("testlandia")}, query["token"])
	})

	t.Run("body of 0 fails", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "0")
		})
		assert.False(t, c.Verify(context.Background(), "Testlandia", "bad"))
	})

	t.Run("server error is swallowed", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, "1")
		})
		assert.False(t, c.Verify(context.Background(), "Testlandia", "abc"))
	})

	t.Run("rate limit is retried after the requested delay", func(t *testing.T) {
		var hits atomic.Int32
		var firstAt, secondAt atomic.Int64
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			n := hits.Add(1)
			if n == 1 {
				firstAt.Store(time.Now().UnixNano())
				w.Header().Set("X-Retry-After", "0.05")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			secondAt.Store(time.Now().UnixNano())
			_, _ = io.WriteString(w, "1")
		})

		assert.True(t, c.Verify(context.Background(), "Testlandia", "abc"))
		assert.Equal(t, int32(2), hits.Load())
		assert.GreaterOrEqual(t, time.Duration(secondAt.Load()-firstAt.Load()), 50*time.Millisecond)
	})
}

func TestFetchNation(t *testing.T) {
	t.Run("parses name flag and region", func(t *testing.T) {
		var q, nation, raw string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			q = r.URL.Query().Get("q")
			nation = r.URL.Query().Get("nation")
			raw = r.URL.RawQuery
			_, _ = io.WriteString(w, `<NATION id="testlandia"><NAME>Testlandia</NAME><FLAG>https://www.nationstates.net/images/flags/Iran.png</FLAG><REGION>Testregionia</REGION></NATION>`)
		})

		got, err := c.FetchNation(context.Background(), "The Testlandia")
		require.NoError(t, err)
		assert.Equal(t, "name flag region", q)
		assert.Contains(t, raw, "q=name+flag+region")
		assert.NotContains(t, raw, "%2B")
		assert.Equal(t, "the_testlandia", nation)
		assert.Equal(t, "Testlandia", got.Name)
		assert.Equal(t, "https://www.nationstates.net/images/flags/Iran.png", got.FlagURL)
		assert.Equal(t, "Testregionia", got.Region)
		assert.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("missing region defaults", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `<NATION><NAME>Testlandia</NAME><FLAG>Iran</FLAG></NATION>`)
		})
		got, err := c.FetchNation(context.Background(), "Testlandia")
		require.NoError(t, err)
		assert.Equal(t, models.UnknownRegion, got.Region)
		assert.Equal(t, models.FlagURLBase+"Iran.svg", got.FlagURL)
	})

	tests := []struct {
		name     string
		status   int
		body     string
		category ErrorCategory
		notFound bool
	}{
		{"404", http.StatusNotFound, "<h1>Unknown nation</h1>", ErrorNotFound, true},
		{"no NAME", http.StatusOK, `<NATION id="x"><REGION>Somewhere</REGION></NATION>`, ErrorBadData, true},
		{"not xml", http.StatusOK, "definitely not xml", ErrorBadData, true},
		{"outage", http.StatusServiceUnavailable, "", ErrorOutage, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.FetchNation(context.Background(), "Ghostland")
			require.Error(t, err)
			assert.Equal(t, tc.category, GetCategory(err))
			assert.Equal(t, tc.notFound, errors.Is(err, sentinel.ErrNotFound))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		header http.Header
		want   time.Duration
	}{
		{"seconds", http.Header{"Retry-After": {"2"}}, 2 * time.Second},
		{"fractional custom header", http.Header{"X-Retry-After": {"1.5"}}, 1500 * time.Millisecond},
		{"http date", http.Header{"Retry-After": {now.Add(3 * time.Second).Format(http.TimeFormat)}}, 3 * time.Second},
		{"missing", http.Header{}, 0},
		{"negative", http.Header{"Retry-After": {"-4"}}, 0},
		{"garbage", http.Header{"Retry-After": {"soon"}}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, retryAfter(tc.header, now))
		})
	}
}
