package dump

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloader(t *testing.T) {
	t.Run("writes body to a unique file", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "openletter-tests", r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte("payload"))
		}))
		defer srv.Close()
		dir := t.TempDir()
		d := NewDownloader(srv.Client(), srv.URL, "openletter-tests", dir)

		first, size, err := d.Download(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(7), size)
		assert.Equal(t, dir, filepath.Dir(first))
		assert.Regexp(t, regexp.MustCompile(`^nations-\d+-[0-9a-f-]{36}\.xml\.gz$`), filepath.Base(first))

		second, _, err := d.Download(context.Background())
		require.NoError(t, err)
		assert.NotEqual(t, first, second)

		got, err := os.ReadFile(first)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(got))
	})

	t.Run("non-2xx fails without leaving a file", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer srv.Close()
		dir := t.TempDir()

		path, _, err := NewDownloader(srv.Client(), srv.URL, "", dir).Download(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
		assert.Empty(t, path)
		entries, _ := os.ReadDir(dir)
		assert.Empty(t, entries)
	})

	t.Run("empty body fails without leaving a file", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()
		dir := t.TempDir()

		path, _, err := NewDownloader(srv.Client(), srv.URL, "", dir).Download(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no body")
		assert.Empty(t, path)
		entries, _ := os.ReadDir(dir)
		assert.Empty(t, entries)
	})
}

func TestDownloaderRemoveStale(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDownloader(nil, "", "", dir)
	d.now = func() time.Time { return now }

	write := func(name string, modified time.Time) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		require.NoError(t, os.Chtimes(path, modified, modified))
		return path
	}
	abandoned := write("nations-1-a.xml.gz", now.Add(-2*time.Hour))
	inFlight := write("nations-2-b.xml.gz", now.Add(-time.Minute))
	unrelated := write("notes.txt", now.Add(-48*time.Hour))

	removed, err := d.RemoveStale(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, abandoned)
	assert.FileExists(t, inFlight)
	assert.FileExists(t, unrelated)
}
