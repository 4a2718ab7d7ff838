package dump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DefaultURL is the daily nations dump.
const DefaultURL = "https://www.nationstates.net/pages/nations.xml.gz"

// Downloader streams the dump to a file of its own in dir.
type Downloader struct {
	client    *http.Client
	url       string
	userAgent string
	dir       string
	now       func() time.Time
}

func NewDownloader(client *http.Client, url, userAgent, dir string) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	if url == "" {
		url = DefaultURL
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return &Downloader{client: client, url: url, userAgent: userAgent, dir: dir, now: time.Now}
}

// dumpPattern matches files written by Download.
const dumpPattern = "nations-*.xml.gz"

// RemoveStale deletes dump files in dir that were last written more than
// olderThan ago. They are left behind by a process that died mid-run; no live
// run holds a file past the lock TTL. It returns how many files were removed.
func (d *Downloader) RemoveStale(olderThan time.Duration) (int, error) {
	paths, err := filepath.Glob(filepath.Join(d.dir, dumpPattern))
	if err != nil {
		return 0, fmt.Errorf("list dump files: %w", err)
	}
	cutoff := d.now().Add(-olderThan)
	removed := 0
	var errs []error
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Download fetches the dump and returns the path of the written file with its
// size. The caller owns the file. On error no file is left behind.
func (d *Downloader) Download(ctx context.Context) (path string, size int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build dump request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download dump: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, fmt.Errorf("download dump: unexpected status %d", resp.StatusCode)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return "", 0, errors.New("download dump: response has no body")
	}

	path = filepath.Join(d.dir, fmt.Sprintf("nations-%d-%s.xml.gz", d.now().Unix(), uuid.NewString()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create dump file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(path)
			path = ""
		}
	}()

	size, err = io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return path, 0, fmt.Errorf("write dump file: %w", err)
	}
	if size == 0 {
		err = errors.New("download dump: response has no body")
		return path, 0, err
	}
	return path, size, nil
}
