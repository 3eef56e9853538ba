package params

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vocdoni/zkparams/circuits"
	"github.com/vocdoni/zkparams/log"
)

type fetchFunc func(ctx context.Context, location string) ([]byte, error)

// readRemote serves location from the cache directory when present, and
// otherwise downloads it with fetch and stores a copy in the cache.
func (s *Store) readRemote(ctx context.Context, location string, fetch fetchFunc) ([]byte, error) {
	cached := s.cachePath(location)
	if cached != "" {
		data, err := readFile(cached)
		if err == nil {
			log.Debugw("parameters served from cache", "location", location, "path", cached)
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			log.Warnw("ignoring unreadable cached parameters", "path", cached, "error", err.Error())
		}
	}

	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}
	log.Infow("downloading parameters", "location", location)
	data, err := fetch(ctx, location)
	if err != nil {
		return nil, err
	}

	if cached != "" {
		if err := os.MkdirAll(s.cfg.CacheDir, 0o755); err != nil {
			log.Warnw("cannot create parameters cache dir", "path", s.cfg.CacheDir, "error", err.Error())
			return data, nil
		}
		err := writeFileAtomic(cached, func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		})
		if err != nil {
			log.Warnw("cannot cache parameters", "location", location, "error", err.Error())
		}
	}
	return data, nil
}

// cachePath returns the cache file for location, named after the SHA256 of
// the location, or an empty string if caching is disabled.
func (s *Store) cachePath(location string) string {
	if s.cfg.CacheDir == "" {
		return ""
	}
	name := circuits.HashBytesSHA256([]byte(location)).Hex() + ".params"
	return filepath.Join(s.cfg.CacheDir, name)
}

// evictCached removes the cached copy of a remote location, so the next
// attempt downloads it again.
func (s *Store) evictCached(location string) {
	if !strings.Contains(location, "://") || strings.HasPrefix(strings.ToLower(location), "file://") {
		return
	}
	cached := s.cachePath(location)
	if cached == "" {
		return
	}
	if err := os.Remove(cached); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnw("cannot evict cached parameters", "path", cached, "error", err.Error())
	}
}

// fetchHTTP downloads location with a GET request.
func (s *Store) fetchHTTP(ctx context.Context, location string) ([]byte, error) {
	client := s.cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 0}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request for %s: %w", ErrIO, location, err)
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download %s: %w", ErrIO, location, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			log.Warnw("failed to close response body", "location", location, "error", err)
		}
	}()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return nil, fmt.Errorf("%w: download %s: status code %d, body: %s",
			ErrIO, location, res.StatusCode, string(bytes.TrimSpace(body)))
	}
	return readAllSized(res.Body, res.ContentLength, location)
}

// readAllSized reads r to the end and, when size is known (>= 0), fails if
// the number of bytes differs.
func readAllSized(r io.Reader, size int64, location string) ([]byte, error) {
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	n, err := buf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, location, err)
	}
	if size >= 0 && n != size {
		return nil, fmt.Errorf("%w: read %s: got %d of %d bytes", ErrIO, location, n, size)
	}
	return buf.Bytes(), nil
}
