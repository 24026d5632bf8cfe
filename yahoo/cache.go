package yahoo

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

type freshKey struct{}

// Fresh returns a context whose chart requests skip the disk cache lookup.
// Their responses still replace the cached entries.
func Fresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshKey{}, true)
}

func isFresh(ctx context.Context) bool {
	v, _ := ctx.Value(freshKey{}).(bool)
	return v
}

// diskCache implements a disk cache for HTTP responses.
// Entries are keyed by the current time window, so they expire every ttl.
type diskCache struct {
	base http.RoundTripper
	dir  string
	ttl  time.Duration
	now  func() time.Time
	log  zerolog.Logger
}

// RoundTrip implements the http.RoundTripper interface. It checks for a cached
// response on disk first. If none is found for the current window it performs the
// request and caches successful responses. Requests made with a Fresh context always
// reach the network.
func (c *diskCache) RoundTrip(req *http.Request) (*http.Response, error) {
	window := c.now().Truncate(c.ttl).UTC().Format(time.RFC3339)
	key := fmt.Sprintf("%s %s %s", window, req.Method, req.URL.String())
	key = fmt.Sprintf("yspy-chart-%x", sha1.Sum([]byte(key)))

	if !isFresh(req.Context()) {
		if cached, err := c.get(key, req); err == nil {
			return cached, nil
		}
	}

	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("method", req.Method).Str("path", req.URL.Path).Str("status", resp.Status).Msg("http")
	if resp.StatusCode >= 300 {
		return resp, nil
	}
	if err := c.put(key, resp); err != nil {
		c.log.Warn().Err(err).Msg("cache write failed (ignored)")
	}
	return resp, nil
}

func (c *diskCache) get(key string, req *http.Request) (*http.Response, error) {
	content, err := os.ReadFile(filepath.Join(c.dir, key))
	if err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewBuffer(content)), req)
}

// put stores the response on disk. DumpResponse leaves the body readable for the caller.
func (c *diskCache) put(key string, resp *http.Response) error {
	content, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, key), content, 0o644)
}
