// Package yahoo is a client for the Yahoo Finance chart and search endpoints.
//
// It serves live quotes to the realtime poller and daily bars to the historical cache.
// Every request is rate limited. Chart requests for historical data go through a disk
// cache whose entries expire with the configured window.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the API has no data for a symbol.
var ErrNotFound = errors.New("symbol not found")

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) yspy"

// Options configures a Client.
type Options struct {
	BaseURL        string        // defaults to https://query1.finance.yahoo.com
	Timeout        time.Duration // per request
	RequestsPerSec float64
	Concurrency    int           // for bulk calls
	CacheDir       string        // empty disables the disk cache
	CacheTTL       time.Duration // lifetime of disk cache entries
	Logger         zerolog.Logger
}

// Client talks to the market-data API.
type Client struct {
	base        string
	live        *http.Client
	cached      *http.Client
	limiter     *rate.Limiter
	concurrency int
	log         zerolog.Logger

	mu       sync.Mutex
	calls    int
	lastCall time.Time
	valid    map[string]bool
}

// New returns a Client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://query1.finance.yahoo.com"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 5
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	c := &Client{
		base:        opts.BaseURL,
		live:        &http.Client{Timeout: opts.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.Concurrency),
		concurrency: opts.Concurrency,
		log:         opts.Logger,
		valid:       make(map[string]bool),
	}
	c.cached = c.live
	if opts.CacheDir != "" {
		c.cached = &http.Client{
			Timeout: opts.Timeout,
			Transport: &diskCache{
				base: http.DefaultTransport,
				dir:  opts.CacheDir,
				ttl:  opts.CacheTTL,
				now:  time.Now,
				log:  opts.Logger,
			},
		}
	}
	return c
}

// DefaultCacheDir is the disk cache location used by the CLI.
func DefaultCacheDir() string { return filepath.Join(os.TempDir(), "yspy-cache") }

// CallStats returns the number of API calls made and the time of the last one.
func (c *Client) CallStats() (int, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls, c.lastCall
}

func (c *Client) record() {
	c.mu.Lock()
	c.calls++
	c.lastCall = time.Now()
	c.mu.Unlock()
}

// jwget performs a rate limited GET to addr and unmarshals the JSON response body into data.
func (c *Client) jwget(ctx context.Context, client *http.Client, addr string, data any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	c.record()
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("GET %v: %w", req.URL.Path, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cannot http GET %v%v: %v", req.URL.Host, req.URL.Path, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, data)
}
