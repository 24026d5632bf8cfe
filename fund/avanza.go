// Package fund fetches the NAV of mutual funds that have no market ticker, from the
// public Avanza fund guide.
package fund

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/h4jen/yspy/date"
)

var (
	// ErrNotFound is returned for an unknown fund id or ISIN.
	ErrNotFound = errors.New("fund not found")
	// ErrNoNAV is returned when the guide carries no NAV.
	ErrNoNAV = errors.New("no NAV for fund")
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Guide is the part of the fund guide yspy uses. Development fields are cumulative
// percentage changes over the period.
type Guide struct {
	Name                   string   `json:"name"`
	ISIN                   string   `json:"isin"`
	Currency               string   `json:"currency"`
	NAV                    *float64 `json:"nav"`
	NAVDate                string   `json:"navDate"`
	DevelopmentOneDay      *float64 `json:"developmentOneDay"`
	DevelopmentOneMonth    *float64 `json:"developmentOneMonth"`
	DevelopmentThreeMonths *float64 `json:"developmentThreeMonths"`
	DevelopmentSixMonths   *float64 `json:"developmentSixMonths"`
	DevelopmentOneYear     *float64 `json:"developmentOneYear"`
	DevelopmentThreeYears  *float64 `json:"developmentThreeYears"`
}

// developments pairs each development field with its approximate age in days.
func (g *Guide) developments() []struct {
	days int
	pct  *float64
} {
	return []struct {
		days int
		pct  *float64
	}{
		{1, g.DevelopmentOneDay},
		{30, g.DevelopmentOneMonth},
		{91, g.DevelopmentThreeMonths},
		{182, g.DevelopmentSixMonths},
		{365, g.DevelopmentOneYear},
		{1095, g.DevelopmentThreeYears},
	}
}

// Point is one NAV in the fund's currency.
type Point struct {
	Date date.Date
	NAV  float64
}

// Options configures a Client.
type Options struct {
	BaseURL        string        // defaults to https://www.avanza.se
	Timeout        time.Duration // per request
	RequestsPerSec float64
	NAVTTL         time.Duration // lifetime of cached NAVs
	InfoTTL        time.Duration // lifetime of cached guides and histories
	Logger         zerolog.Logger
}

type cached[T any] struct {
	at    time.Time
	value T
}

// Client reads the Avanza fund guide and search endpoints. Ids are Avanza orderbook ids.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	navTTL  time.Duration
	infoTTL time.Duration
	log     zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	navs    map[string]cached[float64]
	guides  map[string]cached[*Guide]
	history map[string]cached[[]Point]
}

// New returns a Client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.avanza.se"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 2
	}
	if opts.NAVTTL <= 0 {
		opts.NAVTTL = 5 * time.Minute
	}
	if opts.InfoTTL <= 0 {
		opts.InfoTTL = time.Hour
	}
	return &Client{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		navTTL:  opts.NAVTTL,
		infoTTL: opts.InfoTTL,
		log:     opts.Logger,
		now:     time.Now,
		navs:    make(map[string]cached[float64]),
		guides:  make(map[string]cached[*Guide]),
		history: make(map[string]cached[[]Point]),
	}
}

// Provider names the NAV source.
func (c *Client) Provider() string { return "Avanza" }

// do sends req rate limited and unmarshals the JSON response into data.
func (c *Client) do(req *http.Request, data any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "sv-SE,sv;q=0.9,en;q=0.8")
	req.Header.Set("Referer", c.base+"/")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %v: %w", req.Method, req.URL.Path, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cannot http %s %v: %v", req.Method, req.URL.Path, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, data)
}

// Guide returns the fund guide of id.
func (c *Client) Guide(ctx context.Context, id string) (*Guide, error) {
	c.mu.Lock()
	hit, ok := c.guides[id]
	c.mu.Unlock()
	if ok && c.now().Sub(hit.at) < c.infoTTL {
		return hit.value, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/_api/fund-guide/guide/"+id, nil)
	if err != nil {
		return nil, err
	}
	var g Guide
	if err := c.do(req, &g); err != nil {
		return nil, fmt.Errorf("fund guide %s: %w", id, err)
	}
	if g.Currency == "" {
		g.Currency = "SEK"
	}
	c.mu.Lock()
	c.guides[id] = cached[*Guide]{at: c.now(), value: &g}
	c.mu.Unlock()
	return &g, nil
}

// NAV returns the latest NAV of id in the fund's currency.
func (c *Client) NAV(ctx context.Context, id string) (float64, error) {
	c.mu.Lock()
	hit, ok := c.navs[id]
	c.mu.Unlock()
	if ok && c.now().Sub(hit.at) < c.navTTL {
		return hit.value, nil
	}

	// the guide cache outlives the NAV one, so ask the network for fresh NAVs
	c.mu.Lock()
	delete(c.guides, id)
	c.mu.Unlock()
	g, err := c.Guide(ctx, id)
	if err != nil {
		return 0, err
	}
	if g.NAV == nil {
		return 0, fmt.Errorf("%s: %w", id, ErrNoNAV)
	}
	c.mu.Lock()
	c.navs[id] = cached[float64]{at: c.now(), value: *g.NAV}
	c.mu.Unlock()
	return *g.NAV, nil
}

// Currency returns the currency of the fund's NAV, SEK when unknown.
func (c *Client) Currency(ctx context.Context, id string) string {
	g, err := c.Guide(ctx, id)
	if err != nil {
		return "SEK"
	}
	return g.Currency
}

// History returns the NAVs of the last days calendar days, oldest first. The guide only
// carries period developments, so the points are sparse: today, then one per
// development field, back-calculated as nav / (1 + pct/100).
func (c *Client) History(ctx context.Context, id string, days int) ([]Point, error) {
	k := fmt.Sprintf("%s|%d", id, days)
	c.mu.Lock()
	hit, ok := c.history[k]
	c.mu.Unlock()
	if ok && c.now().Sub(hit.at) < c.infoTTL {
		return hit.value, nil
	}

	g, err := c.Guide(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.NAV == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNoNAV)
	}
	today := date.Of(c.now())
	points := []Point{{Date: today, NAV: *g.NAV}}
	for _, d := range g.developments() {
		if d.days > days || d.pct == nil || *d.pct <= -100 {
			continue
		}
		points = append(points, Point{Date: today.Add(-d.days), NAV: *g.NAV / (1 + *d.pct/100)})
	}
	if len(points) < 2 {
		return nil, fmt.Errorf("%s: no NAV history", id)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	c.mu.Lock()
	c.history[k] = cached[[]Point]{at: c.now(), value: points}
	c.mu.Unlock()
	return points, nil
}

// ResolveISIN returns the orderbook id of the fund with isin. An exact ISIN match is
// preferred over the first search hit.
func (c *Client) ResolveISIN(ctx context.Context, isin string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"query":           isin,
		"instrumentTypes": []string{"FUND"},
		"pagination":      map[string]int{"from": 0, "size": 5},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/_api/search/filtered-search", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	var jobj any
	if err := c.do(req, &jobj); err != nil {
		return "", fmt.Errorf("search %s: %w", isin, err)
	}
	jval, err := jsonpath.Get("$.hits[*]", jobj)
	if err != nil {
		return "", fmt.Errorf("search %s: %w", isin, ErrNotFound)
	}
	hits, _ := jval.([]any)
	var first string
	for _, h := range hits {
		m, ok := h.(map[string]any)
		if !ok {
			continue
		}
		id := orderBookID(m["orderBookId"])
		if id == "" {
			continue
		}
		if s, _ := m["isin"].(string); strings.EqualFold(s, isin) {
			return id, nil
		}
		if first == "" {
			first = id
		}
	}
	if first == "" {
		return "", fmt.Errorf("search %s: %w", isin, ErrNotFound)
	}
	c.log.Debug().Str("isin", isin).Str("id", first).Msg("no exact ISIN match, using first hit")
	return first, nil
}

func orderBookID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	}
	return ""
}
