package portfolio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/h4jen/yspy/date"
	"github.com/h4jen/yspy/history"
	"github.com/h4jen/yspy/realtime"
	"github.com/h4jen/yspy/yahoo"
)

// testDay is "today" in every portfolio test.
var testDay = time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testDay }

type fakeQuotes struct {
	mu      sync.Mutex
	tracked map[string]bool
	prices  map[string]realtime.PriceInfo
	started bool
	stopped bool
	ensured int
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{tracked: map[string]bool{}, prices: map[string]realtime.PriceInfo{}}
}

func (q *fakeQuotes) Add(t string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	had := q.tracked[t]
	q.tracked[t] = true
	return !had
}

func (q *fakeQuotes) Remove(t string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	had := q.tracked[t]
	delete(q.tracked, t)
	return had
}

func (q *fakeQuotes) Price(t string) (realtime.PriceInfo, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.prices[t]
	return p, ok
}

func (q *fakeQuotes) set(t, cur string, current, rate float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prices[t] = realtime.PriceInfo{Ticker: t, Currency: cur, Current: current, High: current + 1, Low: current - 1, Open: current, Rate: rate, Scale: 1, Updated: testDay}
}

func (q *fakeQuotes) Stats() (int, time.Time)  { return 3, testDay }
func (q *fakeQuotes) Start(ctx context.Context) { q.started = true }
func (q *fakeQuotes) Stop()                     { q.stopped = true }

func (q *fakeQuotes) EnsureBulkHistory(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensured++
	return nil
}

func (q *fakeQuotes) ensureCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ensured
}

type fakeHistory struct {
	mu      sync.Mutex
	frames  map[string]*history.Frame
	stale   map[string]bool
	closes  map[string]float64 // SEK close per ticker, any day
	rates   map[string]float64
	bulk    [][]string
	loads   []string
	updates [][]string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		frames: map[string]*history.Frame{},
		stale:  map[string]bool{},
		closes: map[string]float64{},
		rates:  map[string]float64{},
	}
}

func (h *fakeHistory) Load(ctx context.Context, ticker, period, interval string, toSEK bool) (*history.Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loads = append(h.loads, ticker)
	f, ok := h.frames[ticker]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ticker, history.ErrNoData)
	}
	return f, nil
}

func (h *fakeHistory) IsStale(ticker string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stale[ticker]
}

func (h *fakeHistory) StaleTickers(tickers []string) []string {
	var out []string
	for _, t := range tickers {
		if h.IsStale(t) {
			out = append(out, t)
		}
	}
	return out
}

func (h *fakeHistory) ProblematicTickers(tickers []string) []string { return nil }

func (h *fakeHistory) Update(ctx context.Context, tickers []string) history.Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, tickers)
	return history.Report{Succeeded: tickers}
}

func (h *fakeHistory) BulkRefresh(ctx context.Context, tickers []string) history.Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bulk = append(h.bulk, tickers)
	return history.Report{Succeeded: tickers}
}

func (h *fakeHistory) CloseDaysAgo(ctx context.Context, ticker string, n int) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.closes[ticker]
	if !ok {
		return 0, history.ErrNoData
	}
	return v, nil
}

func (h *fakeHistory) CloseDaysAgoNative(ctx context.Context, ticker string, n int) (float64, error) {
	v, err := h.CloseDaysAgo(ctx, ticker, n)
	if err != nil {
		return 0, err
	}
	if r := h.rates[ticker]; r != 0 {
		return v / r, nil
	}
	return v, nil
}

func (h *fakeHistory) CallStats() (int, time.Time) { return 7, testDay }

// fakeRates knows USD at 10 SEK. Tickers without a dot are American.
type fakeRates struct{}

func (fakeRates) Currency(ticker string) string {
	if filepath.Ext(ticker) == "" {
		return "USD"
	}
	return "SEK"
}

func (fakeRates) Rate(ctx context.Context, cur string) (float64, error) {
	switch cur {
	case "SEK":
		return 1, nil
	case "USD":
		return 10, nil
	}
	return 0, fmt.Errorf("no rate for %s", cur)
}

type fakeValidator map[string]bool

func (v fakeValidator) Validate(ctx context.Context, symbol string) (bool, error) {
	return v[symbol], nil
}

type testPortfolio struct {
	*Portfolio
	quotes *fakeQuotes
	hist   *fakeHistory
}

// writeFile writes content to name inside dir.
func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// readFile returns the content of name inside dir.
func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(b)
}

func exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

// openTest opens the portfolio in dir in skip mode with fake market data.
func openTest(t *testing.T, dir string) *testPortfolio {
	t.Helper()
	q, h := newFakeQuotes(), newFakeHistory()
	p, err := Open(context.Background(), Options{
		Dir:       dir,
		Mode:      Skip,
		Quotes:    q,
		History:   h,
		Rates:     fakeRates{},
		Validator: fakeValidator{"VOLV-B.ST": true, "ERIC-B.ST": true, "AAPL": true, "SAND.ST": true},
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	p.now = fixedNow
	p.capital.now = fixedNow
	return &testPortfolio{Portfolio: p, quotes: q, hist: h}
}

// d is a shorthand for date.MustParse.
func d(s string) date.Date { return date.MustParse(s) }

// makeBars returns n daily bars ending on last, rising by one every day.
func makeBars(last date.Date, n int) []yahoo.Bar {
	bars := make([]yahoo.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = yahoo.Bar{Date: last.Add(i - n + 1), Open: c, High: c, Low: c, Close: c, Volume: 100}
	}
	return bars
}
