// Package realtime polls live quotes for a set of tickers at a constant cadence.
package realtime

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/h4jen/yspy/yahoo"
)

// Quoter fetches live quotes in bulk.
type Quoter interface {
	Quotes(ctx context.Context, symbols []string) (map[string]yahoo.Quote, error)
}

// Rates converts native prices to SEK.
type Rates interface {
	Currency(ticker string) string
	Rate(ctx context.Context, cur string) (float64, error)
}

// BulkHistory keeps a daily bulk frame of recent closes.
type BulkHistory interface {
	EnsureBulk(ctx context.Context, tickers []string) error
}

// PriceInfo is the latest quote of a ticker. Native prices have the scale factor applied
// and are rounded to cents.
type PriceInfo struct {
	Ticker   string
	Currency string
	Current  float64
	High     float64
	Low      float64
	Open     float64
	Rate     float64 // SEK per unit of Currency
	Scale    float64
	Updated  time.Time
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (p PriceInfo) sek(v float64) float64 { return round2(v * p.Rate) }

// CurrentSEK returns the current price in SEK.
func (p PriceInfo) CurrentSEK() float64 { return p.sek(p.Current) }

// HighSEK returns the day high in SEK.
func (p PriceInfo) HighSEK() float64 { return p.sek(p.High) }

// LowSEK returns the day low in SEK.
func (p PriceInfo) LowSEK() float64 { return p.sek(p.Low) }

// OpenSEK returns the opening price in SEK.
func (p PriceInfo) OpenSEK() float64 { return p.sek(p.Open) }

// Options configures a Manager.
type Options struct {
	Interval time.Duration
	Scale    func(ticker string) float64
	Logger   zerolog.Logger
}

// Manager tracks tickers and refreshes their prices in one bulk call per tick.
type Manager struct {
	quoter Quoter
	rates  Rates
	hist   BulkHistory
	scale  func(string) float64
	log    zerolog.Logger

	mu       sync.Mutex
	interval time.Duration
	tickers  map[string]struct{}
	prices   map[string]PriceInfo
	updates  int
	lastRun  time.Time
	reset    chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

// New returns a Manager. hist may be nil.
func New(q Quoter, rates Rates, hist BulkHistory, opts Options) *Manager {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.Scale == nil {
		opts.Scale = func(string) float64 { return 1 }
	}
	return &Manager{
		quoter:   q,
		rates:    rates,
		hist:     hist,
		scale:    opts.Scale,
		log:      opts.Logger,
		interval: opts.Interval,
		tickers:  make(map[string]struct{}),
		prices:   make(map[string]PriceInfo),
		reset:    make(chan struct{}, 1),
	}
}

// Add starts tracking ticker. It returns false when it was already tracked.
func (m *Manager) Add(ticker string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickers[ticker]; ok {
		return false
	}
	m.tickers[ticker] = struct{}{}
	return true
}

// Remove stops tracking ticker. It returns false when it was not tracked.
func (m *Manager) Remove(ticker string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickers[ticker]; !ok {
		return false
	}
	delete(m.tickers, ticker)
	delete(m.prices, ticker)
	return true
}

// Tickers returns the tracked tickers, sorted.
func (m *Manager) Tickers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tickers))
	for t := range m.tickers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Price returns the latest price of ticker.
func (m *Manager) Price(ticker string) (PriceInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[ticker]
	return p, ok
}

// Prices returns a copy of all known prices.
func (m *Manager) Prices() map[string]PriceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]PriceInfo, len(m.prices))
	for k, v := range m.prices {
		out[k] = v
	}
	return out
}

// SetInterval changes the tick interval. A running loop picks it up immediately.
func (m *Manager) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.interval = d
	m.mu.Unlock()
	select {
	case m.reset <- struct{}{}:
	default:
	}
}

// Interval returns the tick interval.
func (m *Manager) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// Stats returns the number of bulk updates and the time of the last one.
func (m *Manager) Stats() (int, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates, m.lastRun
}

// ForceUpdate refreshes all prices now.
func (m *Manager) ForceUpdate(ctx context.Context) { m.update(ctx) }

// update fetches every tracked ticker in one bulk call. Tickers that fail keep their
// previous price.
func (m *Manager) update(ctx context.Context) {
	tickers := m.Tickers()
	if len(tickers) == 0 {
		return
	}
	m.mu.Lock()
	m.updates++
	m.lastRun = time.Now()
	m.mu.Unlock()

	quotes, err := m.quoter.Quotes(ctx, tickers)
	if err != nil {
		m.log.Warn().Err(err).Int("fetched", len(quotes)).Int("requested", len(tickers)).Msg("bulk quote update incomplete")
	}
	fresh := make(map[string]PriceInfo, len(quotes))
	for t, q := range quotes {
		cur := m.rates.Currency(t)
		rate, err := m.rates.Rate(ctx, cur)
		if err != nil {
			m.log.Warn().Err(err).Str("ticker", t).Msg("no exchange rate")
			continue
		}
		k := m.scale(t)
		fresh[t] = PriceInfo{
			Ticker:   t,
			Currency: cur,
			Current:  round2(q.Current * k),
			High:     round2(q.High * k),
			Low:      round2(q.Low * k),
			Open:     round2(q.Open * k),
			Rate:     rate,
			Scale:    k,
			Updated:  time.Now(),
		}
	}

	m.mu.Lock()
	for t, p := range fresh {
		if _, tracked := m.tickers[t]; tracked {
			m.prices[t] = p
		}
	}
	m.mu.Unlock()
}

// EnsureBulkHistory makes sure the daily bulk frame of recent closes covers every ticker.
func (m *Manager) EnsureBulkHistory(ctx context.Context) error {
	if m.hist == nil {
		return nil
	}
	tickers := m.Tickers()
	if len(tickers) == 0 {
		return nil
	}
	return m.hist.EnsureBulk(ctx, tickers)
}

// Start runs the polling loop until ctx is done or Stop is called.
// Each tick sleeps the interval minus the time the update took.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	m.log.Info().Dur("interval", m.Interval()).Msg("started real-time price monitoring")
	go func() {
		defer close(done)
		for {
			start := time.Now()
			m.update(ctx)
			wait := m.Interval() - time.Since(start)
			if wait < 0 {
				wait = 0
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-m.reset:
				timer.Stop()
			case <-timer.C:
			}
		}
	}()
}

// Stop ends the polling loop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.log.Info().Msg("stopped real-time price monitoring")
}
