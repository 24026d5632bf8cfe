// Package history caches daily price bars on disk as CSV and keeps them fresh.
//
// Frames are loaded from memory, then from a fresh file, then from the market API with
// retries, and finally from a stale file. Frames with critical quality issues are never
// written to disk.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/h4jen/yspy/date"
	"github.com/h4jen/yspy/yahoo"
)

// ErrNoData is returned when neither the API nor the cache has data for a ticker.
var ErrNoData = errors.New("no historical data")

// Source provides bars from the market API.
type Source interface {
	Chart(ctx context.Context, symbol, span, interval string) ([]yahoo.Bar, error)
	Charts(ctx context.Context, symbols []string, span, interval string) (map[string][]yahoo.Bar, error)
}

// Rates converts native prices to SEK.
type Rates interface {
	Currency(ticker string) string
	Rate(ctx context.Context, cur string) (float64, error)
}

// Options configures a Manager.
type Options struct {
	Dir            string // CSV directory
	Period         string // default period, e.g. "2y"
	Interval       string // default interval, e.g. "1d"
	BulkPeriod     string // period of the daily bulk frames, e.g. "130d"
	StaleThreshold time.Duration
	Retries        int
	RetryDelay     time.Duration
	Scale          func(ticker string) float64
	Logger         zerolog.Logger
}

type entry struct {
	day   string
	frame *Frame
}

// Manager loads, validates and caches historical frames.
type Manager struct {
	src   Source
	rates Rates
	opts  Options
	log   zerolog.Logger
	now   func() time.Time

	mu       sync.Mutex
	mem      map[string]entry
	bulk     map[string]*Frame // raw frames of the day
	bulkOn   string
	calls    int
	lastCall time.Time
}

// New returns a Manager.
func New(src Source, rates Rates, opts Options) *Manager {
	if opts.Period == "" {
		opts.Period = "2y"
	}
	if opts.Interval == "" {
		opts.Interval = "1d"
	}
	if opts.BulkPeriod == "" {
		opts.BulkPeriod = "130d"
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = time.Hour
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.Scale == nil {
		opts.Scale = func(string) float64 { return 1 }
	}
	return &Manager{
		src:   src,
		rates: rates,
		opts:  opts,
		log:   opts.Logger,
		now:   time.Now,
		mem:   make(map[string]entry),
		bulk:  make(map[string]*Frame),
	}
}

// Path returns the CSV file of ticker for the given period and interval.
func (m *Manager) Path(ticker, period, interval string, toSEK bool) string {
	name := fmt.Sprintf("%s_%s_%s", ticker, period, interval)
	if toSEK {
		name += "_SEK"
	}
	return filepath.Join(m.opts.Dir, name+".csv")
}

func key(ticker, period, interval string, toSEK bool) string {
	unit := "RAW"
	if toSEK {
		unit = "SEK"
	}
	return strings.Join([]string{ticker, period, interval, unit}, "|")
}

func (m *Manager) today() string { return date.Of(m.now()).String() }

// CallStats returns the number of API calls made and the time of the last one.
func (m *Manager) CallStats() (int, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, m.lastCall
}

func (m *Manager) record() {
	m.mu.Lock()
	m.calls++
	m.lastCall = m.now()
	m.mu.Unlock()
}

// Load returns the frame of ticker.
func (m *Manager) Load(ctx context.Context, ticker, period, interval string, toSEK bool) (*Frame, error) {
	k := key(ticker, period, interval, toSEK)
	path := m.Path(ticker, period, interval, toSEK)
	today := m.today()

	m.mu.Lock()
	e, ok := m.mem[k]
	m.mu.Unlock()
	var cached *Frame
	if ok && e.day == today {
		cached = e.frame
	}
	if cached == nil {
		if f, err := loadCSV(path); err == nil && !f.Empty() {
			cached = f
			m.remember(k, f)
		}
	}
	if cached != nil && !m.fileStale(path) {
		return cached, nil
	}

	m.log.Info().Str("ticker", ticker).Msg("fetching historical data (stale or missing)")
	fctx := ctx
	if cached != nil {
		// a stale file must not be replaced by a replayed response
		fctx = yahoo.Fresh(ctx)
	}
	f, err := m.fetch(fctx, ticker, period, interval)
	if err == nil && toSEK {
		f, err = m.toSEK(ctx, ticker, f)
	}
	if err != nil {
		if cached != nil {
			m.log.Warn().Err(err).Str("ticker", ticker).Msg("fetch failed, using stale cached data")
			return cached, nil
		}
		return nil, fmt.Errorf("%s: %w: %w", ticker, ErrNoData, err)
	}

	m.remember(k, f)
	m.save(ticker, path, f)
	return f, nil
}

func (m *Manager) remember(k string, f *Frame) {
	m.mu.Lock()
	m.mem[k] = entry{day: m.today(), frame: f}
	m.mu.Unlock()
}

// save writes f unless it has critical issues.
func (m *Manager) save(ticker, path string, f *Frame) bool {
	issues := Quality(f)
	if crit := issues.Critical(); len(crit) > 0 {
		m.log.Error().Str("ticker", ticker).Stringer("issues", crit).Msg("critical data quality issues, not saving")
		return false
	}
	if len(issues) > 0 {
		m.log.Warn().Str("ticker", ticker).Stringer("issues", issues).Msg("data quality issues, saving anyway")
	}
	if err := saveCSV(path, f); err != nil {
		m.log.Error().Err(err).Str("path", path).Msg("cannot save historical data")
		return false
	}
	return true
}

// fetch downloads raw bars, retrying on failure. Unknown symbols are not retried.
func (m *Manager) fetch(ctx context.Context, ticker, period, interval string) (*Frame, error) {
	var err error
	for attempt := 1; attempt <= m.opts.Retries; attempt++ {
		m.record()
		var bars []yahoo.Bar
		bars, err = m.src.Chart(ctx, ticker, period, interval)
		if err == nil {
			f := &Frame{Bars: bars}
			if f.usable() {
				return f, nil
			}
			err = fmt.Errorf("unusable price data (%d rows)", len(bars))
		}
		if errors.Is(err, yahoo.ErrNotFound) || ctx.Err() != nil {
			break
		}
		m.log.Warn().Err(err).Int("attempt", attempt).Str("ticker", ticker).Msg("historical fetch failed")
		if attempt < m.opts.Retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.opts.RetryDelay):
			}
		}
	}
	return nil, err
}

// factor returns the multiplier from a raw price to SEK.
func (m *Manager) factor(ctx context.Context, ticker string) (float64, error) {
	r, err := m.rates.Rate(ctx, m.rates.Currency(ticker))
	if err != nil {
		return 0, err
	}
	return r * m.opts.Scale(ticker), nil
}

func (m *Manager) toSEK(ctx context.Context, ticker string, f *Frame) (*Frame, error) {
	k, err := m.factor(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return f.Scaled(k), nil
}

func (m *Manager) fileStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return m.now().Sub(info.ModTime()) > m.opts.StaleThreshold
}

// IsStale reports whether the default SEK frame of ticker is missing or older than the
// stale threshold.
func (m *Manager) IsStale(ticker string) bool {
	return m.fileStale(m.Path(ticker, m.opts.Period, m.opts.Interval, true))
}

// StaleTickers returns the tickers whose data is stale.
func (m *Manager) StaleTickers(tickers []string) []string {
	var out []string
	for _, t := range tickers {
		if m.IsStale(t) {
			out = append(out, t)
		}
	}
	return out
}

// FileQuality checks the cached default SEK frame of ticker without calling the API.
func (m *Manager) FileQuality(ticker string) (*Frame, Issues, error) {
	f, err := loadCSV(m.Path(ticker, m.opts.Period, m.opts.Interval, true))
	if err != nil {
		return nil, nil, err
	}
	return f, Quality(f), nil
}

// ProblematicTickers returns the tickers with a missing, unreadable or low quality file.
// It never calls the API.
func (m *Manager) ProblematicTickers(tickers []string) []string {
	var out []string
	for _, t := range tickers {
		_, issues, err := m.FileQuality(t)
		if err != nil || len(issues) > 0 {
			m.log.Debug().Err(err).Str("ticker", t).Stringer("issues", issues).Msg("problematic historical data")
			out = append(out, t)
		}
	}
	return out
}

// ForceRefresh drops the cached frames of ticker and fetches the default period again.
// When the fetch fails the previous entries are restored.
func (m *Manager) ForceRefresh(ctx context.Context, ticker string) error {
	prefix := ticker + "|"
	backup := make(map[string]entry)
	m.mu.Lock()
	for k, e := range m.mem {
		if strings.HasPrefix(k, prefix) {
			backup[k] = e
			delete(m.mem, k)
		}
	}
	bulk, hadBulk := m.bulk[ticker]
	bulkOn := m.bulkOn
	delete(m.bulk, ticker)
	m.mu.Unlock()

	f, err := m.fetch(yahoo.Fresh(ctx), ticker, m.opts.Period, m.opts.Interval)
	if err == nil {
		f, err = m.toSEK(ctx, ticker, f)
	}
	if err != nil {
		m.mu.Lock()
		for k, e := range backup {
			m.mem[k] = e
		}
		if hadBulk && m.bulkOn == bulkOn {
			m.bulk[ticker] = bulk
		}
		m.mu.Unlock()
		m.log.Warn().Err(err).Str("ticker", ticker).Msg("force refresh failed, kept existing data")
		return fmt.Errorf("force refresh %s: %w", ticker, err)
	}

	m.removeFiles(ticker)
	m.remember(key(ticker, m.opts.Period, m.opts.Interval, true), f)
	m.save(ticker, m.Path(ticker, m.opts.Period, m.opts.Interval, true), f)
	m.log.Info().Str("ticker", ticker).Int("rows", f.Len()).Msg("force refreshed")
	return nil
}

func (m *Manager) removeFiles(ticker string) {
	files, _ := filepath.Glob(filepath.Join(m.opts.Dir, ticker+"_*.csv"))
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			m.log.Warn().Err(err).Str("path", f).Msg("cannot remove historical file")
		}
	}
}

// BulkFetch downloads raw frames for all tickers at once. Tickers that fail are missing
// from the result; the error joins their failures.
func (m *Manager) BulkFetch(ctx context.Context, tickers []string, period, interval string) (map[string]*Frame, error) {
	if len(tickers) == 0 {
		return map[string]*Frame{}, nil
	}
	m.record()
	bars, err := m.src.Charts(ctx, tickers, period, interval)
	out := make(map[string]*Frame, len(bars))
	for t, b := range bars {
		if len(b) > 0 {
			out[t] = &Frame{Bars: b}
		}
	}
	return out, err
}

// EnsureBulk fetches the bulk period of every ticker not yet fetched today.
func (m *Manager) EnsureBulk(ctx context.Context, tickers []string) error {
	today := m.today()
	m.mu.Lock()
	if m.bulkOn != today {
		m.bulk = make(map[string]*Frame)
		m.bulkOn = today
	}
	var missing []string
	for _, t := range tickers {
		if _, ok := m.bulk[t]; !ok {
			missing = append(missing, t)
		}
	}
	m.mu.Unlock()
	if len(missing) == 0 {
		return nil
	}

	frames, err := m.BulkFetch(ctx, missing, m.opts.BulkPeriod, m.opts.Interval)
	m.mu.Lock()
	for t, f := range frames {
		m.bulk[t] = f
	}
	m.mu.Unlock()
	m.log.Debug().Int("requested", len(missing)).Int("fetched", len(frames)).Msg("bulk history")
	return err
}

// Invalidate drops the bulk frames of tickers so the next lookup refetches them.
func (m *Manager) Invalidate(tickers []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tickers {
		delete(m.bulk, t)
	}
}
