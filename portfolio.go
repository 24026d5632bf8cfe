package portfolio

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/h4jen/yspy/date"
	"github.com/h4jen/yspy/history"
	"github.com/h4jen/yspy/realtime"
	"github.com/h4jen/yspy/scheduler"
	"github.com/rs/zerolog"
)

const (
	// DefaultFile maps stock names to tickers.
	DefaultFile = "stockPortfolio.json"
	// HighlightedFile is the sorted list of highlighted stock names.
	HighlightedFile = "highlighted_stocks.json"
)

// HistoricalMode tells how historical data is loaded when the portfolio opens.
type HistoricalMode string

const (
	Eager      HistoricalMode = "eager"      // load every ticker before Open returns
	Background HistoricalMode = "background" // one bulk fetch after Start
	Skip       HistoricalMode = "skip"
)

// ParseHistoricalMode parses eager, background or skip.
func ParseHistoricalMode(s string) (HistoricalMode, error) {
	switch m := HistoricalMode(strings.ToLower(s)); m {
	case Eager, Background, Skip:
		return m, nil
	}
	return "", fmt.Errorf("unknown historical mode %q, want eager, background or skip", s)
}

// Quotes is the live price source.
type Quotes interface {
	Add(ticker string) bool
	Remove(ticker string) bool
	Price(ticker string) (realtime.PriceInfo, bool)
	Stats() (int, time.Time)
	Start(ctx context.Context)
	Stop()
	EnsureBulkHistory(ctx context.Context) error
}

// Historical is the historical price store.
type Historical interface {
	Load(ctx context.Context, ticker, period, interval string, toSEK bool) (*history.Frame, error)
	IsStale(ticker string) bool
	StaleTickers(tickers []string) []string
	ProblematicTickers(tickers []string) []string
	Update(ctx context.Context, tickers []string) history.Report
	BulkRefresh(ctx context.Context, tickers []string) history.Report
	CloseDaysAgo(ctx context.Context, ticker string, n int) (float64, error)
	CloseDaysAgoNative(ctx context.Context, ticker string, n int) (float64, error)
	CallStats() (int, time.Time)
}

// Rates converts between the stock currencies and SEK.
type Rates interface {
	Currency(ticker string) string
	Rate(ctx context.Context, cur string) (float64, error)
}

// TickerValidator checks that the market knows a ticker.
type TickerValidator interface {
	Validate(ctx context.Context, symbol string) (bool, error)
}

// Options configures a Portfolio.
type Options struct {
	Dir  string
	File string

	Mode           HistoricalMode
	Period         string
	Interval       string
	UpdateInterval time.Duration
	StaleThreshold time.Duration
	ProblemEvery   int

	PricesTTL     time.Duration
	PriceThrottle time.Duration

	Quotes    Quotes
	History   Historical
	Rates     Rates
	Validator TickerValidator
	Logger    zerolog.Logger

	Funds           FundNAVs // nil leaves managed funds unpriced
	FundHistoryDays int
}

func (o *Options) defaults() {
	if o.File == "" {
		o.File = DefaultFile
	}
	if o.Mode == "" {
		o.Mode = Background
	}
	if o.Period == "" {
		o.Period = "2y"
	}
	if o.Interval == "" {
		o.Interval = "1d"
	}
	if o.ProblemEvery <= 0 {
		o.ProblemEvery = 5
	}
	if o.PricesTTL <= 0 {
		o.PricesTTL = 120 * time.Second
	}
	if o.PriceThrottle <= 0 {
		o.PriceThrottle = 500 * time.Millisecond
	}
	if o.FundHistoryDays <= 0 {
		o.FundHistoryDays = 375
	}
}

// Portfolio is the set of stocks held, their lots and the capital ledger.
type Portfolio struct {
	opts    Options
	store   *Store
	capital *CapitalTracker
	quotes  Quotes
	hist    Historical
	rates   Rates
	valid   TickerValidator
	sched   *scheduler.Scheduler
	log     zerolog.Logger
	now     func() time.Time

	mu          sync.RWMutex
	stocks      map[string]*Stock
	funds       map[string]*Fund
	highlighted map[string]bool

	progress struct {
		sync.Mutex
		pending []string
		done    map[string]bool
	}
	prices   pricesCache
	started  bool
	bgCancel context.CancelFunc
	bgDone   chan struct{}
}

// Open loads the portfolio of opts.Dir and registers its tickers with the live price
// source. In Eager mode the historical data of every ticker is loaded before it returns.
func Open(ctx context.Context, opts Options) (*Portfolio, error) {
	opts.defaults()
	if opts.Quotes == nil || opts.History == nil || opts.Rates == nil {
		return nil, errors.New("portfolio needs quotes, history and rates")
	}
	p := &Portfolio{
		opts:        opts,
		store:       NewStore(opts.Dir),
		quotes:      opts.Quotes,
		hist:        opts.History,
		rates:       opts.Rates,
		valid:       opts.Validator,
		log:         opts.Logger,
		now:         time.Now,
		stocks:      make(map[string]*Stock),
		funds:       make(map[string]*Fund),
		highlighted: make(map[string]bool),
	}
	p.progress.done = make(map[string]bool)
	p.capital = NewCapitalTracker(p.store, p.log)
	p.sched = scheduler.New(p.log)

	start := time.Now()
	if err := p.load(); err != nil {
		return nil, err
	}
	if err := p.capital.Load(); err != nil {
		return nil, err
	}
	switch opts.Mode {
	case Eager:
		p.loadEager(ctx)
	case Skip:
		p.takeAllDone()
	}
	p.log.Info().Int("stocks", len(p.stocks)).Int("funds", len(p.funds)).Dur("elapsed", time.Since(start)).Msg("portfolio opened")
	return p, nil
}

func (p *Portfolio) load() error {
	names := make(map[string]string)
	if _, err := p.store.LoadJSON(p.opts.File, &names); err != nil {
		return err
	}
	var highlighted []string
	if _, err := p.store.LoadJSON(HighlightedFile, &highlighted); err != nil {
		p.log.Warn().Err(err).Msg("cannot read highlighted stocks")
	}
	for _, n := range highlighted {
		p.highlighted[n] = true
	}
	for name, ticker := range names {
		s, err := p.loadStock(name, ticker)
		if err != nil {
			p.log.Error().Err(err).Str("stock", name).Str("ticker", ticker).Msg("failed to load stock")
			continue
		}
		p.stocks[name] = s
		p.quotes.Add(ticker)
		p.progress.pending = append(p.progress.pending, ticker)
	}
	sort.Strings(p.progress.pending)
	return p.loadFunds()
}

func (p *Portfolio) loadStock(name, ticker string) (*Stock, error) {
	s := &Stock{Name: name, Ticker: ticker}
	if _, err := p.store.LoadJSON(LotFileName(ticker), &s.Lots); err != nil {
		return nil, err
	}
	s.setCurrency(p.rates.Currency(ticker))
	return s, nil
}

func (p *Portfolio) saveNames() error {
	names := make(map[string]string, len(p.stocks))
	for n, s := range p.stocks {
		names[n] = s.Ticker
	}
	return p.store.SaveJSON(p.opts.File, names)
}

func (p *Portfolio) saveLots(s *Stock) error {
	lots := s.Lots
	if lots == nil {
		lots = Lots{}
	}
	return p.store.SaveJSON(LotFileName(s.Ticker), lots)
}

func (p *Portfolio) today() date.Date { return date.Of(p.now()) }

// Dir is the portfolio directory.
func (p *Portfolio) Dir() string { return p.store.Dir() }

// Capital is the capital ledger.
func (p *Portfolio) Capital() *CapitalTracker { return p.capital }

// Scheduler runs the background jobs once Start is called. Jobs can be added before.
func (p *Portfolio) Scheduler() *scheduler.Scheduler { return p.sched }

// Names returns the stock names, sorted.
func (p *Portfolio) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.stocks))
	for n := range p.stocks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Tickers returns the tickers of all stocks, sorted.
func (p *Portfolio) Tickers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tickers := make([]string, 0, len(p.stocks))
	for _, s := range p.stocks {
		tickers = append(tickers, s.Ticker)
	}
	sort.Strings(tickers)
	return tickers
}

// NameTickers returns the stock name to ticker map.
func (p *Portfolio) NameTickers() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.stocks))
	for n, s := range p.stocks {
		out[n] = s.Ticker
	}
	return out
}

// Stock returns a copy of the named stock.
func (p *Portfolio) Stock(name string) (Stock, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.stocks[name]
	if !ok {
		return Stock{}, fmt.Errorf("%w: %q", ErrStockNotFound, name)
	}
	c := *s
	c.Lots = slices.Clone(s.Lots)
	return c, nil
}

// NameOf returns the name of the stock with ticker.
func (p *Portfolio) NameOf(ticker string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for n, s := range p.stocks {
		if s.Ticker == ticker {
			return n, true
		}
	}
	return "", false
}

// AddStock adds an empty holding. Names and tickers are unique and the ticker must be
// known to the validator.
func (p *Portfolio) AddStock(ctx context.Context, name, ticker string) error {
	name, ticker = strings.TrimSpace(name), strings.TrimSpace(ticker)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.stocks[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if _, ok := p.funds[name]; ok {
		return fmt.Errorf("%w: %q is a fund", ErrDuplicateName, name)
	}
	for n, s := range p.stocks {
		if s.Ticker == ticker {
			return fmt.Errorf("%w: %q is %q", ErrDuplicateTicker, ticker, n)
		}
	}
	if p.valid != nil {
		ok, err := p.valid.Validate(ctx, ticker)
		if err != nil {
			return fmt.Errorf("validate %s: %w", ticker, err)
		}
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidTicker, ticker)
		}
	}
	s, err := p.loadStock(name, ticker)
	if err != nil {
		return err
	}
	p.stocks[name] = s
	if err := p.saveNames(); err != nil {
		delete(p.stocks, name)
		return err
	}
	p.quotes.Add(ticker)
	p.prices.invalidate()

	p.progress.Lock()
	p.progress.pending = append(p.progress.pending, ticker)
	p.progress.Unlock()
	if p.opts.Mode == Background && p.started {
		go p.loadBackground(context.WithoutCancel(ctx))
	}
	p.log.Info().Str("stock", name).Str("ticker", ticker).Msg("added stock")
	return nil
}

// RemoveStock removes a holding with its lot and profit files.
func (p *Portfolio) RemoveStock(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stocks[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrStockNotFound, name)
	}
	p.quotes.Remove(s.Ticker)
	if err := p.store.Remove(LotFileName(s.Ticker)); err != nil {
		p.log.Warn().Err(err).Str("stock", name).Msg("cannot remove lot file")
	}
	if err := p.store.Remove(ProfitFileName(name)); err != nil {
		p.log.Warn().Err(err).Str("stock", name).Msg("cannot remove profit file")
	}
	delete(p.stocks, name)

	p.progress.Lock()
	p.progress.pending = slices.DeleteFunc(p.progress.pending, func(t string) bool { return t == s.Ticker })
	delete(p.progress.done, s.Ticker)
	p.progress.Unlock()
	p.prices.invalidate()

	if err := p.saveNames(); err != nil {
		return err
	}
	p.log.Info().Str("stock", name).Str("ticker", s.Ticker).Msg("removed stock")
	return nil
}

// Highlight marks a stock.
func (p *Portfolio) Highlight(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.stocks[name]; !ok {
		return fmt.Errorf("%w: %q", ErrStockNotFound, name)
	}
	if p.highlighted[name] {
		return nil
	}
	p.highlighted[name] = true
	return p.saveHighlighted()
}

// Unhighlight clears the mark of a stock. Unknown names are ignored.
func (p *Portfolio) Unhighlight(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.highlighted[name] {
		return nil
	}
	delete(p.highlighted, name)
	return p.saveHighlighted()
}

// IsHighlighted reports whether a stock is marked.
func (p *Portfolio) IsHighlighted(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.highlighted[name]
}

func (p *Portfolio) saveHighlighted() error {
	names := make([]string, 0, len(p.highlighted))
	for n := range p.highlighted {
		names = append(names, n)
	}
	sort.Strings(names)
	return p.store.SaveJSON(HighlightedFile, names)
}

// loadEager loads the default historical frame of every pending ticker.
func (p *Portfolio) loadEager(ctx context.Context) {
	for _, t := range p.takePending() {
		f, err := p.hist.Load(ctx, t, p.opts.Period, p.opts.Interval, true)
		switch {
		case err != nil:
			p.log.Error().Err(err).Str("ticker", t).Msg("failed to load historical data")
		case len(history.Quality(f)) > 0:
			p.log.Warn().Str("ticker", t).Stringer("issues", history.Quality(f)).Msg("historical data quality issues")
		default:
			p.log.Info().Str("ticker", t).Int("rows", f.Len()).Bool("stale", p.hist.IsStale(t)).Msg("historical data loaded")
		}
		p.markDone(t)
	}
}

// loadBackground refreshes the pending tickers, plus the stale and problematic ones, in
// one bulk call.
func (p *Portfolio) loadBackground(ctx context.Context) {
	pending := p.takePending()
	all := p.Tickers()
	refresh := slices.Concat(pending, p.hist.StaleTickers(all), p.hist.ProblematicTickers(all))
	slices.Sort(refresh)
	refresh = slices.Compact(refresh)
	if len(refresh) == 0 {
		return
	}
	rep := p.hist.BulkRefresh(ctx, refresh)
	for _, t := range pending {
		p.markDone(t)
	}
	if len(rep.Failed) > 0 {
		p.log.Warn().Strs("failed", rep.Failed).Msg("background historical loading incomplete")
	}
	p.prices.invalidate()
	p.log.Info().
		Int("succeeded", len(rep.Updated())).
		Int("total", len(refresh)).
		Msg("background historical loading completed")
}

func (p *Portfolio) takePending() []string {
	p.progress.Lock()
	defer p.progress.Unlock()
	out := p.progress.pending
	p.progress.pending = nil
	for _, t := range out {
		p.progress.done[t] = false
	}
	return out
}

func (p *Portfolio) markDone(ticker string) {
	p.progress.Lock()
	defer p.progress.Unlock()
	if _, ok := p.progress.done[ticker]; ok {
		p.progress.done[ticker] = true
	}
}

// Start starts the live price poller, the background historical loading and the
// scheduled historical refresh.
func (p *Portfolio) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	p.quotes.Start(ctx)
	if p.opts.Mode != Skip {
		bg, cancel := context.WithCancel(ctx)
		p.bgCancel = cancel
		p.bgDone = make(chan struct{})
		go func() {
			defer close(p.bgDone)
			if p.opts.Mode == Background {
				p.loadBackground(bg)
			}
			p.ensureBulk(bg)
		}()
	}
	if p.opts.Mode != Skip && p.opts.UpdateInterval > 0 {
		job := scheduler.NewHistoricalJob(p.hist, p.Tickers, p.opts.ProblemEvery, p.log)
		if err := p.sched.Add(scheduler.Every(p.opts.UpdateInterval), &refreshJob{HistoricalJob: job, p: p}); err != nil {
			return err
		}
	}
	p.sched.Start(ctx)
	p.log.Info().Str("mode", string(p.opts.Mode)).Dur("update_interval", p.opts.UpdateInterval).Msg("portfolio started")
	return nil
}

// takeAllDone clears the pending list without loading anything.
func (p *Portfolio) takeAllDone() {
	for _, t := range p.takePending() {
		p.markDone(t)
	}
}

// ensureBulk fills the daily frames of recent closes used by the period columns.
func (p *Portfolio) ensureBulk(ctx context.Context) {
	if err := p.quotes.EnsureBulkHistory(ctx); err != nil {
		p.log.Warn().Err(err).Msg("bulk history incomplete")
	}
	p.prices.invalidate()
}

// refreshJob rebuilds the bulk frames and the prices table after each historical refresh.
type refreshJob struct {
	*scheduler.HistoricalJob
	p *Portfolio
}

func (j *refreshJob) Run(ctx context.Context) error {
	err := j.HistoricalJob.Run(ctx)
	if len(j.Last().Updated()) > 0 {
		j.p.ensureBulk(ctx)
	}
	return err
}

// Close stops every background worker.
func (p *Portfolio) Close() error {
	p.mu.Lock()
	started := p.started
	p.started = false
	p.mu.Unlock()
	if !started {
		return nil
	}
	p.sched.Stop()
	if p.bgCancel != nil {
		p.bgCancel()
		<-p.bgDone
	}
	p.quotes.Stop()
	p.log.Info().Msg("portfolio closed")
	return nil
}

// rate is the SEK value of one unit of cur.
func (p *Portfolio) rate(ctx context.Context, cur string) (float64, error) {
	if cur == "" || cur == Base {
		return 1, nil
	}
	r, err := p.rates.Rate(ctx, cur)
	if err != nil {
		return 0, fmt.Errorf("rate %s: %w", cur, err)
	}
	return r, nil
}

// toSEK converts m with the current rate of its currency.
func (p *Portfolio) toSEK(ctx context.Context, m Money) (Money, error) {
	r, err := p.rate(ctx, m.Currency())
	if err != nil {
		return Money{}, err
	}
	return m.Scale(r).In(Base), nil
}

// PriceOn implements Valuer: the SEK close of the named stock on a past day, or the
// current price for today.
func (p *Portfolio) PriceOn(ctx context.Context, name string, on date.Date) (Money, bool) {
	p.mu.RLock()
	s, ok := p.stocks[name]
	p.mu.RUnlock()
	if !ok {
		return Money{}, false
	}
	days := p.today().DaysSince(on)
	if days <= 0 {
		info, ok := p.quotes.Price(s.Ticker)
		if !ok || info.Current == 0 {
			return Money{}, false
		}
		return SEK(info.CurrentSEK()), true
	}
	v, err := p.hist.CloseDaysAgo(ctx, s.Ticker, days)
	if err != nil || v == 0 {
		return Money{}, false
	}
	return SEK(v), true
}
