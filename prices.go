package portfolio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/h4jen/yspy/realtime"
)

// StockDetail is the position of one stock valued at the current price. Money values are
// in SEK.
type StockDetail struct {
	Name           string
	Ticker         string
	Shares         Quantity
	AvgPrice       Money
	CurrentPrice   Money
	Currency       string
	MarketValue    Money
	TotalCost      Money
	UnrealizedGain Money
}

// StockDetails values every stock with a valid ticker, sorted by name.
func (p *Portfolio) StockDetails(ctx context.Context) []StockDetail {
	var out []StockDetail
	for _, name := range p.Names() {
		s, err := p.Stock(name)
		if err != nil {
			continue
		}
		if p.valid != nil {
			if ok, err := p.valid.Validate(ctx, s.Ticker); err == nil && !ok {
				continue
			}
		}
		shares := s.TotalShares()
		d := StockDetail{
			Name:           name,
			Ticker:         s.Ticker,
			Shares:         shares,
			AvgPrice:       SEK(0),
			CurrentPrice:   SEK(0),
			Currency:       s.Currency,
			MarketValue:    SEK(0),
			TotalCost:      SEK(0),
			UnrealizedGain: SEK(0),
		}
		if avg, err := p.toSEK(ctx, s.AveragePrice()); err == nil {
			d.AvgPrice = avg
		} else {
			p.log.Warn().Err(err).Str("stock", name).Msg("cannot convert average price")
		}
		if info, ok := p.quotes.Price(s.Ticker); ok {
			d.CurrentPrice = SEK(info.CurrentSEK())
		}
		if !d.CurrentPrice.IsZero() {
			d.MarketValue = d.CurrentPrice.Mul(shares)
		}
		if !d.AvgPrice.IsZero() {
			d.TotalCost = d.AvgPrice.Mul(shares)
		}
		if !d.CurrentPrice.IsZero() && !d.AvgPrice.IsZero() {
			d.UnrealizedGain = d.CurrentPrice.Sub(d.AvgPrice).Mul(shares)
		}
		out = append(out, d)
	}
	return out
}

// Period is a lookback of the prices table.
type Period struct {
	Label string
	Days  int
}

// Periods are the historical columns of the prices table.
var Periods = []Period{
	{"1d", 1}, {"2d", 2}, {"3d", 3}, {"1w", 7}, {"2w", 14},
	{"1m", 21}, {"3m", 63}, {"6m", 126}, {"1y", 365},
}

// PeriodClose is the close of a past day and the change since, in the native currency.
type PeriodClose struct {
	Period
	SEK    float64
	Native float64
	Change float64 // percent
	Known  bool    // Change is set
}

// StockPrice is a row of the prices table. Prices are per share.
type StockPrice struct {
	Name       string
	Ticker     string
	Shares     Quantity
	Currency   string
	Price      float64 // current, SEK
	TotalValue float64 // SEK
	Current    float64
	High       float64
	Low        float64
	Open       float64

	CurrentNative float64
	HighNative    float64
	LowNative     float64
	OpenNative    float64

	History []PeriodClose
	Updated time.Time
}

// setQuote copies the live prices into the row.
func (r *StockPrice) setQuote(info realtime.PriceInfo) {
	r.Currency = info.Currency
	r.Price = info.CurrentSEK()
	r.Current = info.CurrentSEK()
	r.High = info.HighSEK()
	r.Low = info.LowSEK()
	r.Open = info.OpenSEK()
	r.CurrentNative = info.Current
	r.HighNative = info.High
	r.LowNative = info.Low
	r.OpenNative = info.Open
	r.TotalValue = 0
	if r.Price != 0 {
		r.TotalValue = r.Price * r.Shares.Float()
	}
	r.Updated = info.Updated
	r.changes()
}

// changes recomputes the % columns against the current native price.
func (r *StockPrice) changes() {
	for i := range r.History {
		h := &r.History[i]
		h.Known = h.Native != 0 && r.CurrentNative != 0
		h.Change = 0
		if h.Known {
			h.Change = (r.CurrentNative - h.Native) / h.Native * 100
		}
	}
}

// Change returns the % change over the period label.
func (r StockPrice) Change(label string) (float64, bool) {
	for _, h := range r.History {
		if h.Label == label {
			return h.Change, h.Known
		}
	}
	return 0, false
}

type pricesCache struct {
	mu        sync.Mutex
	rows      []StockPrice
	zero      bool
	built     time.Time
	refreshed time.Time
	// stale is set without mu, by callers that may hold the portfolio lock.
	stale atomic.Bool
}

func (c *pricesCache) invalidate() { c.stale.Store(true) }

// StockPrices returns the prices table sorted by name. Stocks without shares are left
// out unless includeZero. With history the table is cached for the cache TTL, and
// inside the TTL only the current prices are refreshed, at most once per throttle
// interval.
func (p *Portfolio) StockPrices(ctx context.Context, includeZero, withHistory bool) []StockPrice {
	if !withHistory {
		return p.buildPrices(ctx, includeZero, false)
	}
	c := &p.prices
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale.Swap(false) {
		c.rows = nil
	}
	now := p.now()
	if c.rows != nil && c.zero == includeZero && now.Sub(c.built) < p.opts.PricesTTL {
		if now.Sub(c.refreshed) > p.opts.PriceThrottle {
			p.refreshCurrent(c.rows)
			c.refreshed = now
		}
		return cloneRows(c.rows)
	}
	p.log.Debug().Msg("rebuilding stock prices table")
	start := time.Now()
	c.rows = p.buildPrices(ctx, includeZero, true)
	c.zero = includeZero
	c.built, c.refreshed = now, now
	if d := time.Since(start); d > 100*time.Millisecond {
		p.log.Warn().Dur("elapsed", d).Int("stocks", len(c.rows)).Msg("slow stock prices build")
	}
	return cloneRows(c.rows)
}

func cloneRows(rows []StockPrice) []StockPrice {
	out := make([]StockPrice, len(rows))
	for i, r := range rows {
		r.History = append([]PeriodClose(nil), r.History...)
		out[i] = r
	}
	return out
}

// refreshCurrent updates the rows whose native price moved.
func (p *Portfolio) refreshCurrent(rows []StockPrice) {
	for i := range rows {
		info, ok := p.quotes.Price(rows[i].Ticker)
		if !ok || info.Current == rows[i].CurrentNative {
			continue
		}
		rows[i].setQuote(info)
	}
}

func (p *Portfolio) buildPrices(ctx context.Context, includeZero, withHistory bool) []StockPrice {
	var rows []StockPrice
	for _, name := range p.Names() {
		s, err := p.Stock(name)
		if err != nil {
			continue
		}
		shares := s.TotalShares()
		if !includeZero && shares.IsZero() {
			continue
		}
		info, ok := p.quotes.Price(s.Ticker)
		if !ok {
			continue
		}
		row := StockPrice{Name: name, Ticker: s.Ticker, Shares: shares}
		if withHistory {
			row.History = make([]PeriodClose, len(Periods))
			for i, per := range Periods {
				h := PeriodClose{Period: per}
				if v, err := p.hist.CloseDaysAgo(ctx, s.Ticker, per.Days); err == nil {
					h.SEK = v
				}
				if v, err := p.hist.CloseDaysAgoNative(ctx, s.Ticker, per.Days); err == nil {
					h.Native = v
				}
				row.History[i] = h
			}
		}
		row.setQuote(info)
		rows = append(rows, row)
	}
	return rows
}
