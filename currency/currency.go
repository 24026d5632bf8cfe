// Package currency maps tickers to their trading currency and converts amounts to SEK.
package currency

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Base is the reporting currency of the portfolio.
const Base = "SEK"

// tickerCurrency lists tickers whose suffix alone does not tell the currency.
var tickerCurrency = map[string]string{
	"AAPL": "USD", "GOOGL": "USD", "MSFT": "USD", "TSLA": "USD",
	"AMZN": "USD", "META": "USD", "NFLX": "USD", "NVDA": "USD",
	"ASML": "EUR", "SAP": "EUR",
	"NESN": "CHF", "NOVN": "CHF",
	"EQNR": "NOK", "DNB": "NOK", "MOWI": "NOK",
	"NOVO-B": "DKK", "MAERSK-B": "DKK", "CARL-B": "DKK",
	// London listed ETCs trade in USD
	"SSLV.L": "USD", "PHPT.L": "USD", "PHAG.L": "USD",
	"PHAU.L": "USD", "PHPM.L": "USD", "SLVR.L": "USD",
	"PHAG.AS": "EUR",
}

// suffixCurrency maps exchange suffixes to currencies.
var suffixCurrency = map[string]string{
	"ST": "SEK", "HE": "EUR", "CO": "DKK", "OL": "NOK",
	"DE": "EUR", "FI": "EUR", "DK": "DKK", "NO": "NOK",
	"AS": "EUR", "PA": "EUR", "MI": "EUR", "SW": "CHF",
}

// LookupFunc asks the market API for the currency of a ticker.
type LookupFunc func(ctx context.Context, ticker string) (string, error)

// Manager resolves ticker currencies and exchange rates.
type Manager struct {
	dir    string
	urls   []string
	lookup LookupFunc
	log    zerolog.Logger
	get    getter

	mu      sync.Mutex
	rates   map[string]float64 // SEK per unit
	ratesOn string             // day the rates were downloaded
	missOn  string             // day a missing rate last forced a download
	online  map[string]string  // currencies found online
}

// Options configures a Manager.
type Options struct {
	Dir    string     // where exchange_rates.json lives
	URLs   []string   // rate providers, tried in order
	Lookup LookupFunc // optional online currency lookup
	Logger zerolog.Logger
}

// New returns a Manager. Rates are loaded lazily on first use.
func New(opts Options) *Manager {
	return &Manager{
		dir:    opts.Dir,
		urls:   opts.URLs,
		lookup: opts.Lookup,
		log:    opts.Logger,
		get:    httpGetJSON,
		online: make(map[string]string),
	}
}

// Currency returns the trading currency of ticker.
//
// The full ticker is looked up first, then the ticker without exchange suffix, then the
// suffix itself. Unknown tickers are looked up online once when a lookup is configured.
// SEK is the default.
func (m *Manager) Currency(ticker string) string {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if cur, ok := tickerCurrency[ticker]; ok {
		return cur
	}
	base, suffix, hasSuffix := strings.Cut(ticker, ".")
	if cur, ok := tickerCurrency[base]; ok {
		return cur
	}
	if hasSuffix {
		if cur, ok := suffixCurrency[suffix]; ok {
			return cur
		}
	}

	m.mu.Lock()
	cur, ok := m.online[ticker]
	m.mu.Unlock()
	if ok {
		return cur
	}
	if m.lookup == nil {
		return Base
	}
	cur, err := m.lookup(context.Background(), ticker)
	if err != nil || cur == "" {
		m.log.Debug().Err(err).Str("ticker", ticker).Msg("online currency lookup failed, using SEK")
		cur = Base
	}
	m.mu.Lock()
	m.online[ticker] = cur
	m.mu.Unlock()
	return cur
}
