package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/h4jen/yspy/date"
)

// ErrNoRate is returned when no exchange rate is known for a currency.
var ErrNoRate = errors.New("no exchange rate")

// RatesFile is the name of the daily rate cache.
const RatesFile = "exchange_rates.json"

// pence is the Yahoo code of prices quoted in hundredths of a pound.
const pence = "GBp"

// defaultRates are used when every provider fails.
var defaultRates = map[string]float64{
	"SEK": 1.0,
	"USD": 10.75, "EUR": 11.76, "GBP": 13.70, "NOK": 0.98,
	"DKK": 1.59, "CHF": 12.05, "JPY": 0.073, "CAD": 7.95, "AUD": 7.12,
}

type getter func(ctx context.Context, url string, out any) error

var httpClient = &http.Client{Timeout: 10 * time.Second}

func httpGetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type ratesFile struct {
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

func (m *Manager) path() string { return filepath.Join(m.dir, RatesFile) }

// ensure loads today's rates from the cache file or the providers. Callers hold m.mu.
func (m *Manager) ensure(ctx context.Context) {
	today := date.Today().String()
	if m.rates != nil && m.ratesOn == today {
		return
	}
	if m.load(today) {
		return
	}
	m.download(ctx, today)
}

func (m *Manager) load(today string) bool {
	data, err := os.ReadFile(m.path())
	if err != nil {
		return false
	}
	var f ratesFile
	if err := json.Unmarshal(data, &f); err != nil {
		m.log.Warn().Err(err).Msg("cannot read cached exchange rates")
		return false
	}
	if f.Date != today || len(f.Rates) == 0 {
		return false
	}
	f.Rates[Base] = 1
	m.rates, m.ratesOn = f.Rates, today
	m.log.Debug().Int("currencies", len(f.Rates)).Msg("loaded cached exchange rates")
	return true
}

// download tries each provider in order. Providers quote units per SEK, so rates are inverted.
func (m *Manager) download(ctx context.Context, today string) {
	for _, url := range m.urls {
		rates, err := m.fetch(ctx, url)
		if err != nil {
			m.log.Warn().Err(err).Str("url", url).Msg("exchange rate provider failed")
			continue
		}
		m.rates, m.ratesOn = rates, today
		m.save(today)
		m.log.Info().Int("currencies", len(rates)).Msg("fetched exchange rates")
		return
	}
	m.log.Warn().Msg("all exchange rate providers failed, using default rates")
	m.rates = make(map[string]float64, len(defaultRates))
	for k, v := range defaultRates {
		m.rates[k] = v
	}
	m.ratesOn = today
	m.save(today)
}

func (m *Manager) fetch(ctx context.Context, url string) (map[string]float64, error) {
	var jobj any
	if err := m.get(ctx, url, &jobj); err != nil {
		return nil, err
	}
	jval, err := jsonpath.Get("$.rates", jobj)
	if err != nil {
		return nil, fmt.Errorf("no rates in response: %w", err)
	}
	raw, ok := jval.(map[string]any)
	if !ok || len(raw) == 0 {
		return nil, errors.New("no rates in response")
	}
	rates := map[string]float64{Base: 1}
	for cur, v := range raw {
		f, ok := v.(float64)
		if !ok || f == 0 {
			continue
		}
		rates[cur] = 1 / f
	}
	return rates, nil
}

func (m *Manager) save(today string) {
	if m.dir == "" {
		return
	}
	data, err := json.MarshalIndent(ratesFile{Date: today, Rates: m.rates}, "", "  ")
	if err == nil {
		err = os.WriteFile(m.path(), data, 0o644)
	}
	if err != nil {
		m.log.Warn().Err(err).Msg("cannot cache exchange rates")
	}
}

// Rate returns the SEK value of one unit of cur.
// Prices in pence are converted through GBP. A missing rate triggers one fresh download
// a day.
func (m *Manager) Rate(ctx context.Context, cur string) (float64, error) {
	if cur == Base || cur == "" {
		return 1, nil
	}
	div := 1.0
	if cur == pence {
		cur, div = "GBP", 100
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(ctx)
	r, ok := m.rates[cur]
	if today := date.Today().String(); !ok && m.missOn != today {
		m.log.Warn().Str("currency", cur).Msg("no exchange rate, refreshing")
		m.missOn = today
		m.download(ctx, today)
		r, ok = m.rates[cur]
	}
	if !ok {
		return 0, fmt.Errorf("%s: %w", cur, ErrNoRate)
	}
	return r / div, nil
}

// Rates returns a copy of the current rate table.
func (m *Manager) Rates(ctx context.Context) map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(ctx)
	out := make(map[string]float64, len(m.rates))
	for k, v := range m.rates {
		out[k] = v
	}
	return out
}

// Refresh forces a new download of today's rates.
func (m *Manager) Refresh(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.download(ctx, date.Today().String())
}

// ToSEK converts amount, expressed in the currency of ticker, to SEK.
func (m *Manager) ToSEK(ctx context.Context, amount float64, ticker string) (float64, error) {
	r, err := m.Rate(ctx, m.Currency(ticker))
	if err != nil {
		return 0, err
	}
	return amount * r, nil
}

// FromSEK converts a SEK amount to the currency of ticker.
func (m *Manager) FromSEK(ctx context.Context, amount float64, ticker string) (float64, error) {
	r, err := m.Rate(ctx, m.Currency(ticker))
	if err != nil {
		return 0, err
	}
	return amount / r, nil
}

// Convert converts amount between two currency codes.
func (m *Manager) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	if from == to {
		return amount, nil
	}
	rf, err := m.Rate(ctx, from)
	if err != nil {
		return 0, err
	}
	rt, err := m.Rate(ctx, to)
	if err != nil {
		return 0, err
	}
	return amount * rf / rt, nil
}
