package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h4jen/yspy/date"
)

func TestCurrency(t *testing.T) {
	lookups := 0
	m := New(Options{Lookup: func(ctx context.Context, ticker string) (string, error) {
		lookups++
		if ticker == "BP.L" {
			return "GBp", nil
		}
		return "", errors.New("offline")
	}, Logger: zerolog.Nop()})

	tests := []struct {
		ticker string
		want   string
	}{
		{"VOLV-B.ST", "SEK"},
		{"nokia.he", "EUR"},
		{"EQNR.OL", "NOK"},
		{"AAPL", "USD"},
		{"SSLV.L", "USD"},
		{"NOVO-B.CO", "DKK"},
		{"BP.L", "GBp"},
		{"UNKNOWN", "SEK"},
	}
	for _, tt := range tests {
		t.Run(tt.ticker, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Currency(tt.ticker))
		})
	}
	m.Currency("BP.L")
	assert.Equal(t, 2, lookups, "online answers are cached")
}

func newRateServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		fmt.Fprint(w, `{"base":"SEK","rates":{"SEK":1,"USD":0.1,"EUR":0.08,"GBP":0.0625,"XXX":0}}`)
	}))
}

func TestRatesDownloadAndCache(t *testing.T) {
	calls := 0
	srv := newRateServer(t, &calls)
	defer srv.Close()
	dir := t.TempDir()

	m := New(Options{Dir: dir, URLs: []string{"http://127.0.0.1:1/broken", srv.URL}, Logger: zerolog.Nop()})
	r, err := m.Rate(context.Background(), "USD")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, r, 1e-9)

	r, err = m.Rate(context.Background(), "GBp")
	require.NoError(t, err)
	assert.InDelta(t, 0.16, r, 1e-9)

	data, err := os.ReadFile(filepath.Join(dir, RatesFile))
	require.NoError(t, err)
	var f ratesFile
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, date.Today().String(), f.Date)
	assert.InDelta(t, 12.5, f.Rates["EUR"], 1e-9)
	assert.NotContains(t, f.Rates, "XXX")

	// a second manager reads today's file instead of downloading
	m2 := New(Options{Dir: dir, URLs: []string{srv.URL}, Logger: zerolog.Nop()})
	r, err = m2.Rate(context.Background(), "EUR")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, r, 1e-9)
	assert.Equal(t, 1, calls)
}

func TestRatesStaleFileIsIgnored(t *testing.T) {
	calls := 0
	srv := newRateServer(t, &calls)
	defer srv.Close()
	dir := t.TempDir()
	stale := `{"date":"2020-01-01","rates":{"SEK":1,"USD":99}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, RatesFile), []byte(stale), 0o644))

	m := New(Options{Dir: dir, URLs: []string{srv.URL}, Logger: zerolog.Nop()})
	r, err := m.Rate(context.Background(), "USD")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, r, 1e-9)
	assert.Equal(t, 1, calls)
}

func TestRatesFallbackToDefaults(t *testing.T) {
	m := New(Options{Dir: t.TempDir(), Logger: zerolog.Nop()})
	gets := 0
	m.get = func(ctx context.Context, url string, out any) error {
		gets++
		return errors.New("offline")
	}
	m.urls = []string{"a", "b"}

	r, err := m.Rate(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, 10.75, r)
	assert.Equal(t, 2, gets)

	_, err = m.Rate(context.Background(), "ZZZ")
	assert.ErrorIs(t, err, ErrNoRate)
	assert.Equal(t, 4, gets, "a missing rate retries the providers once")

	for range 3 {
		_, err = m.Rate(context.Background(), "ZZZ")
		assert.ErrorIs(t, err, ErrNoRate)
	}
	assert.Equal(t, 4, gets, "no more downloads today")

	m.Refresh(context.Background())
	assert.Equal(t, 6, gets, "explicit refreshes still download")
}

func TestConversions(t *testing.T) {
	m := New(Options{Logger: zerolog.Nop()})
	m.rates = map[string]float64{"SEK": 1, "USD": 10, "EUR": 12}
	m.ratesOn = date.Today().String()
	ctx := context.Background()

	v, err := m.ToSEK(ctx, 5, "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 50.0, v, 1e-9)

	v, err = m.ToSEK(ctx, 5, "VOLV-B.ST")
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	v, err = m.FromSEK(ctx, 120, "SAP.DE")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, v, 1e-9)

	v, err = m.Convert(ctx, 6, "EUR", "USD")
	require.NoError(t, err)
	assert.InDelta(t, 7.2, v, 1e-9)
}
