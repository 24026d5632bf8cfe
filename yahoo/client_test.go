package yahoo

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h4jen/yspy/date"
)

// 2025-01-02 and 2025-01-03 at 08:00 UTC.
const chartPayload = `{"chart":{"result":[{
  "meta":{"currency":"SEK","symbol":"VOLV-B.ST","longName":"AB Volvo","regularMarketPrice":251.5,
          "regularMarketDayHigh":253.0,"regularMarketDayLow":249.0,"chartPreviousClose":250.0,
          "regularMarketTime":1735891200,"gmtoffset":3600},
  "timestamp":[1735804800,1735891200],
  "indicators":{"quote":[{"open":[248.0,250.5],"high":[251.0,253.0],"low":[247.0,249.0],
                           "close":[250.0,null],"volume":[1000,1200]}]}}],"error":null}}`

const notFoundPayload = `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`

func newTestServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch {
		case strings.HasPrefix(r.URL.Path, "/v8/finance/chart/VOLV-B.ST"):
			fmt.Fprint(w, chartPayload)
		case strings.HasPrefix(r.URL.Path, "/v8/finance/chart/"):
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, notFoundPayload)
		case r.URL.Path == "/v1/finance/search":
			fmt.Fprint(w, `{"quotes":[{"symbol":"VOLV-B.ST","longname":"AB Volvo (publ)","exchange":"STO","quoteType":"EQUITY"},
			                          {"symbol":"VOLCAR-B.ST","shortname":"Volvo Car AB","exchange":"STO","quoteType":"EQUITY"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestClient(srv *httptest.Server, cacheDir string) *Client {
	return New(Options{
		BaseURL:        srv.URL,
		RequestsPerSec: 1000,
		Concurrency:    4,
		CacheDir:       cacheDir,
		Logger:         zerolog.Nop(),
	})
}

func TestQuote(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls)
	defer srv.Close()
	c := newTestClient(srv, "")

	q, err := c.Quote(context.Background(), "VOLV-B.ST")
	require.NoError(t, err)
	assert.Equal(t, "SEK", q.Currency)
	assert.Equal(t, "AB Volvo", q.Name)
	assert.Equal(t, 251.5, q.Current)
	assert.Equal(t, 253.0, q.High)
	assert.Equal(t, 249.0, q.Low)
	assert.Equal(t, 250.5, q.Open)
	assert.Equal(t, 250.0, q.PreviousClose)

	n, last := c.CallStats()
	assert.Equal(t, 1, n)
	assert.False(t, last.IsZero())
}

func TestChartNullsAreNaN(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls)
	defer srv.Close()
	c := newTestClient(srv, "")

	bars, err := c.Chart(context.Background(), "VOLV-B.ST", "5d", "1d")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, date.New(2025, 1, 2), bars[0].Date)
	assert.Equal(t, 250.0, bars[0].Close)
	assert.True(t, math.IsNaN(bars[1].Close))
}

func TestNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls)
	defer srv.Close()
	c := newTestClient(srv, "")

	_, err := c.Quote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := c.Validate(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.False(t, ok)

	before := calls.Load()
	ok, err = c.Validate(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, calls.Load(), "validation answers are cached")
}

func TestQuotesBulkKeepsSuccesses(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls)
	defer srv.Close()
	c := newTestClient(srv, "")

	quotes, err := c.Quotes(context.Background(), []string{"VOLV-B.ST", "NOPE"})
	assert.Error(t, err)
	assert.Len(t, quotes, 1)
	assert.Contains(t, quotes, "VOLV-B.ST")
}

func TestChartDiskCache(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls)
	defer srv.Close()
	c := newTestClient(srv, t.TempDir())
	c.cached.Transport.(*diskCache).now = func() time.Time { return time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC) }

	for i := 0; i < 3; i++ {
		bars, err := c.Chart(context.Background(), "VOLV-B.ST", "2y", "1d")
		require.NoError(t, err)
		require.Len(t, bars, 2)
	}
	assert.Equal(t, int32(1), calls.Load())

	_, err := c.Chart(Fresh(context.Background()), "VOLV-B.ST", "2y", "1d")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "fresh requests skip the cache")
	_, err = c.Chart(context.Background(), "VOLV-B.ST", "2y", "1d")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls)
	defer srv.Close()
	c := newTestClient(srv, "")

	matches, err := c.Search(context.Background(), "volvo")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, Match{Symbol: "VOLV-B.ST", Name: "AB Volvo (publ)", Exchange: "STO", Type: "EQUITY"}, matches[0])
	assert.Equal(t, "Volvo Car AB", matches[1].Name)
}
