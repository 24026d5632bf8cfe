package history

import (
	"context"
	"fmt"
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
	"github.com/h4jen/yspy/yahoo"
)

// chartServer serves 40 daily rows ending today. On its n-th hit the closes are n*100+i.
func chartServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1))
		today := date.Today()
		ts := make([]string, 40)
		closes := make([]string, 40)
		for i := range ts {
			ts[i] = fmt.Sprint(today.Add(i-39).Time().Add(12 * time.Hour).Unix())
			closes[i] = fmt.Sprint(n*100 + i)
		}
		fmt.Fprintf(w, `{"chart":{"result":[{"meta":{"currency":"SEK","gmtoffset":0},"timestamp":[%s],
			"indicators":{"quote":[{"open":[%[2]s],"high":[%[2]s],"low":[%[2]s],"close":[%[2]s],"volume":[%[2]s]}]}}],"error":null}}`,
			strings.Join(ts, ","), strings.Join(closes, ","))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func lastClose(t *testing.T, m *Manager) float64 {
	t.Helper()
	f, err := m.Load(context.Background(), "SAND.ST", "2y", "1d", true)
	require.NoError(t, err)
	return f.Bars[len(f.Bars)-1].Close
}

func TestRefreshesBypassDiskCache(t *testing.T) {
	var hits atomic.Int32
	srv := chartServer(t, &hits)
	client := yahoo.New(yahoo.Options{
		BaseURL:        srv.URL,
		RequestsPerSec: 1000,
		Concurrency:    2,
		CacheDir:       t.TempDir(),
		Logger:         zerolog.Nop(),
	})
	m := New(client, fakeRates{}, Options{Dir: t.TempDir(), RetryDelay: time.Millisecond, Logger: zerolog.Nop()})
	ctx := context.Background()

	rep := m.BulkRefresh(ctx, []string{"SAND.ST"})
	require.Equal(t, []string{"SAND.ST"}, rep.Succeeded)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 139.0, lastClose(t, m))

	require.NoError(t, m.ForceRefresh(ctx, "SAND.ST"))
	assert.Equal(t, int32(2), hits.Load(), "force refresh reaches the API")
	assert.Equal(t, 239.0, lastClose(t, m))

	rep = m.BulkRefresh(ctx, []string{"SAND.ST"})
	require.Equal(t, []string{"SAND.ST"}, rep.Succeeded)
	assert.Equal(t, int32(3), hits.Load(), "bulk refresh reaches the API")
	assert.Equal(t, 339.0, lastClose(t, m))

	// plain loads of a stale file refetch too
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, 439.0, lastClose(t, m))
	assert.Equal(t, int32(4), hits.Load())
}
