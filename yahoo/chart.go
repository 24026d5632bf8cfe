package yahoo

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/h4jen/yspy/date"
)

// Bar is one OHLCV row. Missing values are NaN.
type Bar struct {
	Date   date.Date
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Quote is the live state of a symbol.
type Quote struct {
	Symbol        string
	Currency      string
	Name          string
	Current       float64
	High          float64
	Low           float64
	Open          float64
	PreviousClose float64
	MarketTime    time.Time
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Currency           string  `json:"currency"`
		Symbol             string  `json:"symbol"`
		LongName           string  `json:"longName"`
		ShortName          string  `json:"shortName"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		RegularMarketTime  int64   `json:"regularMarketTime"`
		DayHigh            float64 `json:"regularMarketDayHigh"`
		DayLow             float64 `json:"regularMarketDayLow"`
		ChartPreviousClose float64 `json:"chartPreviousClose"`
		PreviousClose      float64 `json:"previousClose"`
		GMTOffset          int64   `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

func (c *Client) chart(ctx context.Context, symbol, span, interval string, cached bool) (*chartResult, error) {
	q := url.Values{}
	q.Set("range", span)
	q.Set("interval", interval)
	q.Set("includePrePost", "false")
	addr := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.base, url.PathEscape(symbol), q.Encode())

	client := c.live
	if cached {
		client = c.cached
	}
	var resp chartResponse
	if err := c.jwget(ctx, client, addr, &resp); err != nil {
		return nil, fmt.Errorf("chart %s: %w", symbol, err)
	}
	if e := resp.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return nil, fmt.Errorf("chart %s: %w", symbol, ErrNotFound)
		}
		return nil, fmt.Errorf("chart %s: %s: %s", symbol, e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart %s: %w", symbol, ErrNotFound)
	}
	return &resp.Chart.Result[0], nil
}

func value(vs []*float64, i int) float64 {
	if i >= len(vs) || vs[i] == nil {
		return math.NaN()
	}
	return *vs[i]
}

// bars converts the columnar payload into rows dated in the exchange's local day.
func (r *chartResult) bars() []Bar {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]
	bars := make([]Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		local := time.Unix(ts+r.Meta.GMTOffset, 0).UTC()
		bars = append(bars, Bar{
			Date:   date.Of(local),
			Open:   value(q.Open, i),
			High:   value(q.High, i),
			Low:    value(q.Low, i),
			Close:  value(q.Close, i),
			Volume: value(q.Volume, i),
		})
	}
	return bars
}

// Chart returns daily (or other interval) bars of symbol over span, e.g. "2y" and "1d".
func (c *Client) Chart(ctx context.Context, symbol, span, interval string) ([]Bar, error) {
	r, err := c.chart(ctx, symbol, span, interval, true)
	if err != nil {
		return nil, err
	}
	return r.bars(), nil
}

// Quote returns the live quote of symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (Quote, error) {
	r, err := c.chart(ctx, symbol, "1d", "1d", false)
	if err != nil {
		return Quote{}, err
	}
	m := r.Meta
	q := Quote{
		Symbol:        symbol,
		Currency:      m.Currency,
		Name:          m.LongName,
		Current:       m.RegularMarketPrice,
		High:          m.DayHigh,
		Low:           m.DayLow,
		Open:          math.NaN(),
		PreviousClose: m.ChartPreviousClose,
	}
	if q.Name == "" {
		q.Name = m.ShortName
	}
	if q.PreviousClose == 0 {
		q.PreviousClose = m.PreviousClose
	}
	if m.RegularMarketTime > 0 {
		q.MarketTime = time.Unix(m.RegularMarketTime, 0)
	}
	if bars := r.bars(); len(bars) > 0 {
		last := bars[len(bars)-1]
		q.Open = last.Open
		if q.High == 0 {
			q.High = last.High
		}
		if q.Low == 0 {
			q.Low = last.Low
		}
	}
	if q.Current == 0 {
		return q, fmt.Errorf("quote %s: no market price: %w", symbol, ErrNotFound)
	}
	return q, nil
}
