package renderer

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/h4jen/yspy"
	"github.com/h4jen/yspy/correlation"
	"github.com/h4jen/yspy/date"
	"github.com/h4jen/yspy/scheduler"
	"github.com/h4jen/yspy/shorts"
	"github.com/h4jen/yspy/yahoo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"gonum.org/v1/gonum/mat"
)

// tables parses md and returns every table as rows of cell texts, header first.
func tables(t *testing.T, md string) [][][]string {
	t.Helper()
	src := []byte(md)
	root := goldmark.New(goldmark.WithExtensions(extension.Table)).Parser().Parse(text.NewReader(src))

	var out [][][]string
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *east.Table:
			out = append(out, nil)
		case *east.TableHeader, *east.TableRow:
			var row []string
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				row = append(row, cellText(c, src))
			}
			out[len(out)-1] = append(out[len(out)-1], row)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return out
}

func cellText(n ast.Node, src []byte) string {
	var b strings.Builder
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch c := c.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(src))
		case *ast.String:
			b.Write(c.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func amt(v float64) portfolio.Money { return portfolio.M(v, "") }

func TestRenderHoldings(t *testing.T) {
	h := &Holdings{
		On: date.New(2025, time.March, 14),
		Stocks: []portfolio.StockDetail{
			{
				Name: "Apple", Ticker: "AAPL",
				Shares:         portfolio.Q(2),
				AvgPrice:       amt(150),
				CurrentPrice:   amt(200),
				MarketValue:    amt(4000),
				TotalCost:      amt(3000),
				UnrealizedGain: amt(1000),
			},
			{
				Name: "Volvo", Ticker: "VOLV-B.ST",
				Shares:         portfolio.Q(10),
				AvgPrice:       amt(250),
				CurrentPrice:   amt(240),
				MarketValue:    amt(2400),
				TotalCost:      amt(2500),
				UnrealizedGain: amt(-100),
			},
		},
		Highlighted: map[string]bool{"Volvo": true},
	}
	md := RenderHoldings(h)
	assert.Contains(t, md, "# Holdings on 2025-03-14")

	tbl := tables(t, md)
	require.Len(t, tbl, 1)
	require.Len(t, tbl[0], 3)
	assert.Equal(t, []string{"", "Stock", "Ticker", "Shares", "Avg Price", "Current", "Value", "Gain"}, tbl[0][0])
	assert.Equal(t, []string{"", "Apple", "AAPL", "2", "150.00", "200.00", "4000.00", "+1000.00"}, tbl[0][1])
	assert.Equal(t, "★", tbl[0][2][0])
	assert.Equal(t, "-100.00", tbl[0][2][7])

	assert.Contains(t, md, "- Total value: 6400.00")
	assert.Contains(t, md, "- Unrealized gain: +900.00 (+16.36%)")
	assert.NotContains(t, md, "Cash")

	cash := amt(1234.5)
	h.Cash = &cash
	assert.Contains(t, RenderHoldings(h), "- Cash: 1234.50")
}

func TestRenderHoldingsEmpty(t *testing.T) {
	md := RenderHoldings(&Holdings{})
	assert.Contains(t, md, "No stocks in the portfolio")
	assert.Empty(t, tables(t, md))
	assert.NotContains(t, md, " on ")
}

func TestRenderWatch(t *testing.T) {
	periods := portfolio.Periods[:2]
	w := &Watch{
		Updated: time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
		Rows: []portfolio.StockPrice{{
			Name: "Apple", Ticker: "AAPL", Currency: "USD",
			Shares:        portfolio.Q(2),
			TotalValue:    4000,
			CurrentNative: 200, HighNative: 201, LowNative: 199,
			History: []portfolio.PeriodClose{
				{Period: periods[0], Change: 2.5, Known: true},
				{Period: periods[1]},
			},
		}},
		Highlighted: map[string]bool{"Apple": true},
		History:     true,
		Periods:     periods,
		Stats:       portfolio.UpdateStats{BulkUpdates: 3, APICalls: 7, StaleCount: 1},
		Loaded:      1,
		Total:       2,
	}
	md := RenderWatch(w, WatchRenderOptions{})
	assert.Contains(t, md, "*Updated 2025-03-14 12:00:00, loading history 1/2*")
	assert.Contains(t, md, "API calls: 7 (last never), bulk updates: 3 (last never), stale: 1*")

	tbl := tables(t, md)
	require.Len(t, tbl, 1)
	require.Len(t, tbl[0], 3)
	assert.Equal(t, []string{"", "Stock", "Price", "High", "Low", "Open", "Shares", "Value (SEK)", "1d", "2d"}, tbl[0][0])
	assert.Equal(t, []string{"★", "Apple", "200.00 USD", "201.00", "199.00", "-", "2", "4000.00", "+2.50%", "-"}, tbl[0][1])
	assert.Equal(t, "Total", tbl[0][2][1])
	assert.Equal(t, "4000.00", tbl[0][2][7])

	w.History = false
	w.Loaded = 2
	md = RenderWatch(w, WatchRenderOptions{SkipStatus: true})
	assert.NotContains(t, md, "API calls")
	assert.NotContains(t, md, "loading")
	assert.Len(t, tables(t, md)[0][0], 8)
}

func TestRenderCapital(t *testing.T) {
	c := &Capital{
		CapitalSummary: portfolio.CapitalSummary{
			TotalDeposits:       amt(10000),
			TotalWithdrawals:    amt(0),
			NetCapitalInput:     amt(10000),
			CashBalance:         amt(2000),
			StockValueAtCost:    amt(8000),
			StockValueCurrent:   amt(9000),
			PortfolioValueTotal: amt(11000),
			UnrealizedGain:      amt(1000),
			TotalGain:           amt(1000),
			SimpleReturn:        amt(1000),
			SimpleReturnPercent: 10,
			TWRPercent:          10,
			AnnualizedPercent:   10,
			DaysInvested:        365,
			Method:              "FIFO",
			NumEvents:           2,
		},
		Totals: portfolio.CapitalTotals{TotalFees: amt(39)},
	}
	md := RenderCapital(c)
	tbl := tables(t, md)
	require.Len(t, tbl, 2)
	assert.Equal(t, []string{"Portfolio value", "11000.00"}, tbl[0][7])
	assert.Equal(t, []string{"Fees paid", "39.00"}, tbl[0][8])
	assert.Equal(t, []string{"Unrealized", "+1000.00"}, tbl[1][1])
	assert.Contains(t, md, "- Simple return: +1000.00 (+10.00%)")
	assert.Contains(t, md, "- Time-weighted return: +10.00% over 365 days, +10.00% annualized")
}

func TestRenderSellsAndBuys(t *testing.T) {
	day := date.New(2025, time.March, 14)
	s := &Sells{Transactions: []portfolio.SellTransaction{{
		StockName:   "Volvo",
		SellDate:    day,
		SellPrice:   amt(300),
		TotalVolume: portfolio.Q(5),
		TotalProfit: amt(250),
		Records:     make([]portfolio.ProfitRecord, 2),
	}}}
	tbl := tables(t, RenderSells(s))
	require.Len(t, tbl, 1)
	assert.Equal(t, []string{"1", "2025-03-14", "Volvo", "5", "300.00", "+250.00", "2"}, tbl[0][1])
	assert.Contains(t, RenderSells(&Sells{}), "No sells recorded")

	b := &Buys{Records: []portfolio.BuyRecord{
		{StockName: "Apple", Volume: portfolio.Q(2), Price: amt(150), Date: day},
		{StockName: "Volvo", Volume: portfolio.Q(10), Price: amt(250), Date: day.Add(-1)},
	}}
	tbl = tables(t, RenderBuys(b))
	require.Len(t, tbl[0], 3)
	assert.Equal(t, []string{"2", "2025-03-13", "Volvo", "10", "250.00"}, tbl[0][2])
}

func TestRenderFunds(t *testing.T) {
	f := &Funds{Rows: []portfolio.FundDetail{
		{
			Name:     "Global Index",
			Info:     portfolio.FundInfo{AvanzaID: "777", ISIN: "SE0000000777"},
			Units:    portfolio.Q(10.5),
			AvgPrice: amt(100),
			NAV:      amt(120),
			Value:    portfolio.SEK(12600),
			Gain:     portfolio.SEK(2100),
			Change1D: 20,
			Change1M: math.NaN(),
		},
		{
			Name:     "Robur Teknik",
			Info:     portfolio.FundInfo{AvanzaID: "41567"},
			Units:    portfolio.Q(2),
			AvgPrice: amt(90),
			Err:      errors.New("fund not found"),
		},
	}}
	md := RenderFunds(f)
	tbl := tables(t, md)
	require.Len(t, tbl, 1)
	require.Len(t, tbl[0], 3)
	assert.Equal(t, []string{"Global Index", "777", "SE0000000777", "10.5", "100.00", "120.00"}, tbl[0][1][:6])
	assert.Equal(t, []string{"+20.00%", "-"}, tbl[0][1][8:])
	assert.Equal(t, []string{"-", "-", "-", "-", "-"}, tbl[0][2][5:])
	assert.Contains(t, md, "- *Robur Teknik: fund not found*")
	assert.Equal(t, 12600.0, f.TotalValue().Float())
	assert.Equal(t, 2100.0, f.TotalGain().Float())
	assert.Contains(t, RenderFunds(&Funds{}), "*No managed funds.*")
}

func TestRenderSearch(t *testing.T) {
	s := &Search{Query: "volvo", Matches: []yahoo.Match{
		{Symbol: "VOLV-B.ST", Name: "AB Volvo (publ)", Exchange: "STO", Type: "EQUITY"},
	}}
	md := RenderSearch(s)
	assert.Contains(t, md, `# Symbols matching "volvo"`)
	tbl := tables(t, md)
	require.Len(t, tbl, 1)
	assert.Equal(t, []string{"VOLV-B.ST", "AB Volvo (publ)", "STO", "EQUITY"}, tbl[0][1])
	assert.Contains(t, RenderSearch(&Search{Query: "zz"}), "*No match.*")
}

func TestRenderValidation(t *testing.T) {
	v := &Validation{Results: []portfolio.TickerValidation{
		{Ticker: "AAPL", Status: portfolio.StatusStale, Rows: 30, Issues: []string{"data is 5 days old"},
			FirstDate: date.New(2025, 2, 2), LastDate: date.New(2025, 3, 9)},
		{Ticker: "VOLV-B.ST", Status: portfolio.StatusGood, Rows: 30,
			FirstDate: date.New(2025, 2, 2), LastDate: date.New(2025, 3, 13)},
	}}
	md := RenderValidation(v)
	tbl := tables(t, md)
	require.Len(t, tbl, 1)
	assert.Equal(t, []string{"⏰", "AAPL", "stale", "30", "2025-02-02 to 2025-03-09"}, tbl[0][1])
	assert.Contains(t, md, "- Good: 1, stale: 1, with issues: 0")
	assert.Contains(t, md, "- **AAPL**: data is 5 days old")
	assert.NotContains(t, md, "**VOLV-B.ST**")
}

func TestRenderCorrelationMatrix(t *testing.T) {
	m := mat.NewSymDense(2, []float64{1, 0.8, 0.8, 1})
	r := &correlation.Result{Names: []string{"A", "B"}, Matrix: m, Points: 20}
	c := &Correlation{
		Method:   "pearson",
		Period:   "1y",
		Matrices: &correlation.Matrices{Prices: r, Returns: r},
		Skipped:  []string{"C"},
	}
	md := RenderCorrelation(c)
	tbl := tables(t, md)
	require.Len(t, tbl, 2)
	assert.Equal(t, []string{"", "A", "B"}, tbl[0][0])
	assert.Equal(t, []string{"A", "1.00", "0.80"}, tbl[0][1])
	assert.Contains(t, md, "## Price correlation (20 days)")
	assert.Contains(t, md, "Skipped for lack of data: C")
}

func TestRenderCorrelationRanking(t *testing.T) {
	c := &Correlation{
		Method: "spearman",
		Period: "3m",
		Base:   "A",
		Ranking: []correlation.Pair{
			{A: "A", B: "B", Corr: 0.9, Overlap: 60},
			{A: "A", B: "C", Corr: math.NaN(), Overlap: 1},
		},
	}
	md := RenderCorrelation(c)
	assert.Contains(t, md, "## Correlation with A")
	tbl := tables(t, md)
	require.Len(t, tbl, 1)
	assert.Equal(t, []string{"1", "B", "0.90", correlation.Label(0.9), "60"}, tbl[0][1])
	assert.Equal(t, "n/a", tbl[0][2][2])
}

func TestRenderShorts(t *testing.T) {
	s := &Shorts{
		Summary: &shorts.Summary{
			LastUpdated: "2025-03-14",
			Tracked:     3,
			WithData:    1,
			Positions:   []shorts.StockShort{{Ticker: "SAND.ST", Company: "Sandvik AB", Percentage: 2.5, Date: "2025-03-13"}},
			Threshold:   2,
		},
		Trends: map[string]*shorts.Trend{"Sandvik AB": {Arrow: "↑", Change: 0.5}},
		Holders: map[string][]shorts.HolderPosition{
			"Fund": {{CompanyName: "Sandvik AB", Percentage: 0.6, Date: "2025-03-12"}},
		},
	}
	s.Summary.HighInterest = s.Summary.Positions
	md := RenderShorts(s)
	assert.Contains(t, md, "1 of 3 Nordic stocks")
	assert.Contains(t, md, "**High short interest (above 2.0%):** SAND.ST")
	tbl := tables(t, md)
	require.Len(t, tbl, 2)
	assert.Equal(t, []string{"SAND.ST", "Sandvik AB", "2.50%", "↑ +0.50%", "2025-03-13"}, tbl[0][1])
	assert.Equal(t, []string{"Fund", "Sandvik AB", "0.60%", "2025-03-12"}, tbl[1][1])

	assert.Contains(t, RenderShorts(&Shorts{}), "No short selling data")
}

func TestRenderTimelineAndJobs(t *testing.T) {
	tl := &Timeline{Points: []portfolio.TimelinePoint{{
		Date: date.New(2024, 1, 1), Cash: amt(1000), TotalValue: amt(1000), NetCapital: amt(1000),
	}}}
	tbl := tables(t, RenderTimeline(tl))
	require.Len(t, tbl, 1)
	assert.Equal(t, "2024-01-01", tbl[0][1][0])
	assert.Equal(t, "+0.00%", tbl[0][1][7])

	j := &Jobs{Statuses: []scheduler.Status{{Name: "shorts", Schedule: "@every 1h", Runs: 2}}}
	tbl = tables(t, RenderJobs(j))
	assert.Equal(t, []string{"shorts", "@every 1h", "2", "0", "never", "0s", "never", ""}, tbl[0][1])
}

func TestRenderDashboard(t *testing.T) {
	var b bytes.Buffer
	RenderDashboard(&b, &Dashboard{
		Holdings: &Holdings{},
		Capital:  &Capital{},
		Shorts:   &Shorts{Summary: &shorts.Summary{}},
	})
	assert.Contains(t, b.String(), "# Holdings")
	assert.NotContains(t, b.String(), "Capital Summary")
	assert.NotContains(t, b.String(), "Ticker | Company")

	b.Reset()
	c := &Capital{}
	c.NumEvents = 1
	RenderDashboard(&b, &Dashboard{Holdings: &Holdings{}, Capital: c})
	assert.Contains(t, b.String(), "# Capital Summary")
}

func TestNewCorrelation(t *testing.T) {
	day := date.New(2025, time.January, 1)
	mk := func(name string, values ...float64) correlation.Series {
		h := new(date.History)
		for i, v := range values {
			h.Append(day.Add(i), v)
		}
		return correlation.Series{Name: name, History: h}
	}
	series := []correlation.Series{
		mk("Apple", 1, 2, 3, 4, 5),
		mk("Volvo", 2, 4, 6, 8, 10),
		mk("Ericsson", 5, 4, 3, 2, 1),
	}

	c, err := NewCorrelation(series, nil, correlation.Pearson, "6mo", "")
	require.NoError(t, err)
	require.NotNil(t, c.Matrices)
	assert.Equal(t, []string{"Apple", "Volvo", "Ericsson"}, c.Matrices.Prices.Names)

	c, err = NewCorrelation(series, nil, correlation.Pearson, "6mo", "apple")
	require.NoError(t, err)
	assert.Equal(t, "Apple", c.Base)
	require.Len(t, c.Ranking, 2)
	assert.Equal(t, "Volvo", c.Ranking[0].B)
	assert.InDelta(t, -1, c.Ranking[1].Corr, 1e-9)

	_, err = NewCorrelation(series, nil, correlation.Pearson, "6mo", "Saab")
	assert.Error(t, err)

	c, err = NewCorrelation(series[:1], []string{"Volvo"}, correlation.Pearson, "6mo", "")
	require.NoError(t, err)
	assert.Nil(t, c.Matrices)
	assert.Contains(t, RenderCorrelation(c), "Not enough data")
}
