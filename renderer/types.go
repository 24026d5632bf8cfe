package renderer

import (
	"fmt"
	"strings"
	"time"

	"github.com/h4jen/yspy"
	"github.com/h4jen/yspy/correlation"
	"github.com/h4jen/yspy/date"
	"github.com/h4jen/yspy/scheduler"
	"github.com/h4jen/yspy/shorts"
	"github.com/h4jen/yspy/yahoo"
)

// Holdings is the positions report.
type Holdings struct {
	On          date.Date
	Stocks      []portfolio.StockDetail
	Highlighted map[string]bool
	// Cash is nil when capital tracking is not initialized.
	Cash *portfolio.Money
}

// TotalValue is the market value of all positions.
func (h *Holdings) TotalValue() portfolio.Money {
	var total portfolio.Money
	for _, s := range h.Stocks {
		total = total.Add(s.MarketValue)
	}
	return total
}

// TotalCost is the cost of all positions.
func (h *Holdings) TotalCost() portfolio.Money {
	var total portfolio.Money
	for _, s := range h.Stocks {
		total = total.Add(s.TotalCost)
	}
	return total
}

// TotalGain is the unrealized gain of all positions.
func (h *Holdings) TotalGain() portfolio.Money { return h.TotalValue().Sub(h.TotalCost()) }

// GainPercent is TotalGain relative to TotalCost.
func (h *Holdings) GainPercent() float64 {
	cost := h.TotalCost().Float()
	if cost == 0 {
		return 0
	}
	return h.TotalGain().Float() / cost * 100
}

// Funds is the managed funds report.
type Funds struct {
	Rows []portfolio.FundDetail
}

// TotalValue is the SEK value of the priced funds.
func (f *Funds) TotalValue() portfolio.Money {
	total := portfolio.SEK(0)
	for _, r := range f.Rows {
		if r.Err == nil {
			total = total.Add(r.Value)
		}
	}
	return total
}

// TotalGain is the unrealized SEK gain of the priced funds.
func (f *Funds) TotalGain() portfolio.Money {
	total := portfolio.SEK(0)
	for _, r := range f.Rows {
		if r.Err == nil {
			total = total.Add(r.Gain)
		}
	}
	return total
}

// Watch is the live prices table.
type Watch struct {
	Updated     time.Time
	Rows        []portfolio.StockPrice
	Highlighted map[string]bool
	History     bool
	Periods     []portfolio.Period
	Stats       portfolio.UpdateStats
	Loaded      int
	Total       int
}

// TotalValue is the SEK value of all rows.
func (w *Watch) TotalValue() float64 {
	var total float64
	for _, r := range w.Rows {
		total += r.TotalValue
	}
	return total
}

// Loading reports whether the initial historical load is still running.
func (w *Watch) Loading() bool { return w.Loaded < w.Total }

// Capital is the capital report.
type Capital struct {
	portfolio.CapitalSummary
	Totals portfolio.CapitalTotals
}

// Sells lists recent sells, numbered from 1.
type Sells struct {
	Transactions []portfolio.SellTransaction
}

// Buys lists recent buys, numbered from 1.
type Buys struct {
	Records []portfolio.BuyRecord
}

// Validation is the historical data report.
type Validation struct {
	Results []portfolio.TickerValidation
}

// Count returns the number of results with status.
func (v *Validation) Count(status string) int {
	n := 0
	for _, r := range v.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// WithIssues returns the results that are not good.
func (v *Validation) WithIssues() []portfolio.TickerValidation {
	var out []portfolio.TickerValidation
	for _, r := range v.Results {
		if r.Status != portfolio.StatusGood && len(r.Issues) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Correlation is either the matrices of all stocks or the ranking against Base.
type Correlation struct {
	Method   string
	Period   string
	Matrices *correlation.Matrices
	Base     string
	Ranking  []correlation.Pair
	// Skipped lists the stocks left out for lack of data.
	Skipped []string
}

// NewCorrelation correlates series. Without base it computes the matrices of all series,
// otherwise it ranks the other series against the one named base (case insensitive).
func NewCorrelation(series []correlation.Series, skipped []string, method, period, base string) (*Correlation, error) {
	c := &Correlation{Method: method, Period: period, Skipped: skipped}
	if base == "" {
		if len(series) < 2 {
			return c, nil
		}
		m, err := correlation.Matrix(series, method)
		if err != nil {
			return nil, err
		}
		c.Matrices = m
		return c, nil
	}
	for _, s := range series {
		if strings.EqualFold(s.Name, base) {
			c.Base = s.Name
			ranking, err := correlation.VersusBase(s, series, method)
			if err != nil {
				return nil, err
			}
			c.Ranking = ranking
			return c, nil
		}
	}
	return nil, fmt.Errorf("no price data for %q", base)
}

// MatrixRow is a row of a correlation matrix.
type MatrixRow struct {
	Name   string
	Values []float64
}

// Rows returns the rows of r.
func (c *Correlation) Rows(r *correlation.Result) []MatrixRow {
	rows := make([]MatrixRow, len(r.Names))
	for i, n := range r.Names {
		rows[i] = MatrixRow{Name: n, Values: make([]float64, len(r.Names))}
		for j := range r.Names {
			rows[i].Values[j] = r.At(i, j)
		}
	}
	return rows
}

// Shorts is the short selling report.
type Shorts struct {
	Summary *shorts.Summary
	// Trends by company name. Companies without history have no entry.
	Trends  map[string]*shorts.Trend
	Holders map[string][]shorts.HolderPosition
}

// Timeline is the value of the portfolio over time.
type Timeline struct {
	Points []portfolio.TimelinePoint
}

// Jobs is the state of the scheduler.
type Jobs struct {
	Statuses []scheduler.Status
}

// Search lists the symbols matching a query.
type Search struct {
	Query   string
	Matches []yahoo.Match
}
