package portfolio

import (
	"context"
	"errors"

	"github.com/h4jen/yspy/date"
	"github.com/h4jen/yspy/history"
)

// Validation statuses of a ticker's historical data.
const (
	StatusGood      = "good"
	StatusStale     = "stale"
	StatusHasIssues = "has_issues"
	StatusNoData    = "no_data"
	StatusError     = "error"
)

// TickerValidation is the state of the default historical frame of a ticker.
type TickerValidation struct {
	Ticker        string
	Status        string
	DataAvailable bool
	Rows          int
	Issues        []string
	IsStale       bool
	FirstDate     date.Date
	LastDate      date.Date
}

// DateRange formats the covered days, or "" without data.
func (v TickerValidation) DateRange() string {
	if v.LastDate.IsZero() {
		return ""
	}
	return v.FirstDate.String() + " to " + v.LastDate.String()
}

// ValidationStatus loads the default historical frame of ticker and checks its quality
// and freshness.
func (p *Portfolio) ValidationStatus(ctx context.Context, ticker string) TickerValidation {
	v := TickerValidation{Ticker: ticker, IsStale: true}
	f, err := p.hist.Load(ctx, ticker, p.opts.Period, p.opts.Interval, true)
	switch {
	case errors.Is(err, history.ErrNoData), err == nil && f.Empty():
		v.Status = StatusNoData
		v.Issues = []string{"No data available"}
		return v
	case err != nil:
		msg := err.Error()
		if len(msg) > 100 {
			msg = msg[:100]
		}
		v.Status = StatusError
		v.Issues = []string{"Validation error: " + msg}
		return v
	}
	v.DataAvailable = true
	v.Rows = f.Len()
	v.IsStale = p.hist.IsStale(ticker)
	v.Issues = history.Quality(f).Strings()
	closes := f.Closes()
	v.FirstDate, _ = closes.First()
	v.LastDate, _ = closes.Latest()
	switch {
	case len(v.Issues) > 0:
		v.Status = StatusHasIssues
	case v.IsStale:
		v.Status = StatusStale
	default:
		v.Status = StatusGood
	}
	return v
}

// ValidateAll checks every ticker of the portfolio, sorted by ticker.
func (p *Portfolio) ValidateAll(ctx context.Context) []TickerValidation {
	tickers := p.Tickers()
	p.log.Info().Int("tickers", len(tickers)).Msg("validating historical data")
	out := make([]TickerValidation, 0, len(tickers))
	counts := make(map[string]int)
	for _, t := range tickers {
		v := p.ValidationStatus(ctx, t)
		counts[v.Status]++
		out = append(out, v)
	}
	p.log.Info().
		Int(StatusGood, counts[StatusGood]).
		Int(StatusStale, counts[StatusStale]).
		Int(StatusHasIssues, counts[StatusHasIssues]).
		Int(StatusNoData, counts[StatusNoData]).
		Int(StatusError, counts[StatusError]).
		Msg("validation summary")
	return out
}
