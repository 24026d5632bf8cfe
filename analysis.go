package portfolio

import (
	"context"

	"github.com/h4jen/yspy/correlation"
)

// Summary values the capital ledger with the current prices of the holdings.
func (p *Portfolio) Summary(ctx context.Context) CapitalSummary {
	var stocks, cost Money
	for _, d := range p.StockDetails(ctx) {
		stocks = stocks.Add(d.MarketValue)
		cost = cost.Add(d.TotalCost)
	}
	value := p.capital.Cash().Add(stocks)
	return p.capital.CapitalSummary(ctx, value, stocks, &cost, p)
}

// Timeline values the portfolio at each day with capital events, and today.
func (p *Portfolio) Timeline(ctx context.Context) []TimelinePoint {
	return p.capital.Timeline(ctx, p)
}

// Series loads the SEK closes of every stock over period, in name order. Stocks with
// fewer than two closes are returned in skipped.
func (p *Portfolio) Series(ctx context.Context, period string) (series []correlation.Series, skipped []string) {
	for _, name := range p.Names() {
		s, err := p.Stock(name)
		if err != nil {
			continue
		}
		f, err := p.hist.Load(ctx, s.Ticker, period, p.opts.Interval, true)
		if err != nil || f.Len() < 2 {
			p.log.Debug().Err(err).Str("stock", name).Msg("no series")
			skipped = append(skipped, name)
			continue
		}
		series = append(series, correlation.Series{Name: name, History: f.Closes()})
	}
	return series, skipped
}
