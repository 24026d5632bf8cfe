package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/h4jen/yspy"
	"github.com/h4jen/yspy/correlation"
	"github.com/h4jen/yspy/date"
	"github.com/h4jen/yspy/renderer"
	"github.com/h4jen/yspy/shorts"
	"google.golang.org/genai"
)

// Source is the live portfolio read by the Accountant.
type Source interface {
	StockDetails(ctx context.Context) []portfolio.StockDetail
	StockPrices(ctx context.Context, includeZero, withHistory bool) []portfolio.StockPrice
	Summary(ctx context.Context) portfolio.CapitalSummary
	Capital() *portfolio.CapitalTracker
	RecentSells(limit int) ([]portfolio.SellTransaction, error)
	RecentBuys(limit int) []portfolio.BuyRecord
	Series(ctx context.Context, period string) ([]correlation.Series, []string)
	IsHighlighted(name string) bool
}

// ShortSource reads the short selling positions.
type ShortSource interface {
	Summary() (*shorts.Summary, error)
}

// Tools are the functions of the Accountant over a portfolio.
type Tools struct {
	Portfolio Source
	Shorts    ShortSource // nil when no feed is configured
	// Correlation defaults.
	Period string
	Method string
}

// Functions returns every tool.
func (t *Tools) Functions() []Function {
	return []Function{
		t.holdings(),
		t.stockPrices(),
		t.capitalSummary(),
		t.recentTransactions(),
		t.correlate(),
		t.shortExposure(),
	}
}

func noArgs(name, description string) *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        name,
		Description: description,
		Response:    &genai.Schema{Type: genai.TypeString, Description: "A markdown report."},
	}
}

func (t *Tools) holdings() *Func {
	return &Func{
		Decl: noArgs("Holdings", `Holdings lists the stocks held with their share count, average purchase price,
		current price, market value and unrealized gain, all in SEK, followed by the totals and the cash balance.`),
		Func: func(ctx context.Context, _ map[string]any) (string, error) {
			h := &renderer.Holdings{
				On:          date.Today(),
				Stocks:      t.Portfolio.StockDetails(ctx),
				Highlighted: make(map[string]bool),
			}
			for _, s := range h.Stocks {
				h.Highlighted[s.Name] = t.Portfolio.IsHighlighted(s.Name)
			}
			if c := t.Portfolio.Capital(); c.IsInitialized() {
				cash := c.Cash()
				h.Cash = &cash
			}
			return renderer.RenderHoldings(h), nil
		},
	}
}

func (t *Tools) stockPrices() *Func {
	return &Func{
		Decl: noArgs("StockPrices", `StockPrices is the live price table: current, high, low and open prices in the
		stock currency, the SEK value of the position and the % change over 1 day, 1 week, 1, 3 and 6 months and 1 year.`),
		Func: func(ctx context.Context, _ map[string]any) (string, error) {
			w := &renderer.Watch{
				Rows:    t.Portfolio.StockPrices(ctx, false, true),
				History: true,
				Periods: portfolio.Periods,
			}
			return renderer.RenderWatch(w, renderer.WatchRenderOptions{SkipStatus: true}), nil
		},
	}
}

func (t *Tools) capitalSummary() *Func {
	return &Func{
		Decl: noArgs("CapitalSummary", `CapitalSummary reports the money deposited and withdrawn, the cash balance,
		the realized and unrealized gains, and the simple and time-weighted returns of the portfolio.`),
		Func: func(ctx context.Context, _ map[string]any) (string, error) {
			c := t.Portfolio.Capital()
			if !c.IsInitialized() {
				return "", errors.New("capital tracking is not initialized")
			}
			return renderer.RenderCapital(&renderer.Capital{CapitalSummary: t.Portfolio.Summary(ctx), Totals: c.Totals()}), nil
		},
	}
}

func (t *Tools) recentTransactions() *Func {
	return &Func{
		Decl: &genai.FunctionDeclaration{
			Name:        "RecentTransactions",
			Description: `RecentTransactions lists the latest sells, with their realized profit, and the latest buys.`,
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"limit": {Type: genai.TypeInteger, Description: "How many sells and buys to list. Defaults to 10."},
				},
			},
			Response: &genai.Schema{Type: genai.TypeString, Description: "Markdown tables of sells and buys."},
		},
		Func: func(ctx context.Context, args map[string]any) (string, error) {
			limit := 10
			if v, ok := args["limit"].(float64); ok && v > 0 {
				limit = int(v)
			}
			sells, err := t.Portfolio.RecentSells(limit)
			if err != nil {
				return "", err
			}
			return renderer.RenderSells(&renderer.Sells{Transactions: sells}) + "\n" +
				renderer.RenderBuys(&renderer.Buys{Records: t.Portfolio.RecentBuys(limit)}), nil
		},
	}
}

func (t *Tools) correlate() *Func {
	return &Func{
		Decl: &genai.FunctionDeclaration{
			Name: "Correlation",
			Description: `Correlation computes how the prices of the portfolio stocks move together.
			Without a stock it returns the correlation matrices of prices and daily returns, otherwise
			the other stocks ranked by their correlation with it.`,
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"stock":  {Type: genai.TypeString, Description: "Name of the stock to rank the others against."},
					"period": {Type: genai.TypeString, Description: "History to use: 1mo, 3mo, 6mo, 1y or 2y."},
				},
			},
			Response: &genai.Schema{Type: genai.TypeString, Description: "A markdown report."},
		},
		Func: func(ctx context.Context, args map[string]any) (string, error) {
			period, _ := args["period"].(string)
			if period == "" {
				period = t.Period
			}
			base, _ := args["stock"].(string)
			series, skipped := t.Portfolio.Series(ctx, period)
			c, err := renderer.NewCorrelation(series, skipped, t.Method, period, strings.TrimSpace(base))
			if err != nil {
				return "", err
			}
			return renderer.RenderCorrelation(c), nil
		},
	}
}

func (t *Tools) shortExposure() *Func {
	return &Func{
		Decl: noArgs("ShortExposure", `ShortExposure lists the reported short positions on the Nordic stocks of the
		portfolio, as a percentage of the shares, and flags the ones with a high short interest.`),
		Func: func(ctx context.Context, _ map[string]any) (string, error) {
			if t.Shorts == nil {
				return "", errors.New("no short selling feed is configured")
			}
			s, err := t.Shorts.Summary()
			if err != nil {
				return "", fmt.Errorf("short positions: %w", err)
			}
			return renderer.RenderShorts(&renderer.Shorts{Summary: s}), nil
		},
	}
}
