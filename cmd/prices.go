package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/h4jen/yspy"
	"github.com/h4jen/yspy/date"
	"github.com/h4jen/yspy/renderer"
	"github.com/h4jen/yspy/shorts"
)

const clearScreen = "\033[H\033[2J"

type watchCmd struct {
	seconds int
	history bool
	all     bool
	count   int
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "watch live prices" }
func (*watchCmd) Usage() string {
	return `yspy watch [-w <seconds>] [-history] [-all] [-n <count>]

  Clears the screen and redraws the prices table until interrupted. With -history the
  table shows the change since 1 day up to 1 year ago.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.seconds, "w", 0, "Redraw every n seconds. Defaults to the market tick interval.")
	f.BoolVar(&c.history, "history", false, "Show the historical change columns.")
	f.BoolVar(&c.all, "all", false, "Include stocks without shares.")
	f.IntVar(&c.count, "n", 0, "Stop after n redraws. 0 runs until interrupted.")
}

func (c *watchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := open(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	interval := a.cfg.Market.TickInterval
	if c.seconds > 0 {
		interval = time.Duration(c.seconds) * time.Second
		a.quotes.SetInterval(interval)
	}
	if err := a.p.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting updates: %v\n", err)
		return subcommands.ExitFailure
	}
	a.quotes.ForceUpdate(ctx)

	tick := time.NewTicker(interval)
	defer tick.Stop()
	for i := 1; ; i++ {
		loaded, total := a.p.HistoricalProgress()
		w := &renderer.Watch{
			Updated:     time.Now(),
			Rows:        a.p.StockPrices(ctx, c.all, c.history),
			Highlighted: highlighted(a.p),
			History:     c.history,
			Periods:     portfolio.Periods,
			Stats:       a.p.UpdateStats(),
			Loaded:      loaded,
			Total:       total,
		}
		fmt.Print(clearScreen)
		printMarkdown(os.Stdout, renderer.RenderWatch(w, renderer.WatchRenderOptions{}))
		if c.count > 0 && i >= c.count {
			return subcommands.ExitSuccess
		}
		select {
		case <-ctx.Done():
			return subcommands.ExitSuccess
		case <-tick.C:
		}
	}
}

type holdingsCmd struct {
	noShorts bool
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "show positions, capital and short interest" }
func (*holdingsCmd) Usage() string {
	return `yspy holdings [-no-shorts]

  Values every position at the current price. The capital summary follows when capital
  tracking is initialized, and the short positions when a feed is configured.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.noShorts, "no-shorts", false, "Leave out the short selling section.")
}

func (c *holdingsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	a.quotes.ForceUpdate(ctx)
	h := &renderer.Holdings{
		On:          date.Today(),
		Stocks:      a.p.StockDetails(ctx),
		Highlighted: highlighted(a.p),
	}
	d := &renderer.Dashboard{Holdings: h}
	if t := a.p.Capital(); t.IsInitialized() {
		cash := t.Cash()
		h.Cash = &cash
		d.Capital = &renderer.Capital{CapitalSummary: a.p.Summary(ctx), Totals: t.Totals()}
	}
	if a.shorts != nil && !c.noShorts {
		s, err := a.shorts.Summary()
		switch {
		case err == nil:
			d.Shorts = &renderer.Shorts{Summary: s}
		case !errors.Is(err, shorts.ErrNoData):
			a.log.Warn().Err(err).Msg("cannot read short selling data")
		}
	}
	var b strings.Builder
	renderer.RenderDashboard(&b, d)
	printMarkdown(os.Stdout, b.String())
	return subcommands.ExitSuccess
}

type validateCmd struct{}

func (*validateCmd) Name() string     { return "validate" }
func (*validateCmd) Synopsis() string { return "check the quality of the historical data" }
func (*validateCmd) Usage() string {
	return `yspy validate [<name or ticker>...]

  Loads the historical data of every stock, or of the given ones, and reports gaps,
  price anomalies and stale files.
`
}
func (*validateCmd) SetFlags(*flag.FlagSet) {}

func (c *validateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	var results []portfolio.TickerValidation
	if f.NArg() == 0 {
		results = a.p.ValidateAll(ctx)
	} else {
		for _, t := range resolveTickers(a.p, f.Args()) {
			results = append(results, a.p.ValidationStatus(ctx, t))
		}
	}
	printMarkdown(os.Stdout, renderer.RenderValidation(&renderer.Validation{Results: results}))
	return subcommands.ExitSuccess
}

// resolveTickers maps stock names to their tickers. Other arguments are taken as tickers.
func resolveTickers(p *portfolio.Portfolio, args []string) []string {
	names := p.NameTickers()
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if t, ok := names[arg]; ok {
			out = append(out, t)
			continue
		}
		out = append(out, strings.ToUpper(arg))
	}
	return out
}

type refreshCmd struct{}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "download the historical data again" }
func (*refreshCmd) Usage() string {
	return `yspy refresh [<name or ticker>...]

  Fetches the historical data of every stock, or of the given ones, in one bulk call and
  replaces the cached files that pass validation.
`
}
func (*refreshCmd) SetFlags(*flag.FlagSet) {}

func (c *refreshCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	var tickers []string
	if f.NArg() > 0 {
		tickers = resolveTickers(a.p, f.Args())
	}
	rep := a.p.Refresh(ctx, tickers...)
	fmt.Printf("Refreshed %d tickers", len(rep.Succeeded))
	if len(rep.Fallback) > 0 {
		fmt.Printf(", kept %d with warnings (%s)", len(rep.Fallback), strings.Join(rep.Fallback, ", "))
	}
	fmt.Println()
	if len(rep.Failed) > 0 {
		fmt.Fprintf(os.Stderr, "Error refreshing %s\n", strings.Join(rep.Failed, ", "))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type correlateCmd struct {
	period string
	method string
}

func (*correlateCmd) Name() string     { return "correlate" }
func (*correlateCmd) Synopsis() string { return "correlate the prices of the stocks" }
func (*correlateCmd) Usage() string {
	return `yspy correlate [-p <period>] [-m pearson|spearman] [<name>]

  Without a name, prints the price and return correlation matrices of every stock. With a
  name, ranks the other stocks by their correlation with it.
`
}

func (c *correlateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.period, "p", "", "Period of prices, e.g. 3mo, 6mo, 1y. Defaults to the configuration.")
	f.StringVar(&c.method, "m", "", "Correlation method. Defaults to the configuration.")
}

func (c *correlateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "Error: correlate takes at most one stock name.")
		return subcommands.ExitUsageError
	}
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	period, method := c.period, c.method
	if period == "" {
		period = a.cfg.Correlate.Period
	}
	if method == "" {
		method = a.cfg.Correlate.Method
	}
	series, skipped := a.p.Series(ctx, period)
	report, err := renderer.NewCorrelation(series, skipped, method, period, f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error correlating: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(os.Stdout, renderer.RenderCorrelation(report))
	return subcommands.ExitSuccess
}
