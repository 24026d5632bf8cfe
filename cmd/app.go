// Package cmd implements the yspy command line.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/h4jen/yspy"
	"github.com/h4jen/yspy/config"
	"github.com/h4jen/yspy/currency"
	"github.com/h4jen/yspy/fund"
	"github.com/h4jen/yspy/history"
	"github.com/h4jen/yspy/logger"
	"github.com/h4jen/yspy/realtime"
	"github.com/h4jen/yspy/shorts"
	"github.com/h4jen/yspy/yahoo"
)

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var configFile = flag.String("config", "yspy.yaml", "Path to the YAML configuration file")
var portfolioDir = flag.String("dir", "", "Portfolio directory. Overrides the configuration.")
var verbose = flag.Bool("v", false, "Mirror the log to stderr")
var plain = flag.Bool("plain", false, "Print raw markdown instead of styled output")

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	for _, g := range groups {
		for _, cmd := range g.commands {
			c.Register(cmd, g.name)
		}
	}
}

type group struct {
	name     string
	commands []subcommands.Command
}

var groups = []group{
	{"stocks", []subcommands.Command{&addStockCmd{}, &removeStockCmd{}, &highlightCmd{}, &searchCmd{}}},
	{"prices", []subcommands.Command{&watchCmd{}, &holdingsCmd{}, &validateCmd{}, &refreshCmd{}, &correlateCmd{}}},
	{"transactions", []subcommands.Command{&buyCmd{}, &sellCmd{}, &sellsCmd{}, &revertSellCmd{}, &buysCmd{}, &revertBuyCmd{}}},
	{"capital", []subcommands.Command{&depositCmd{}, &withdrawCmd{}, &capitalCmd{}, &timelineCmd{}}},
	{"funds", []subcommands.Command{&fundsCmd{}, &addFundCmd{}, &removeFundCmd{}, &buyFundCmd{}, &sellFundCmd{}}},
	{"shorts", []subcommands.Command{&shortsCmd{}}},
	{"services", []subcommands.Command{&daemonCmd{}, &assistCmd{}}},
	{"documentation", []subcommands.Command{&topicCmd{}}},
}

// Commands returns every registered subcommand.
func Commands() []subcommands.Command {
	var out []subcommands.Command
	for _, g := range groups {
		out = append(out, g.commands...)
	}
	return out
}

// app holds the components shared by the subcommands.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	closer io.Closer
	market *yahoo.Client

	rates  *currency.Manager
	hist   *history.Manager
	quotes *realtime.Manager
	funds  *fund.Client
	p      *portfolio.Portfolio
	shorts *shorts.Tracker // nil when no feed is configured
}

// setup loads the configuration, the logger and the market client.
func setup() (*app, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}
	if *portfolioDir != "" {
		cfg.PortfolioDir = *portfolioDir
	}
	log, closer, err := logger.New(cfg, *verbose)
	if err != nil {
		return nil, err
	}
	opts := yahoo.Options{
		BaseURL:        cfg.Market.BaseURL,
		Timeout:        cfg.Market.Timeout,
		RequestsPerSec: cfg.Market.RequestsPerSec,
		Concurrency:    cfg.Market.Concurrency,
		Logger:         logger.Component(log, "market"),
	}
	if cfg.Market.DiskCache {
		opts.CacheDir = yahoo.DefaultCacheDir()
	}
	return &app{cfg: cfg, log: log, closer: closer, market: yahoo.New(opts)}, nil
}

// open sets up the application and opens the portfolio. An empty mode uses the
// configured historical mode.
func open(ctx context.Context, mode portfolio.HistoricalMode) (*app, error) {
	a, err := setup()
	if err != nil {
		return nil, err
	}
	if err := a.openPortfolio(ctx, mode); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openPortfolio(ctx context.Context, mode portfolio.HistoricalMode) error {
	cfg := a.cfg
	if mode == "" {
		m, err := portfolio.ParseHistoricalMode(cfg.Historical.Mode)
		if err != nil {
			return err
		}
		mode = m
	}

	ropts := currency.Options{
		Dir:    cfg.PortfolioDir,
		URLs:   cfg.Currency.RateURLs,
		Logger: logger.Component(a.log, "currency"),
	}
	if cfg.Currency.OnlineLookup {
		ropts.Lookup = a.market.CurrencyOf
	}
	a.rates = currency.New(ropts)

	a.hist = history.New(a.market, a.rates, history.Options{
		Dir:            cfg.HistoricalPath(),
		Period:         cfg.Historical.Period,
		Interval:       cfg.Historical.Interval,
		BulkPeriod:     cfg.Historical.BulkPeriod,
		StaleThreshold: cfg.Historical.StaleThreshold,
		Retries:        cfg.Historical.Retries,
		RetryDelay:     cfg.Historical.RetryDelay,
		Scale:          cfg.Scale,
		Logger:         logger.Component(a.log, "history"),
	})
	a.quotes = realtime.New(a.market, a.rates, a.hist, realtime.Options{
		Interval: cfg.Market.TickInterval,
		Scale:    cfg.Scale,
		Logger:   logger.Component(a.log, "realtime"),
	})

	a.funds = fund.New(fund.Options{
		BaseURL: cfg.Funds.BaseURL,
		Timeout: cfg.Funds.Timeout,
		NAVTTL:  cfg.Funds.NAVTTL,
		InfoTTL: cfg.Funds.InfoTTL,
		Logger:  logger.Component(a.log, "funds"),
	})

	p, err := portfolio.Open(ctx, portfolio.Options{
		Dir:             cfg.PortfolioDir,
		File:            cfg.PortfolioFile,
		Mode:            mode,
		Period:          cfg.Historical.Period,
		Interval:        cfg.Historical.Interval,
		UpdateInterval:  cfg.Historical.UpdateInterval,
		StaleThreshold:  cfg.Historical.StaleThreshold,
		ProblemEvery:    cfg.Historical.ProblemEvery,
		PricesTTL:       cfg.Cache.PricesTTL,
		PriceThrottle:   cfg.Cache.PriceThrottle,
		Quotes:          a.quotes,
		History:         a.hist,
		Rates:           a.rates,
		Validator:       a.market,
		Funds:           a.funds,
		FundHistoryDays: cfg.Funds.HistDays,
		Logger:          logger.Component(a.log, "portfolio"),
	})
	if err != nil {
		return fmt.Errorf("open portfolio %q: %w", cfg.PortfolioDir, err)
	}
	a.p = p

	if loc := cfg.Shorts.Location; loc != "" {
		log := logger.Component(a.log, "shorts")
		remote := shorts.NewRemote(loc, filepath.Join(cfg.PortfolioDir, "shorts_cache"), cfg.Shorts.CacheTTL, log)
		a.shorts = shorts.NewTracker(cfg.PortfolioDir, remote, cfg.Shorts.HighInterest, log)
		a.shorts.SetMaxAge(cfg.Shorts.MaxAge)
	}
	return nil
}

// Close stops the portfolio workers and releases the log file.
func (a *app) Close() {
	if a.p != nil {
		if err := a.p.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close portfolio")
		}
	}
	if a.closer != nil {
		a.closer.Close()
	}
}

// highlighted returns the highlighted stock names of p.
func highlighted(p *portfolio.Portfolio) map[string]bool {
	out := make(map[string]bool)
	for _, name := range p.Names() {
		if p.IsHighlighted(name) {
			out[name] = true
		}
	}
	return out
}

// printMarkdown writes md to w, styled when w is a terminal.
func printMarkdown(w io.Writer, md string) {
	if *plain || !isTerminal(w) {
		fmt.Fprint(w, md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(0))
	if err != nil {
		fmt.Fprint(w, md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Fprint(w, md)
		return
	}
	fmt.Fprint(w, out)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	st, err := f.Stat()
	return err == nil && st.Mode()&os.ModeCharDevice != 0
}
