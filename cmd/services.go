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
	"google.golang.org/genai"

	"github.com/h4jen/yspy"
	"github.com/h4jen/yspy/agent"
	"github.com/h4jen/yspy/logger"
	"github.com/h4jen/yspy/renderer"
	"github.com/h4jen/yspy/scheduler"
	"github.com/h4jen/yspy/shorts"
)

type shortsCmd struct {
	update    bool
	force     bool
	holders   bool
	lookback  int
	threshold float64
}

func (*shortsCmd) Name() string     { return "shorts" }
func (*shortsCmd) Synopsis() string { return "show the short selling positions of the portfolio" }
func (*shortsCmd) Usage() string {
	return `yspy shorts [-update] [-force] [-holders] [-trend <days>] [-threshold <points>]

  Lists the reported short positions of the Nordic stocks of the portfolio with their trend.
  The feed location is set by shorts.location in the configuration.
`
}

func (c *shortsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.update, "update", false, "Refresh the positions when they are out of date.")
	f.BoolVar(&c.force, "force", false, "Download the feed and refresh the positions now.")
	f.BoolVar(&c.holders, "holders", false, "List the individual holders of every position.")
	f.IntVar(&c.lookback, "trend", 7, "Days to look back for the trend.")
	f.Float64Var(&c.threshold, "threshold", 0.3, "Change in percentage points below which a trend is stable.")
}

func (c *shortsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if a.shorts == nil {
		fmt.Fprintln(os.Stderr, "Error: no short selling feed is configured, set shorts.location.")
		return subcommands.ExitFailure
	}
	if c.update || c.force {
		stats, err := a.shorts.Update(ctx, a.p.NameTickers(), c.force)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error updating short selling data: %v\n", err)
			return subcommands.ExitFailure
		}
		if stats.Updated {
			fmt.Printf("Updated from %s: %d positions, %d matching the portfolio\n", stats.Source, stats.TotalPositions, stats.PortfolioMatches)
		}
	}

	report := &renderer.Shorts{Trends: make(map[string]*shorts.Trend)}
	report.Summary, err = a.shorts.Summary()
	switch {
	case errors.Is(err, shorts.ErrNoData):
		report.Summary = nil
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error reading short selling data: %v\n", err)
		return subcommands.ExitFailure
	}
	if report.Summary != nil {
		for _, p := range report.Summary.Positions {
			tr, err := a.shorts.Trend(ctx, p.Company, c.lookback, c.threshold)
			if err != nil {
				a.log.Debug().Err(err).Str("company", p.Company).Msg("no short trend")
				continue
			}
			if tr.Direction != shorts.NoData {
				report.Trends[p.Company] = &tr
			}
		}
	}
	if c.holders {
		if report.Holders, err = a.shorts.ByHolder(); err != nil && !errors.Is(err, shorts.ErrNoData) {
			fmt.Fprintf(os.Stderr, "Error reading holders: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	printMarkdown(os.Stdout, renderer.RenderShorts(report))
	return subcommands.ExitSuccess
}

type daemonCmd struct {
	status time.Duration
	once   bool
}

func (*daemonCmd) Name() string     { return "daemon" }
func (*daemonCmd) Synopsis() string { return "run the background refresh jobs" }
func (*daemonCmd) Usage() string {
	return `yspy daemon [-status <duration>] [-once]

  Keeps the historical data and the short selling positions up to date until interrupted,
  printing the state of the jobs periodically. With -once every job runs a single time.
`
}

func (c *daemonCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.status, "status", time.Minute, "Interval between job reports.")
	f.BoolVar(&c.once, "once", false, "Run every job once and exit.")
}

func (c *daemonCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := open(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	sched := a.p.Scheduler()
	if a.shorts != nil {
		job := scheduler.NewShortsJob(a.shorts, a.p.NameTickers, logger.Component(a.log, "shorts"))
		if err := sched.Add(a.cfg.Shorts.Schedule, job); err != nil {
			fmt.Fprintf(os.Stderr, "Error scheduling %s: %v\n", job.Name(), err)
			return subcommands.ExitFailure
		}
	}

	if c.once {
		return c.runOnce(ctx, a)
	}

	if err := a.p.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting jobs: %v\n", err)
		return subcommands.ExitFailure
	}
	tick := time.NewTicker(c.status)
	defer tick.Stop()
	for {
		printMarkdown(os.Stdout, renderer.RenderJobs(&renderer.Jobs{Statuses: sched.Statuses()}))
		select {
		case <-ctx.Done():
			return subcommands.ExitSuccess
		case <-tick.C:
		}
	}
}

// runOnce refreshes the historical data and runs the scheduled jobs a single time.
func (c *daemonCmd) runOnce(ctx context.Context, a *app) subcommands.ExitStatus {
	status := subcommands.ExitSuccess
	rep := a.p.Refresh(ctx)
	if len(rep.Failed) > 0 {
		fmt.Fprintf(os.Stderr, "Error refreshing %s\n", strings.Join(rep.Failed, ", "))
		status = subcommands.ExitFailure
	}
	sched := a.p.Scheduler()
	for _, s := range sched.Statuses() {
		if err := sched.RunNow(ctx, s.Name); err != nil {
			fmt.Fprintf(os.Stderr, "Error running %s: %v\n", s.Name, err)
			status = subcommands.ExitFailure
		}
	}
	printMarkdown(os.Stdout, renderer.RenderJobs(&renderer.Jobs{Statuses: sched.Statuses()}))
	return status
}

type assistCmd struct {
	model   string
	noCache bool
}

func (*assistCmd) Name() string     { return "assist" }
func (*assistCmd) Synopsis() string { return "chat with an assistant about the portfolio" }
func (*assistCmd) Usage() string {
	return `yspy assist [-model <name>] [-no-cache] [<question>]

  Starts an interactive session with an assistant that reads the portfolio and searches the
  web. The Gemini API key is read from GEMINI_API_KEY or GOOGLE_API_KEY.
`
}

func (c *assistCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.model, "model", "", "Model name. Defaults to the configuration.")
	f.BoolVar(&c.noCache, "no-cache", false, "Do not reuse cached answers.")
}

func (c *assistCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var prompts []string
	if f.NArg() > 0 {
		prompts = append(prompts, strings.Join(f.Args(), " "))
	}

	a, err := open(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()
	if err := a.p.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting updates: %v\n", err)
		return subcommands.ExitFailure
	}

	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing Gemini's client: %v\n", err)
		return subcommands.ExitFailure
	}

	model := c.model
	if model == "" {
		model = a.cfg.Assistant.Model
	}
	tools := &agent.Tools{Portfolio: a.p, Period: a.cfg.Correlate.Period, Method: a.cfg.Correlate.Method}
	if a.shorts != nil {
		tools.Shorts = a.shorts
	}
	log := logger.Component(a.log, "agent")
	ag := agent.New(os.Stdout, os.Stdin, model, log, agent.NewTrader(model), agent.NewAccountant(model, tools))
	ag.Print = printMarkdown
	if !c.noCache {
		ag.Cache = agent.NewCache(portfolio.NewStore(a.cfg.PortfolioDir), a.cfg.Assistant.CacheTTL, log)
	}

	if err := ag.Run(ctx, client, prompts...); err != nil {
		fmt.Fprintf(os.Stderr, "Error running the assistant: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
