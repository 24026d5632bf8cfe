package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/h4jen/yspy"
	"github.com/h4jen/yspy/renderer"
)

// flow holds the arguments shared by deposit and withdraw.
type flow struct {
	date string
	desc string
}

func (c *flow) setFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Date of the transfer. Defaults to today.")
	f.StringVar(&c.desc, "m", "", "Description.")
}

// record books the amount of f with rec and saves the ledger.
func (c *flow) record(ctx context.Context, f *flag.FlagSet, kind string, rec func(*portfolio.CapitalTracker, portfolio.Money) portfolio.CapitalEvent) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: %s needs an amount in SEK.\n", kind)
		return subcommands.ExitUsageError
	}
	amount, err := parseDecimal(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing amount: %v\n", err)
		return subcommands.ExitUsageError
	}
	if _, err := parseDay(c.date); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}

	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	t := a.p.Capital()
	e := rec(t, portfolio.M(amount, portfolio.Base))
	if err := t.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving %s: %v\n", kind, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s on %s, cash balance %s\n", e.Description, e.Date, t.Cash())
	return subcommands.ExitSuccess
}

type depositCmd struct {
	flow
}

func (*depositCmd) Name() string     { return "deposit" }
func (*depositCmd) Synopsis() string { return "record money transferred to the broker" }
func (*depositCmd) Usage() string {
	return `yspy deposit [-d <date>] [-m <description>] <amount>

  Adds a deposit in SEK to the capital ledger.
`
}
func (c *depositCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *depositCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.record(ctx, f, "deposit", func(t *portfolio.CapitalTracker, m portfolio.Money) portfolio.CapitalEvent {
		on, _ := parseDay(c.date)
		return t.RecordDeposit(m, on, c.desc)
	})
}

type withdrawCmd struct {
	flow
}

func (*withdrawCmd) Name() string     { return "withdraw" }
func (*withdrawCmd) Synopsis() string { return "record money transferred from the broker" }
func (*withdrawCmd) Usage() string {
	return `yspy withdraw [-d <date>] [-m <description>] <amount>

  Adds a withdrawal in SEK to the capital ledger. The amount is positive.
`
}
func (c *withdrawCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *withdrawCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.record(ctx, f, "withdrawal", func(t *portfolio.CapitalTracker, m portfolio.Money) portfolio.CapitalEvent {
		on, _ := parseDay(c.date)
		if cash := t.Cash(); cash.LessThan(m) {
			fmt.Fprintf(os.Stderr, "Warning: withdrawing %s with a cash balance of %s\n", m, cash)
		}
		return t.RecordWithdrawal(m, on, c.desc)
	})
}

type capitalCmd struct {
	deposits  deposits
	fromValue bool
}

func (*capitalCmd) Name() string     { return "capital" }
func (*capitalCmd) Synopsis() string { return "show capital flows and returns, or initialize tracking" }
func (*capitalCmd) Usage() string {
	return `yspy capital [-deposit <date>=<amount>[=<description>]]... [-from-value]

  Without flags, reports deposits, withdrawals, gains, the simple and the time-weighted
  return of the portfolio.

  Tracking is initialized once, either from the list of historical deposits or from the
  current market value of the holdings, counted as fully invested.
`
}

func (c *capitalCmd) SetFlags(f *flag.FlagSet) {
	f.Var(&c.deposits, "deposit", "Historical deposit DATE=AMOUNT[=DESCRIPTION]. Repeat for each deposit.")
	f.BoolVar(&c.fromValue, "from-value", false, "Initialize from the current value of the holdings.")
}

func (c *capitalCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if len(c.deposits) > 0 && c.fromValue {
		fmt.Fprintln(os.Stderr, "Error: -deposit and -from-value flags cannot be used together.")
		return subcommands.ExitUsageError
	}
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	t := a.p.Capital()
	initialize := len(c.deposits) > 0 || c.fromValue
	if initialize && t.IsInitialized() {
		fmt.Fprintln(os.Stderr, "Error: capital tracking is already initialized.")
		return subcommands.ExitFailure
	}

	a.quotes.ForceUpdate(ctx)
	switch {
	case len(c.deposits) > 0:
		if err := t.InitializeManual(c.deposits); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing capital tracking: %v\n", err)
			return subcommands.ExitFailure
		}
	case c.fromValue:
		value := portfolio.M(0, portfolio.Base)
		for _, d := range a.p.StockDetails(ctx) {
			value = value.Add(d.MarketValue)
		}
		if err := t.InitializeFromValue(value); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing capital tracking: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	if !t.IsInitialized() {
		fmt.Println("Capital tracking is not initialized. Use 'yspy capital -deposit' or 'yspy capital -from-value'.")
		return subcommands.ExitSuccess
	}
	report := &renderer.Capital{CapitalSummary: a.p.Summary(ctx), Totals: t.Totals()}
	printMarkdown(os.Stdout, renderer.RenderCapital(report))
	return subcommands.ExitSuccess
}

type timelineCmd struct{}

func (*timelineCmd) Name() string     { return "timeline" }
func (*timelineCmd) Synopsis() string { return "show the value of the portfolio over time" }
func (*timelineCmd) Usage() string {
	return `yspy timeline

  Values cash and holdings at each day with a capital event, and today.
`
}
func (*timelineCmd) SetFlags(*flag.FlagSet) {}

func (c *timelineCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if !a.p.Capital().IsInitialized() {
		fmt.Fprintf(os.Stderr, "Error: %v\n", portfolio.ErrNotInitialized)
		return subcommands.ExitFailure
	}
	a.quotes.ForceUpdate(ctx)
	printMarkdown(os.Stdout, renderer.RenderTimeline(&renderer.Timeline{Points: a.p.Timeline(ctx)}))
	return subcommands.ExitSuccess
}
