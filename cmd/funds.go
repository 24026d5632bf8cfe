package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/h4jen/yspy"
	"github.com/h4jen/yspy/renderer"
)

type fundsCmd struct{}

func (*fundsCmd) Name() string     { return "funds" }
func (*fundsCmd) Synopsis() string { return "list managed funds with their NAV" }
func (*fundsCmd) Usage() string {
	return `yspy funds

  Lists the managed funds with units, average NAV, latest NAV, value and gain in SEK.
`
}
func (*fundsCmd) SetFlags(*flag.FlagSet) {}

func (c *fundsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	printMarkdown(os.Stdout, renderer.RenderFunds(&renderer.Funds{Rows: a.p.FundDetails(ctx)}))
	return subcommands.ExitSuccess
}

type addFundCmd struct {
	isin     string
	currency string
}

func (*addFundCmd) Name() string     { return "add-fund" }
func (*addFundCmd) Synopsis() string { return "add a managed fund" }
func (*addFundCmd) Usage() string {
	return `yspy add-fund [-isin <isin>] [-currency <code>] <name> [<avanza id>]

  Registers a fund priced by its NAV. Without an id the fund is looked up by ISIN.
  Without a currency the one of the fund guide is used.
`
}

func (c *addFundCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.isin, "isin", "", "ISIN of the fund.")
	f.StringVar(&c.currency, "currency", "", "Currency of the NAV.")
}

func (c *addFundCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 1 || f.NArg() > 2 || (f.NArg() == 1 && c.isin == "") {
		fmt.Fprintln(os.Stderr, "Error: want <name> and an avanza id or -isin")
		return subcommands.ExitUsageError
	}
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	info := portfolio.FundInfo{AvanzaID: f.Arg(1), ISIN: c.isin, Currency: c.currency}
	if info.AvanzaID == "" {
		if info.AvanzaID, err = a.funds.ResolveISIN(ctx, c.isin); err != nil {
			fmt.Fprintf(os.Stderr, "Error looking up %s: %v\n", c.isin, err)
			return subcommands.ExitFailure
		}
	}
	if info.Currency == "" {
		info.Currency = a.funds.Currency(ctx, info.AvanzaID)
	}
	if err := a.p.AddFund(f.Arg(0), info); err != nil {
		fmt.Fprintf(os.Stderr, "Error adding %s: %v\n", f.Arg(0), err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Added fund %s (%s, %s)\n", f.Arg(0), info.AvanzaID, info.Currency)
	return subcommands.ExitSuccess
}

type removeFundCmd struct{}

func (*removeFundCmd) Name() string     { return "remove-fund" }
func (*removeFundCmd) Synopsis() string { return "remove a managed fund" }
func (*removeFundCmd) Usage() string {
	return `yspy remove-fund <name>

  Removes the fund and its units. The transaction ledger is kept.
`
}
func (*removeFundCmd) SetFlags(*flag.FlagSet) {}

func (c *removeFundCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: want <name>")
		return subcommands.ExitUsageError
	}
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := a.p.RemoveFund(f.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error removing %s: %v\n", f.Arg(0), err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Removed fund %s\n", f.Arg(0))
	return subcommands.ExitSuccess
}

// parseFund reads <name> <units> <nav> with the NAV in the currency of the fund.
func (t *trade) parseFund(p *portfolio.Portfolio, f *flag.FlagSet) (name string, units portfolio.Quantity, nav, fee portfolio.Money, err error) {
	if f.NArg() != 3 {
		return "", units, nav, fee, fmt.Errorf("want <name> <units> <nav>, got %d arguments", f.NArg())
	}
	name = f.Arg(0)
	fd, err := p.Fund(name)
	if err != nil {
		return "", units, nav, fee, err
	}
	if units, err = parseVolume(f.Arg(1)); err != nil {
		return "", units, nav, fee, err
	}
	v, err := parseDecimal(f.Arg(2))
	if err != nil {
		return "", units, nav, fee, err
	}
	nav = portfolio.M(v, fd.Currency)
	fee = portfolio.M(decimal.Zero, portfolio.Base)
	if t.fee != "" {
		d, err := decimal.NewFromString(t.fee)
		if err != nil || d.IsNegative() {
			return "", units, nav, fee, fmt.Errorf("invalid fee %q", t.fee)
		}
		fee = portfolio.M(d, portfolio.Base)
	}
	return name, units, nav, fee, nil
}

type buyFundCmd struct {
	trade
}

func (*buyFundCmd) Name() string     { return "buy-fund" }
func (*buyFundCmd) Synopsis() string { return "record a purchase of fund units" }
func (*buyFundCmd) Usage() string {
	return `yspy buy-fund [-fee <sek>] <name> <units> <nav>

  Adds a lot of units dated today. The NAV is in the currency of the fund.
`
}
func (c *buyFundCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *buyFundCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	name, units, nav, fee, err := c.parseFund(a.p, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing purchase: %v\n", err)
		return subcommands.ExitUsageError
	}
	if err := a.p.BuyFundUnits(name, units, nav, fee); err != nil {
		fmt.Fprintf(os.Stderr, "Error buying %s: %v\n", name, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Bought %s units of %s at %s\n", units, name, nav)
	return subcommands.ExitSuccess
}

type sellFundCmd struct {
	trade
}

func (*sellFundCmd) Name() string     { return "sell-fund" }
func (*sellFundCmd) Synopsis() string { return "record a sale of fund units" }
func (*sellFundCmd) Usage() string {
	return `yspy sell-fund [-fee <sek>] <name> <units> <nav>

  Sells the oldest units first and records the realized profit of each lot.
`
}
func (c *sellFundCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *sellFundCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	name, units, nav, fee, err := c.parseFund(a.p, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing sale: %v\n", err)
		return subcommands.ExitUsageError
	}
	profit, err := a.p.SellFundUnits(name, units, nav, fee)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error selling %s: %v\n", name, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Sold %s units of %s at %s, realized profit %s\n", units, name, nav, profit.SignedString())
	return subcommands.ExitSuccess
}
