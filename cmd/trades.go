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

// trade holds the arguments shared by buy and sell.
type trade struct {
	fee string
}

func (t *trade) setFlags(f *flag.FlagSet) {
	f.StringVar(&t.fee, "fee", "", "Brokerage fee in SEK.")
}

// parse reads <name> <volume> <price>. The price is in the currency of the stock.
func (t *trade) parse(p *portfolio.Portfolio, f *flag.FlagSet) (name string, volume portfolio.Quantity, price, fee portfolio.Money, err error) {
	if f.NArg() != 3 {
		return "", volume, price, fee, fmt.Errorf("want <name> <volume> <price>, got %d arguments", f.NArg())
	}
	name = f.Arg(0)
	s, err := p.Stock(name)
	if err != nil {
		return "", volume, price, fee, err
	}
	if volume, err = parseVolume(f.Arg(1)); err != nil {
		return "", volume, price, fee, err
	}
	v, err := parseDecimal(f.Arg(2))
	if err != nil {
		return "", volume, price, fee, err
	}
	price = portfolio.M(v, s.Currency)
	fee = portfolio.M(decimal.Zero, portfolio.Base)
	if t.fee != "" {
		d, err := decimal.NewFromString(t.fee)
		if err != nil || d.IsNegative() {
			return "", volume, price, fee, fmt.Errorf("invalid fee %q", t.fee)
		}
		fee = portfolio.M(d, portfolio.Base)
	}
	return name, volume, price, fee, nil
}

type buyCmd struct {
	trade
}

func (*buyCmd) Name() string     { return "buy" }
func (*buyCmd) Synopsis() string { return "record a purchase of shares" }
func (*buyCmd) Usage() string {
	return `yspy buy [-fee <sek>] <name> <volume> <price>

  Adds a lot dated today. The price is per share in the currency of the stock. When
  capital tracking is initialized the purchase and its fee are booked against the cash.
`
}
func (c *buyCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *buyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	name, volume, price, fee, err := c.parse(a.p, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing purchase: %v\n", err)
		return subcommands.ExitUsageError
	}
	if err := a.p.AddShares(ctx, name, volume, price, fee); err != nil {
		fmt.Fprintf(os.Stderr, "Error buying %s: %v\n", name, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Bought %s %s at %s\n", volume, name, price)
	return subcommands.ExitSuccess
}

type sellCmd struct {
	trade
}

func (*sellCmd) Name() string     { return "sell" }
func (*sellCmd) Synopsis() string { return "record a sale of shares" }
func (*sellCmd) Usage() string {
	return `yspy sell [-fee <sek>] <name> <volume> <price>

  Sells the oldest lots first and records the realized profit of each lot.
`
}
func (c *sellCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *sellCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	name, volume, price, fee, err := c.parse(a.p, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing sale: %v\n", err)
		return subcommands.ExitUsageError
	}
	profit, err := a.p.SellShares(ctx, name, volume, price, fee)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error selling %s: %v\n", name, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Sold %s %s at %s, realized profit %s\n", volume, name, price, profit.SignedString())
	return subcommands.ExitSuccess
}

type sellsCmd struct {
	limit int
}

func (*sellsCmd) Name() string     { return "sells" }
func (*sellsCmd) Synopsis() string { return "list recent sells" }
func (*sellsCmd) Usage() string {
	return `yspy sells [-n <count>]

  Lists the sells of every stock, newest first. The numbers are used by revert-sell.
`
}

func (c *sellsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 10, "Number of sells to list. 0 lists all.")
}

func (c *sellsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	txs, err := a.p.RecentSells(c.limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading sells: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(os.Stdout, renderer.RenderSells(&renderer.Sells{Transactions: txs}))
	return subcommands.ExitSuccess
}

type revertSellCmd struct{}

func (*revertSellCmd) Name() string     { return "revert-sell" }
func (*revertSellCmd) Synopsis() string { return "undo a sell listed by 'yspy sells'" }
func (*revertSellCmd) Usage() string {
	return `yspy revert-sell <number>

  Restores the lots of the sell, removes its profit records and its capital event.
`
}
func (*revertSellCmd) SetFlags(*flag.FlagSet) {}

func (c *revertSellCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: revert-sell needs the number of the sell.")
		return subcommands.ExitUsageError
	}
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	txs, err := a.p.RecentSells(0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading sells: %v\n", err)
		return subcommands.ExitFailure
	}
	i, err := parseIndex(f.Arg(0), len(txs))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error selecting sell: %v\n", err)
		return subcommands.ExitUsageError
	}
	tx := txs[i]
	if err := a.p.RevertSell(ctx, tx); err != nil {
		fmt.Fprintf(os.Stderr, "Error reverting sell of %s: %v\n", tx.StockName, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Reverted sell of %s %s on %s\n", tx.TotalVolume, tx.StockName, tx.SellDate)
	return subcommands.ExitSuccess
}

type buysCmd struct {
	limit int
}

func (*buysCmd) Name() string     { return "buys" }
func (*buysCmd) Synopsis() string { return "list recent purchases" }
func (*buysCmd) Usage() string {
	return `yspy buys [-n <count>]

  Lists the open lots of every stock, newest first. The numbers are used by revert-buy.
`
}

func (c *buysCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 10, "Number of purchases to list. 0 lists all.")
}

func (c *buysCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	printMarkdown(os.Stdout, renderer.RenderBuys(&renderer.Buys{Records: a.p.RecentBuys(c.limit)}))
	return subcommands.ExitSuccess
}

type revertBuyCmd struct{}

func (*revertBuyCmd) Name() string     { return "revert-buy" }
func (*revertBuyCmd) Synopsis() string { return "undo a purchase listed by 'yspy buys'" }
func (*revertBuyCmd) Usage() string {
	return `yspy revert-buy <number>

  Removes the lot of the purchase and its capital event.
`
}
func (*revertBuyCmd) SetFlags(*flag.FlagSet) {}

func (c *revertBuyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: revert-buy needs the number of the purchase.")
		return subcommands.ExitUsageError
	}
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	recs := a.p.RecentBuys(0)
	i, err := parseIndex(f.Arg(0), len(recs))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error selecting purchase: %v\n", err)
		return subcommands.ExitUsageError
	}
	rec := recs[i]
	if err := a.p.RevertBuy(ctx, rec); err != nil {
		fmt.Fprintf(os.Stderr, "Error reverting purchase of %s: %v\n", rec.StockName, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Reverted purchase of %s %s on %s\n", rec.Volume, rec.StockName, rec.Date)
	return subcommands.ExitSuccess
}
