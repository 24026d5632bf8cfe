package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/h4jen/yspy"
	"github.com/h4jen/yspy/renderer"
)

type addStockCmd struct{}

func (*addStockCmd) Name() string     { return "add-stock" }
func (*addStockCmd) Synopsis() string { return "add a stock to the portfolio" }
func (*addStockCmd) Usage() string {
	return `yspy add-stock <name> <ticker>

  Adds a stock under a display name. The ticker is checked against the market API first.
  Use 'yspy search' to find a ticker.
`
}
func (*addStockCmd) SetFlags(*flag.FlagSet) {}

func (c *addStockCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Error: add-stock needs a name and a ticker.")
		return subcommands.ExitUsageError
	}
	name, ticker := f.Arg(0), strings.ToUpper(f.Arg(1))

	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := a.p.AddStock(ctx, name, ticker); err != nil {
		fmt.Fprintf(os.Stderr, "Error adding stock %q: %v\n", name, err)
		if errors.Is(err, portfolio.ErrInvalidTicker) {
			fmt.Fprintf(os.Stderr, "Try 'yspy search %s' to find the right ticker.\n", name)
		}
		return subcommands.ExitFailure
	}
	fmt.Printf("Added %s (%s)\n", name, ticker)
	return subcommands.ExitSuccess
}

type removeStockCmd struct{}

func (*removeStockCmd) Name() string     { return "remove-stock" }
func (*removeStockCmd) Synopsis() string { return "remove a stock and its lots from the portfolio" }
func (*removeStockCmd) Usage() string {
	return `yspy remove-stock <name>

  Removes the stock with its lot and profit files.
`
}
func (*removeStockCmd) SetFlags(*flag.FlagSet) {}

func (c *removeStockCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: remove-stock needs a name.")
		return subcommands.ExitUsageError
	}
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := a.p.RemoveStock(f.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error removing stock %q: %v\n", f.Arg(0), err)
		return subcommands.ExitFailure
	}
	fmt.Printf("Removed %s\n", f.Arg(0))
	return subcommands.ExitSuccess
}

type highlightCmd struct {
	off bool
}

func (*highlightCmd) Name() string     { return "highlight" }
func (*highlightCmd) Synopsis() string { return "mark stocks in the watch and holdings tables" }
func (*highlightCmd) Usage() string {
	return `yspy highlight [-off] <name>...

  Highlights the named stocks, or removes the highlight with -off.
`
}

func (c *highlightCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.off, "off", false, "Remove the highlight.")
}

func (c *highlightCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: highlight needs at least one name.")
		return subcommands.ExitUsageError
	}
	a, err := open(ctx, portfolio.Skip)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening portfolio: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	set, verb := a.p.Highlight, "Highlighted"
	if c.off {
		set, verb = a.p.Unhighlight, "Unhighlighted"
	}
	for _, name := range f.Args() {
		if err := set(name); err != nil {
			fmt.Fprintf(os.Stderr, "Error updating %q: %v\n", name, err)
			return subcommands.ExitFailure
		}
		fmt.Printf("%s %s\n", verb, name)
	}
	return subcommands.ExitSuccess
}

type searchCmd struct{}

func (*searchCmd) Name() string     { return "search" }
func (*searchCmd) Synopsis() string { return "search the market for a ticker" }
func (*searchCmd) Usage() string {
	return `yspy search <query>

  Lists the symbols matching a company name or a partial ticker.
`
}
func (*searchCmd) SetFlags(*flag.FlagSet) {}

func (c *searchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: search needs a query.")
		return subcommands.ExitUsageError
	}
	a, err := setup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	query := strings.Join(f.Args(), " ")
	matches, err := a.market.Search(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error searching %q: %v\n", query, err)
		return subcommands.ExitFailure
	}
	printMarkdown(os.Stdout, renderer.RenderSearch(&renderer.Search{Query: query, Matches: matches}))
	return subcommands.ExitSuccess
}
