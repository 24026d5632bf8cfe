package cmd

import (
	"flag"
	"slices"
	"sort"
	"strings"

	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"

	"github.com/h4jen/yspy"
	"github.com/h4jen/yspy/config"
	"github.com/h4jen/yspy/docs"
)

// stockArgs are the commands whose arguments are stock names.
var stockArgs = []string{"remove-stock", "highlight", "buy", "sell", "correlate", "validate", "refresh"}

var fundArgs = []string{"remove-fund", "buy-fund", "sell-fund"}

// Completion describes the command line for shell completion.
func Completion() *complete.Command {
	root := &complete.Command{
		Sub: make(map[string]*complete.Command),
		Flags: map[string]complete.Predictor{
			"config": predict.Files("*.yaml"),
			"dir":    predict.Dirs("*"),
			"v":      predict.Nothing,
			"plain":  predict.Nothing,
		},
	}
	for _, c := range Commands() {
		root.Sub[c.Name()] = commandCompletion(c)
	}
	for _, name := range []string{"help", "flags", "commands"} {
		root.Sub[name] = &complete.Command{}
	}
	return root
}

func commandCompletion(c subcommands.Command) *complete.Command {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	c.SetFlags(fs)
	cmd := &complete.Command{Flags: make(map[string]complete.Predictor)}
	fs.VisitAll(func(f *flag.Flag) {
		if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
			cmd.Flags[f.Name] = predict.Nothing
			return
		}
		cmd.Flags[f.Name] = predict.Something
	})
	switch {
	case slices.Contains(stockArgs, c.Name()):
		cmd.Args = complete.PredictFunc(stockNames)
	case slices.Contains(fundArgs, c.Name()):
		cmd.Args = complete.PredictFunc(fundNames)
	case c.Name() == "topic":
		cmd.Args = predict.Set(docs.All())
	}
	return cmd
}

// completionStore opens the portfolio directory of the configuration, or of -dir.
func completionStore() (*config.Config, *portfolio.Store) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, nil
	}
	if *portfolioDir != "" {
		cfg.PortfolioDir = *portfolioDir
	}
	return cfg, portfolio.NewStore(cfg.PortfolioDir)
}

// stockNames predicts the names of the portfolio of the default configuration.
func stockNames(prefix string) []string {
	cfg, store := completionStore()
	if cfg == nil {
		return nil
	}
	var names map[string]string
	if ok, err := store.LoadJSON(cfg.PortfolioFile, &names); !ok || err != nil {
		return nil
	}
	return withPrefix(names, prefix)
}

// fundNames predicts the managed funds of the default configuration.
func fundNames(prefix string) []string {
	cfg, store := completionStore()
	if cfg == nil {
		return nil
	}
	var funds map[string]portfolio.FundInfo
	if ok, err := store.LoadJSON(portfolio.FundsFile, &funds); !ok || err != nil {
		return nil
	}
	return withPrefix(funds, prefix)
}

func withPrefix[V any](names map[string]V, prefix string) []string {
	var out []string
	for name := range names {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
