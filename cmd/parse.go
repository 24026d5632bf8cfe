package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/h4jen/yspy"
	"github.com/h4jen/yspy/date"
)

// parseDecimal reads a positive number. Spaces and underscores group digits and a single
// comma is accepted as the decimal separator.
func parseDecimal(s string) (decimal.Decimal, error) {
	clean := strings.NewReplacer(" ", "", "_", "", "\u00a0", "").Replace(strings.TrimSpace(s))
	if strings.Count(clean, ",") == 1 && !strings.Contains(clean, ".") {
		clean = strings.Replace(clean, ",", ".", 1)
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid number %q", s)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%q must be positive", s)
	}
	return d, nil
}

func parseVolume(s string) (portfolio.Quantity, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return portfolio.Quantity{}, err
	}
	return portfolio.Q(d), nil
}

// parseDay reads an optional date, today when empty.
func parseDay(s string) (date.Date, error) {
	if s == "" {
		return date.Today(), nil
	}
	return date.ParseAny(s)
}

// parseIndex reads the 1 based position of an item in a list of n.
func parseIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if i < 1 || i > n {
		return 0, fmt.Errorf("number %d out of range 1-%d", i, n)
	}
	return i - 1, nil
}

// deposits is a repeatable flag of DATE=AMOUNT[=DESCRIPTION] entries.
type deposits []portfolio.DepositEntry

func (d *deposits) String() string {
	var parts []string
	for _, e := range *d {
		parts = append(parts, e.Date.String()+"="+e.Amount.Decimal().String())
	}
	return strings.Join(parts, ",")
}

func (d *deposits) Set(s string) error {
	parts := strings.SplitN(s, "=", 3)
	if len(parts) < 2 {
		return fmt.Errorf("want DATE=AMOUNT[=DESCRIPTION], got %q", s)
	}
	day, err := date.ParseAny(strings.TrimSpace(parts[0]))
	if err != nil {
		return err
	}
	amount, err := parseDecimal(parts[1])
	if err != nil {
		return err
	}
	e := portfolio.DepositEntry{Date: day, Amount: portfolio.M(amount, portfolio.Base), Description: "Initial deposit"}
	if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
		e.Description = strings.TrimSpace(parts[2])
	}
	*d = append(*d, e)
	return nil
}
