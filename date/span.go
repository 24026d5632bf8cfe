package date

import (
	"fmt"
	"strconv"
	"strings"
)

// Span is a lookback window as the market API names it: "5d", "1mo", "2y", "ytd" or "max".
type Span string

// Start returns the first day covered by the span when looking back from 'to'.
func (s Span) Start(to Date) (Date, error) {
	str := strings.ToLower(strings.TrimSpace(string(s)))
	switch str {
	case "ytd":
		return New(to.Year(), 1, 1), nil
	case "max":
		return New(1970, 1, 1), nil
	}
	unit := strings.TrimLeft(str, "0123456789")
	n, err := strconv.Atoi(strings.TrimSuffix(str, unit))
	if err != nil || n <= 0 {
		return Date{}, fmt.Errorf("invalid span %q", s)
	}
	switch unit {
	case "d":
		return to.Add(-n), nil
	case "wk":
		return to.Add(-7 * n), nil
	case "mo":
		return to.AddMonths(-n), nil
	case "y":
		return New(to.Year()-n, to.Month(), to.Day()), nil
	}
	return Date{}, fmt.Errorf("invalid span unit %q in %q", unit, s)
}

// Days returns the approximate number of calendar days in the span.
func (s Span) Days(to Date) int {
	from, err := s.Start(to)
	if err != nil {
		return 0
	}
	return to.DaysSince(from)
}
