package renderer

import (
	"fmt"
	"math"
	"text/template"
	"time"

	"github.com/h4jen/yspy"
	"github.com/h4jen/yspy/correlation"
)

var funcs = template.FuncMap{
	"num":    num,
	"pct":    pct,
	"change": change,
	"signed": func(m portfolio.Money) string { return m.SignedString() },
	"inc":    func(i int) int { return i + 1 },
	"mark": func(b bool) string {
		if b {
			return "★"
		}
		return ""
	},
	"pctOrDash": func(v float64) string {
		if math.IsNaN(v) {
			return "-"
		}
		return pct(v)
	},
	"corr":   corr,
	"label":  correlation.Label,
	"clock":  clock,
	"status": statusIcon,
}

// num formats a price, "-" when unknown.
func num(v float64) string {
	if v == 0 || math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

func pct(v float64) string { return fmt.Sprintf("%+.2f%%", v) }

// change formats the % change of a period, "-" when the past close is missing.
func change(h portfolio.PeriodClose) string {
	if !h.Known {
		return "-"
	}
	return pct(h.Change)
}

func corr(c float64) string {
	if math.IsNaN(c) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", c)
}

func clock(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04:05")
}

func statusIcon(s string) string {
	switch s {
	case portfolio.StatusGood:
		return "✅"
	case portfolio.StatusStale:
		return "⏰"
	case portfolio.StatusHasIssues:
		return "⚠️"
	case portfolio.StatusNoData:
		return "❌"
	}
	return "💥"
}
