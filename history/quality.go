package history

import (
	"fmt"
	"math"
	"strings"
)

// Issue kinds reported by Quality.
const (
	EmptyData             = "empty_data"
	MissingColumns        = "missing_columns"
	InsufficientData      = "insufficient_data"
	FlatCloseData         = "flat_close_data"
	SuspiciousLowVariance = "suspicious_low_variance"
	ExcessiveNaN          = "excessive_nan"
	RecentNaN             = "recent_nan"
	ExtremePriceChanges   = "extreme_price_changes"
	InvalidPrices         = "invalid_prices"
)

const (
	minRows      = 30
	recentRows   = 30
	maxNaNRatio  = 0.15
	maxDayChange = 5.0 // 500%
)

// Issue is a data quality problem found in a frame.
type Issue struct {
	Kind   string
	Detail string
}

func (i Issue) String() string {
	if i.Detail == "" {
		return i.Kind
	}
	return i.Kind + "_" + i.Detail
}

// Critical reports whether a frame with this issue must not be saved.
func (i Issue) Critical() bool {
	switch i.Kind {
	case MissingColumns, InsufficientData, FlatCloseData, InvalidPrices:
		return true
	}
	return false
}

// Issues is a list of quality problems.
type Issues []Issue

// Critical returns the critical issues only.
func (is Issues) Critical() Issues {
	var out Issues
	for _, i := range is {
		if i.Critical() {
			out = append(out, i)
		}
	}
	return out
}

func (is Issues) String() string {
	s := make([]string, len(is))
	for k, i := range is {
		s[k] = i.String()
	}
	return strings.Join(s, ", ")
}

// Strings returns the issues formatted for display.
func (is Issues) Strings() []string {
	s := make([]string, len(is))
	for k, i := range is {
		s[k] = i.String()
	}
	return s
}

// Quality checks f for the problems that make percentage changes unreliable.
func Quality(f *Frame) Issues {
	if f.Empty() {
		return Issues{{Kind: EmptyData}}
	}
	var issues Issues
	if len(f.Missing) > 0 {
		issues = append(issues, Issue{MissingColumns, strings.Join(f.Missing, "_")})
	}
	n := len(f.Bars)
	if n < minRows {
		issues = append(issues, Issue{InsufficientData, fmt.Sprintf("%d_rows", n)})
	}

	var closes []float64
	nan := 0
	for _, b := range f.Bars {
		if math.IsNaN(b.Close) {
			nan++
			continue
		}
		closes = append(closes, b.Close)
	}

	if len(closes) > 5 {
		unique := make(map[float64]struct{}, len(closes))
		for _, c := range closes {
			unique[c] = struct{}{}
		}
		switch {
		case len(unique) <= 1:
			issues = append(issues, Issue{Kind: FlatCloseData})
		case float64(len(unique)) < 0.1*float64(len(closes)):
			issues = append(issues, Issue{Kind: SuspiciousLowVariance})
		}
	}

	if ratio := float64(nan) / float64(n); ratio > maxNaNRatio {
		issues = append(issues, Issue{ExcessiveNaN, fmt.Sprintf("%.1f%%", ratio*100)})
	}
	if n >= recentRows {
		recent := 0
		for _, b := range f.Bars[n-recentRows:] {
			if math.IsNaN(b.Close) {
				recent++
			}
		}
		if recent > 0 {
			issues = append(issues, Issue{RecentNaN, fmt.Sprintf("%d_in_last_%d_days", recent, recentRows)})
		}
	}

	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		if math.Abs(closes[i]/closes[i-1]-1) > maxDayChange {
			issues = append(issues, Issue{Kind: ExtremePriceChanges})
			break
		}
	}

	invalid := 0
	for _, c := range closes {
		if c <= 0 {
			invalid++
		}
	}
	if invalid > 0 {
		issues = append(issues, Issue{InvalidPrices, fmt.Sprint(invalid)})
	}
	return issues
}
