// Package correlation computes Pearson and Spearman correlations between price series.
package correlation

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/h4jen/yspy/date"
)

// Method names.
const (
	Pearson  = "pearson"
	Spearman = "spearman"
)

// Thresholds used to label correlations.
const (
	High     = 0.7
	Negative = -0.3
)

// ErrTooFewPoints is returned when two series share fewer than two dates.
var ErrTooFewPoints = errors.New("not enough overlapping data points")

// Series is a named price series.
type Series struct {
	Name    string
	History *date.History
}

// Coefficient returns the correlation of x and y with method.
func Coefficient(x, y []float64, method string) (float64, error) {
	if len(x) != len(y) {
		return math.NaN(), fmt.Errorf("length mismatch %d != %d", len(x), len(y))
	}
	if len(x) < 2 {
		return math.NaN(), ErrTooFewPoints
	}
	switch method {
	case Pearson, "":
		return stat.Correlation(x, y, nil), nil
	case Spearman:
		return stat.Correlation(Ranks(x), Ranks(y), nil), nil
	default:
		return math.NaN(), fmt.Errorf("unknown correlation method %q", method)
	}
}

// Ranks returns the 1-based rank of each value, ties sharing their average rank.
func Ranks(xs []float64) []float64 {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	ranks := make([]float64, len(xs))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// Result is a square correlation matrix over a set of names.
type Result struct {
	Names  []string
	Matrix *mat.SymDense
	Points int // common dates used
}

// At returns the correlation between the i-th and j-th names.
func (r *Result) At(i, j int) float64 { return r.Matrix.At(i, j) }

// Matrices holds the price and return correlation matrices.
type Matrices struct {
	Prices  *Result
	Returns *Result
}

// Matrix computes price and daily return correlations over the dates common to all series.
func Matrix(series []Series, method string) (*Matrices, error) {
	if len(series) < 2 {
		return nil, errors.New("need at least two series")
	}
	prices := make([]*date.History, len(series))
	returns := make([]*date.History, len(series))
	for i, s := range series {
		prices[i] = s.History
		returns[i] = s.History.Returns()
	}
	p, err := matrix(series, prices, method)
	if err != nil {
		return nil, fmt.Errorf("price correlation: %w", err)
	}
	r, err := matrix(series, returns, method)
	if err != nil {
		return nil, fmt.Errorf("return correlation: %w", err)
	}
	return &Matrices{Prices: p, Returns: r}, nil
}

func matrix(series []Series, hs []*date.History, method string) (*Result, error) {
	days, cols := date.Align(hs...)
	if len(days) < 2 {
		return nil, ErrTooFewPoints
	}
	n := len(series)
	m := mat.NewSymDense(n, nil)
	names := make([]string, n)
	for i := range series {
		names[i] = series[i].Name
		m.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			c, err := Coefficient(cols[i], cols[j], method)
			if err != nil {
				return nil, err
			}
			m.SetSym(i, j, c)
		}
	}
	return &Result{Names: names, Matrix: m, Points: len(days)}, nil
}

// Pair is the correlation of two series over their own common dates.
type Pair struct {
	A, B    string
	Corr    float64
	Overlap int
}

// Pairwise correlates every pair of series independently, each over the dates both share.
// Pairs with fewer than two common dates are skipped.
func Pairwise(series []Series, method string) ([]Pair, error) {
	var out []Pair
	for i := range series {
		for j := i + 1; j < len(series); j++ {
			p, err := pair(series[i], series[j], method)
			if errors.Is(err, ErrTooFewPoints) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func pair(a, b Series, method string) (Pair, error) {
	days, cols := date.Align(a.History, b.History)
	c, err := Coefficient(cols[0], cols[1], method)
	if err != nil {
		return Pair{}, err
	}
	return Pair{A: a.Name, B: b.Name, Corr: c, Overlap: len(days)}, nil
}

// VersusBase correlates base with each other series and sorts the result by correlation,
// highest first. Undefined correlations (flat series) come last. Series without overlap
// are left out.
func VersusBase(base Series, others []Series, method string) ([]Pair, error) {
	var out []Pair
	for _, o := range others {
		if o.Name == base.Name {
			continue
		}
		p, err := pair(base, o, method)
		if errors.Is(err, ErrTooFewPoints) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		switch {
		case math.IsNaN(out[i].Corr):
			return false
		case math.IsNaN(out[j].Corr):
			return true
		}
		return out[i].Corr > out[j].Corr
	})
	return out, nil
}

// Label classifies a correlation as "high", "negative" or "".
func Label(c float64) string {
	switch {
	case c >= High:
		return "high"
	case c <= Negative:
		return "negative"
	}
	return ""
}
