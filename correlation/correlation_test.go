package correlation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h4jen/yspy/date"
)

func series(name string, start date.Date, values ...float64) Series {
	h := new(date.History)
	for i, v := range values {
		h.Append(start.Add(i), v)
	}
	return Series{Name: name, History: h}
}

func TestRanks(t *testing.T) {
	assert.Equal(t, []float64{3, 1, 4, 2}, Ranks([]float64{30, 10, 40, 20}))
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, Ranks([]float64{1, 5, 5, 9}))
}

func TestCoefficient(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{1, 4, 9, 16, 25}

	c, err := Coefficient(x, y, Spearman)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, c, 1e-12, "monotonic")

	c, err = Coefficient(x, y, Pearson)
	require.NoError(t, err)
	assert.Less(t, c, 1.0)
	assert.Greater(t, c, 0.95)

	c, err = Coefficient(x, []float64{5, 4, 3, 2, 1}, Pearson)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, c, 1e-12)

	_, err = Coefficient([]float64{1}, []float64{2}, Pearson)
	assert.ErrorIs(t, err, ErrTooFewPoints)
	_, err = Coefficient(x, y, "kendall")
	assert.Error(t, err)
}

func TestMatrix(t *testing.T) {
	d := date.New(2025, 1, 1)
	a := series("A", d, 10, 11, 12, 13, 14, 15)
	b := series("B", d, 20, 22, 24, 26, 28, 30)
	c := series("C", d.Add(2), 9, 8, 7, 6)

	m, err := Matrix([]Series{a, b, c}, Pearson)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, m.Prices.Names)
	assert.Equal(t, 4, m.Prices.Points, "dates common to all series")
	assert.InDelta(t, 1.0, m.Prices.At(0, 1), 1e-12)
	assert.InDelta(t, -1.0, m.Prices.At(0, 2), 1e-12)
	assert.InDelta(t, -1.0, m.Prices.At(2, 1), 1e-12)
	assert.Equal(t, 1.0, m.Prices.At(2, 2))
	assert.Equal(t, 3, m.Returns.Points)

	_, err = Matrix([]Series{a}, Pearson)
	assert.Error(t, err)
}

func TestPairwiseAndVersusBase(t *testing.T) {
	d := date.New(2025, 1, 1)
	base := series("BASE", d, 1, 2, 3, 4, 5)
	up := series("UP", d, 2, 4, 6, 8, 10)
	down := series("DOWN", d, 5, 4, 3, 2, 1)
	noisy := series("NOISY", d, 1, 3, 2, 5, 4)
	lonely := series("LONELY", d.Add(100), 1, 2, 3)

	pairs, err := Pairwise([]Series{base, up, lonely}, Pearson)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "BASE", pairs[0].A)
	assert.Equal(t, "UP", pairs[0].B)
	assert.Equal(t, 5, pairs[0].Overlap)

	ranked, err := VersusBase(base, []Series{down, base, noisy, up, lonely}, Spearman)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "UP", ranked[0].B)
	assert.Equal(t, "NOISY", ranked[1].B)
	assert.Equal(t, "DOWN", ranked[2].B)
	assert.InDelta(t, 0.8, ranked[1].Corr, 1e-12)
}

func TestVersusBaseRanksFlatSeriesLast(t *testing.T) {
	d := date.New(2025, 1, 1)
	base := series("BASE", d, 1, 2, 3, 4, 5)
	flat := series("FLAT", d, 7, 7, 7, 7, 7)
	up := series("UP", d, 2, 4, 6, 8, 10)
	down := series("DOWN", d, 5, 4, 3, 2, 1)

	for _, method := range []string{Pearson, Spearman} {
		ranked, err := VersusBase(base, []Series{flat, down, flat, up}, method)
		require.NoError(t, err)
		require.Len(t, ranked, 4)
		assert.Equal(t, "UP", ranked[0].B, method)
		assert.Equal(t, "DOWN", ranked[1].B, method)
		assert.True(t, math.IsNaN(ranked[2].Corr), method)
		assert.True(t, math.IsNaN(ranked[3].Corr), method)
	}
}

func TestNaNIsSkipped(t *testing.T) {
	d := date.New(2025, 1, 1)
	a := series("A", d, 1, math.NaN(), 3, 4)
	b := series("B", d, 2, 4, 6, 8)
	p, err := Pairwise([]Series{a, b}, Pearson)
	require.NoError(t, err)
	require.Len(t, p, 1)
	assert.Equal(t, 3, p[0].Overlap)
	assert.InDelta(t, 1.0, p[0].Corr, 1e-12)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "high", Label(0.7))
	assert.Equal(t, "negative", Label(-0.5))
	assert.Equal(t, "", Label(0.1))
}
