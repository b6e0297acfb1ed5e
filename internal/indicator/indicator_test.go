package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/domain"
)

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.Len(t, got, 5)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.Equal(t, []float64{2, 3, 4}, got[2:])

	assert.Nil(t, SMA([]float64{1, 2}, 0))
}

func TestSMASkipsLeadingNaN(t *testing.T) {
	nan := math.NaN()
	got := SMA([]float64{nan, nan, 2, 4, 6}, 2)
	assert.True(t, math.IsNaN(got[2]))
	assert.Equal(t, []float64{3, 5}, got[3:])
}

func TestEMA(t *testing.T) {
	got := EMA([]float64{2, 4, 6, 8}, 3)
	require.Len(t, got, 4)
	assert.True(t, math.IsNaN(got[1]))
	// Seed is SMA(2,4,6) = 4, then k = 0.5.
	assert.Equal(t, 4.0, got[2])
	assert.Equal(t, 6.0, got[3])

	short := EMA([]float64{1, 2}, 3)
	for i, v := range short {
		assert.True(t, math.IsNaN(v), "ema[%d]", i)
	}
}

func TestMACDConstantInput(t *testing.T) {
	x := make([]float64, 40)
	for i := range x {
		x[i] = 50
	}
	m := MACD(x, 3, 6, 4)
	require.Len(t, m.MACD, 40)

	// slow EMA warms up at 5, signal needs 4 more MACD points.
	assert.True(t, math.IsNaN(m.MACD[4]))
	assert.Equal(t, 0.0, m.MACD[5])
	assert.True(t, math.IsNaN(m.Signal[7]))
	assert.Equal(t, 0.0, m.Signal[8])
	assert.Equal(t, 0.0, m.Hist[39])
}

func TestMACDTrend(t *testing.T) {
	x := make([]float64, 60)
	for i := range x {
		x[i] = float64(i)
	}
	m := MACD(x, 5, 10, 3)
	// In a steady uptrend the fast average leads the slow one.
	assert.Greater(t, m.MACD[59], 0.0)
}

func TestCrosses(t *testing.T) {
	a := []float64{1, 2, 3, 2}
	b := []float64{2, 2, 2, 2}

	assert.False(t, CrossedAbove(a, b, 1), "touching is not crossing")
	assert.True(t, CrossedAbove(a, b, 2), "prev equal counts as below")
	assert.True(t, CrossedBelow(a, b, 3))
	assert.False(t, CrossedAbove(a, b, 0))
	assert.False(t, CrossedAbove(a, b, 9))

	nan := math.NaN()
	assert.False(t, CrossedAbove([]float64{nan, 3}, []float64{2, 2}, 1))
}

func TestSlowStoch(t *testing.T) {
	n := 12
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		high[i] = float64(10 + i)
		low[i] = float64(i)
		closes[i] = high[i]
	}
	s := SlowStoch(high, low, closes, DefaultFastK, DefaultSlowK, DefaultSlowD)
	require.Len(t, s.K, n)

	// Raw %K starts at 4, slow K at 6, slow D at 8.
	assert.True(t, math.IsNaN(s.K[5]))
	assert.InDelta(t, 100.0, s.K[6], 1e-9)
	assert.True(t, math.IsNaN(s.D[7]))
	assert.InDelta(t, 100.0, s.D[8], 1e-9)
}

func TestSlowStochFlatRange(t *testing.T) {
	flat := []float64{5, 5, 5, 5, 5, 5, 5, 5, 5}
	s := SlowStoch(flat, flat, flat, 5, 3, 3)
	assert.Equal(t, 0.0, s.K[6])
}

func TestOBV(t *testing.T) {
	got := OBV([]float64{10, 11, 11, 9}, []float64{100, 200, 300, 50})
	assert.Equal(t, []float64{100, 300, 300, 250}, got)
	assert.Nil(t, OBV([]float64{1}, nil))
}

func TestColumns(t *testing.T) {
	bars := []domain.Bar{
		{Open: 1, High: 3, Low: 0.5, Close: 2, Volume: 10},
		{Open: 2, High: 4, Low: 1.5, Close: 3, Volume: 20},
	}
	assert.Equal(t, []float64{2, 3}, Closes(bars))
	assert.Equal(t, []float64{3, 4}, Highs(bars))
	assert.Equal(t, []float64{0.5, 1.5}, Lows(bars))
	assert.Equal(t, []float64{10, 20}, Volumes(bars))
}
