package indicator

// Default slow stochastic periods.
const (
	DefaultFastK = 5
	DefaultSlowK = 3
	DefaultSlowD = 3
)

// StochSeries holds the smoothed %K and %D lines.
type StochSeries struct {
	K []float64
	D []float64
}

// SlowStoch computes the slow stochastic oscillator. Raw %K is the position
// of close within the high/low range of the last fastK bars, scaled to
// 0..100 (0 when the range is flat). K is SMA(raw, slowK) and D is
// SMA(K, slowD).
func SlowStoch(high, low, close []float64, fastK, slowK, slowD int) StochSeries {
	n := len(close)
	if fastK <= 0 || slowK <= 0 || slowD <= 0 || len(high) != n || len(low) != n {
		return StochSeries{}
	}
	raw := nanSlice(n)
	for i := fastK - 1; i < n; i++ {
		hh, ll := high[i], low[i]
		for j := i - fastK + 1; j < i; j++ {
			hh = max(hh, high[j])
			ll = min(ll, low[j])
		}
		if hh > ll {
			raw[i] = (close[i] - ll) / (hh - ll) * 100
		} else {
			raw[i] = 0
		}
	}
	k := SMA(raw, slowK)
	return StochSeries{K: k, D: SMA(k, slowD)}
}
