package indicator

import "math"

// MACDSeries holds the three MACD outputs, all aligned to the input.
type MACDSeries struct {
	MACD   []float64
	Signal []float64
	Hist   []float64
}

// MACD computes EMA(fast) - EMA(slow) of x, its signal line (EMA of MACD over
// signalPeriod) and the histogram (MACD - signal).
func MACD(x []float64, fast, slow, signalPeriod int) MACDSeries {
	if fast <= 0 || slow <= 0 || signalPeriod <= 0 {
		return MACDSeries{}
	}
	fastEMA := EMA(x, fast)
	slowEMA := EMA(x, slow)

	line := nanSlice(len(x))
	for i := range x {
		if math.IsNaN(fastEMA[i]) || math.IsNaN(slowEMA[i]) {
			continue
		}
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig := EMA(line, signalPeriod)

	hist := nanSlice(len(x))
	for i := range x {
		if math.IsNaN(sig[i]) {
			continue
		}
		hist[i] = line[i] - sig[i]
	}
	return MACDSeries{MACD: line, Signal: sig, Hist: hist}
}

// CrossedAbove reports whether a moved from at-or-below b on bar i-1 to
// strictly above b on bar i. NaN on either bar never crosses.
func CrossedAbove(a, b []float64, i int) bool {
	if i <= 0 || i >= len(a) || i >= len(b) {
		return false
	}
	if anyNaN(a[i], b[i], a[i-1], b[i-1]) {
		return false
	}
	return a[i] > b[i] && a[i-1] <= b[i-1]
}

// CrossedBelow reports whether a moved from at-or-above b on bar i-1 to
// strictly below b on bar i.
func CrossedBelow(a, b []float64, i int) bool {
	if i <= 0 || i >= len(a) || i >= len(b) {
		return false
	}
	if anyNaN(a[i], b[i], a[i-1], b[i-1]) {
		return false
	}
	return a[i] < b[i] && a[i-1] >= b[i-1]
}

func anyNaN(v ...float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
