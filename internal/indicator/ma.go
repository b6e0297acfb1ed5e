// Package indicator computes technical indicator series over price bars.
//
// Every function returns a slice aligned to its input: out[i] belongs to
// x[i]. Positions inside the warm-up window are NaN.
package indicator

import "math"

// SMA is the simple moving average over the last p points.
func SMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := nanSlice(len(x))
	start := firstValid(x)
	var sum float64
	for i := start; i < len(x); i++ {
		sum += x[i]
		if i-start < p-1 {
			continue
		}
		if i-start >= p {
			sum -= x[i-p]
		}
		out[i] = sum / float64(p)
	}
	return out
}

// EMA uses the standard 2/(p+1) smoothing, seeded with the SMA of the first
// p values. Leading NaNs in x are skipped, so EMA can be chained onto the
// output of another indicator.
func EMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := nanSlice(len(x))
	start := firstValid(x)
	if len(x)-start < p {
		return out
	}

	var seed float64
	for i := start; i < start+p; i++ {
		seed += x[i]
	}
	seed /= float64(p)
	out[start+p-1] = seed

	k := 2.0 / float64(p+1)
	for i := start + p; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// firstValid returns the index of the first non-NaN value, or len(x).
func firstValid(x []float64) int {
	for i, v := range x {
		if !math.IsNaN(v) {
			return i
		}
	}
	return len(x)
}
