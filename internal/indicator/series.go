package indicator

import "strategylab/internal/domain"

// Closes extracts the close prices of bars.
func Closes(bars []domain.Bar) []float64 {
	return column(bars, func(b domain.Bar) float64 { return b.Close })
}

// Highs extracts the high prices of bars.
func Highs(bars []domain.Bar) []float64 {
	return column(bars, func(b domain.Bar) float64 { return b.High })
}

// Lows extracts the low prices of bars.
func Lows(bars []domain.Bar) []float64 {
	return column(bars, func(b domain.Bar) float64 { return b.Low })
}

// Volumes extracts bar volumes as floats.
func Volumes(bars []domain.Bar) []float64 {
	return column(bars, func(b domain.Bar) float64 { return float64(b.Volume) })
}

func column(bars []domain.Bar, f func(domain.Bar) float64) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = f(b)
	}
	return out
}
