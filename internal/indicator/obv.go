package indicator

// OBV is on-balance volume: a running total that adds the bar's volume when
// close rises and subtracts it when close falls. OBV[0] is volume[0].
func OBV(close, volume []float64) []float64 {
	if len(close) != len(volume) || len(close) == 0 {
		return nil
	}
	out := make([]float64, len(close))
	out[0] = volume[0]
	for i := 1; i < len(close); i++ {
		switch {
		case close[i] > close[i-1]:
			out[i] = out[i-1] + volume[i]
		case close[i] < close[i-1]:
			out[i] = out[i-1] - volume[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}
