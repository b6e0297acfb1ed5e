package builtins

import (
	"fmt"
	"math"

	"strategylab/internal/domain"
	"strategylab/internal/indicator"
	"strategylab/internal/optimize"
	"strategylab/internal/strategy"
)

var _ strategy.Strategy = (*MACDFilter)(nil)

// Additional macd-filter parameters.
const (
	ParamStochMax      = "stoch_max"
	ParamOBVWindow     = "obv_window"
	ParamTakeProfitPct = "take_profit_pct"
)

// MACDFilter is a long-only MACD strategy with confirmation filters. It buys
// on a bullish MACD cross while the slow stochastic %K is below stoch_max and
// OBV is at or above its obv_window SMA (obv_window=0 disables the OBV
// check). While long it exits on a bearish cross only once the close has
// gained more than take_profit_pct percent over the entry close.
type MACDFilter struct{}

// NewMACDFilter creates the filtered MACD strategy.
func NewMACDFilter() *MACDFilter {
	return &MACDFilter{}
}

// Name returns "macd-filter".
func (s *MACDFilter) Name() string {
	return "macd-filter"
}

// Defaults returns the filter settings used when none are supplied.
func (s *MACDFilter) Defaults() domain.Params {
	return domain.Params{
		ParamShortWindow:   10,
		ParamLongWindow:    20,
		ParamSignalPeriod:  6,
		ParamStochMax:      30,
		ParamOBVWindow:     6,
		ParamTakeProfitPct: 25,
	}
}

// Bounds returns short_window in [5,50] and long_window in [20,100].
func (s *MACDFilter) Bounds() []optimize.Bound {
	return []optimize.Bound{
		{Name: ParamShortWindow, Min: 5, Max: 50},
		{Name: ParamLongWindow, Min: 20, Max: 100},
	}
}

// Signals never emits a short from a flat position.
func (s *MACDFilter) Signals(bars []domain.Bar, params domain.Params) ([]domain.Signal, error) {
	p := s.Defaults().Merge(params)
	short, long, err := windows(p)
	if err != nil {
		return nil, err
	}
	period, err := positiveParam(p, ParamSignalPeriod)
	if err != nil {
		return nil, err
	}
	stochMax := float64(p[ParamStochMax])
	takeProfit := float64(p[ParamTakeProfitPct]) / 100
	obvWindow := p[ParamOBVWindow]
	if obvWindow < 0 {
		return nil, fmt.Errorf("%w: %s must not be negative, got %d", strategy.ErrInvalidParams, ParamOBVWindow, obvWindow)
	}

	closes := indicator.Closes(bars)
	m := indicator.MACD(closes, short, long, period)
	stoch := indicator.SlowStoch(indicator.Highs(bars), indicator.Lows(bars), closes,
		indicator.DefaultFastK, indicator.DefaultSlowK, indicator.DefaultSlowD)

	var obv, obvMA []float64
	if obvWindow > 0 {
		obv = indicator.OBV(closes, indicator.Volumes(bars))
		obvMA = indicator.SMA(obv, obvWindow)
	}

	signals := make([]domain.Signal, len(bars))
	holding := false
	var entry float64
	for i := 1; i < len(bars); i++ {
		if !holding {
			if !indicator.CrossedAbove(m.MACD, m.Signal, i) {
				continue
			}
			if k := stoch.K[i]; math.IsNaN(k) || k >= stochMax {
				continue
			}
			if obvWindow > 0 && (math.IsNaN(obvMA[i]) || obv[i] < obvMA[i]) {
				continue
			}
			signals[i] = domain.SignalLong
			holding = true
			entry = closes[i]
			continue
		}
		if indicator.CrossedAbove(m.Signal, m.MACD, i) && closes[i]/entry-1 > takeProfit {
			signals[i] = domain.SignalShort
			holding = false
		}
	}
	return signals, nil
}
