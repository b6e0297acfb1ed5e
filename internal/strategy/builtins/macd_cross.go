package builtins

import (
	"strategylab/internal/domain"
	"strategylab/internal/indicator"
	"strategylab/internal/optimize"
	"strategylab/internal/strategy"
)

var _ strategy.Strategy = (*MACDCross)(nil)

// MACDCross goes long when the MACD line crosses above its signal line and
// short when it crosses below. A cross seen on bar i is acted on at bar i+1;
// a cross on the final bar is dropped.
type MACDCross struct{}

// NewMACDCross creates the MACD crossover strategy.
func NewMACDCross() *MACDCross {
	return &MACDCross{}
}

// Name returns "macd-cross".
func (s *MACDCross) Name() string {
	return "macd-cross"
}

// Defaults returns short_window=30, long_window=100, signal_period=6.
func (s *MACDCross) Defaults() domain.Params {
	return domain.Params{ParamShortWindow: 30, ParamLongWindow: 100, ParamSignalPeriod: 6}
}

// Bounds searches the two EMA windows; signal_period stays at its default.
func (s *MACDCross) Bounds() []optimize.Bound {
	return []optimize.Bound{
		{Name: ParamShortWindow, Min: 10, Max: 50},
		{Name: ParamLongWindow, Min: 50, Max: 200},
	}
}

// Signals computes MACD(short_window, long_window, signal_period) on closes.
func (s *MACDCross) Signals(bars []domain.Bar, params domain.Params) ([]domain.Signal, error) {
	p := s.Defaults().Merge(params)
	short, long, err := windows(p)
	if err != nil {
		return nil, err
	}
	period, err := positiveParam(p, ParamSignalPeriod)
	if err != nil {
		return nil, err
	}

	m := indicator.MACD(indicator.Closes(bars), short, long, period)

	signals := make([]domain.Signal, len(bars))
	for i := long; i+1 < len(bars); i++ {
		switch {
		case indicator.CrossedAbove(m.MACD, m.Signal, i):
			signals[i+1] = domain.SignalLong
		case indicator.CrossedBelow(m.MACD, m.Signal, i):
			signals[i+1] = domain.SignalShort
		}
	}
	return signals, nil
}
