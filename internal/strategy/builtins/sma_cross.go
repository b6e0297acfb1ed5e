package builtins

import (
	"strategylab/internal/domain"
	"strategylab/internal/indicator"
	"strategylab/internal/optimize"
	"strategylab/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It
// generates a long signal on the bar where the short-period SMA crosses above
// the long-period SMA, and a short signal on the bar where it crosses below.
type SMACross struct{}

// NewSMACross creates the SMA crossover strategy.
func NewSMACross() *SMACross {
	return &SMACross{}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Defaults returns short_window=30, long_window=100.
func (s *SMACross) Defaults() domain.Params {
	return domain.Params{ParamShortWindow: 30, ParamLongWindow: 100}
}

// Bounds returns short_window in [10,50] and long_window in [50,200].
func (s *SMACross) Bounds() []optimize.Bound {
	return []optimize.Bound{
		{Name: ParamShortWindow, Min: 10, Max: 50},
		{Name: ParamLongWindow, Min: 50, Max: 200},
	}
}

// Signals evaluates crossovers from bar long_window onwards. Missing params
// fall back to Defaults.
func (s *SMACross) Signals(bars []domain.Bar, params domain.Params) ([]domain.Signal, error) {
	p := s.Defaults().Merge(params)
	short, long, err := windows(p)
	if err != nil {
		return nil, err
	}

	closes := indicator.Closes(bars)
	shortMA := indicator.SMA(closes, short)
	longMA := indicator.SMA(closes, long)

	signals := make([]domain.Signal, len(bars))
	for i := long; i < len(bars); i++ {
		switch {
		case indicator.CrossedAbove(shortMA, longMA, i):
			signals[i] = domain.SignalLong
		case indicator.CrossedBelow(shortMA, longMA, i):
			signals[i] = domain.SignalShort
		}
	}
	return signals, nil
}
