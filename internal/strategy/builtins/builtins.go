// Package builtins provides built-in strategy implementations that ship with
// strategylab.
package builtins

import (
	"fmt"

	"strategylab/internal/domain"
	"strategylab/internal/strategy"
)

// Parameter names shared by the moving-average strategies.
const (
	ParamShortWindow  = "short_window"
	ParamLongWindow   = "long_window"
	ParamSignalPeriod = "signal_period"
)

// Register adds every built-in strategy to r.
func Register(r *strategy.Registry) {
	r.Register(NewSMACross())
	r.Register(NewMACDCross())
	r.Register(NewMACDFilter())
}

// windows reads and checks the short/long window pair.
func windows(p domain.Params) (short, long int, err error) {
	short, long = p[ParamShortWindow], p[ParamLongWindow]
	if short <= 0 || long <= 0 {
		return 0, 0, fmt.Errorf("%w: windows must be positive (short=%d long=%d)", strategy.ErrInvalidParams, short, long)
	}
	if short >= long {
		return 0, 0, fmt.Errorf("%w: short window %d must be below long window %d", strategy.ErrInvalidParams, short, long)
	}
	return short, long, nil
}

func positiveParam(p domain.Params, key string) (int, error) {
	v := p[key]
	if v <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %d", strategy.ErrInvalidParams, key, v)
	}
	return v, nil
}
