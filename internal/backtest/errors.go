package backtest

import "errors"

// Validation and numerical errors reported by the engine and the metrics
// calculator.
var (
	// ErrEmptyInput is returned when the price or signal series has no rows.
	ErrEmptyInput = errors.New("empty input")

	// ErrDataMismatch is returned when the price and signal series are not
	// aligned, dates are not strictly increasing, a signal is outside
	// {-1, 0, +1}, or a fill price is not a positive finite number.
	ErrDataMismatch = errors.New("data mismatch")

	// ErrInvalidCapital is returned when the initial capital is not a
	// positive finite number.
	ErrInvalidCapital = errors.New("invalid initial capital")

	// ErrInvalidFeeRate is returned when the fee rate is outside [0, 1).
	ErrInvalidFeeRate = errors.New("invalid fee rate")

	// ErrInsufficientCapital marks an entry that could not buy or short a
	// single share. The engine skips such signals and counts them in
	// Result.SkippedSignals; it never returns this error from Run.
	ErrInsufficientCapital = errors.New("insufficient capital")

	// ErrUndefinedRatio is returned by SharpeRatio when the return series has
	// zero variance or too few points, and by WinRatePct and ProfitFactor
	// when their denominator is zero. Summarize reports it as a nil field.
	ErrUndefinedRatio = errors.New("undefined ratio")
)
