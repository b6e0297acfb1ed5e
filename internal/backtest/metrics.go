package backtest

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"strategylab/internal/domain"
)

// TradingDaysPerYear is the annualization factor for daily bars.
const TradingDaysPerYear = 252

// Metrics is the performance summary of one run. It is computed once from a
// completed simulation and never mutated afterwards.
type Metrics struct {
	TotalReturnPct float64 `json:"total_return_pct"`
	// TotalReturnFromTradesPct counts realized P&L only, so it diverges from
	// TotalReturnPct while a position is still open on the last bar.
	TotalReturnFromTradesPct float64 `json:"total_return_from_trades_pct"`
	// AnnualReturnPct is nil when compounding overflows a float64, which
	// happens on very short high-growth series. It encodes as JSON null.
	AnnualReturnPct *float64 `json:"annual_return_pct"`
	// SharpeRatio is nil when the ratio is undefined (see ErrUndefinedRatio)
	// and encodes as JSON null.
	SharpeRatio    *float64 `json:"sharpe_ratio"`
	MaxDrawdownPct float64  `json:"max_drawdown_pct"`
	NumTrades      int      `json:"num_trades"`
	// WinRatePct and ProfitFactor are computed over closed positions and are
	// nil when undefined (no closed positions, or no losses for the profit
	// factor).
	WinRatePct          *float64      `json:"win_rate_pct"`
	ProfitFactor        *float64      `json:"profit_factor"`
	BuyAndHoldReturnPct float64       `json:"buy_and_hold_return_pct"`
	BestParams          domain.Params `json:"best_params,omitempty"`
}

// Summarize derives the metrics record from a run's equity curve, trade
// ledger and price series. bestParams is passed through untouched and may be
// nil.
func Summarize(equity []float64, trades []domain.Trade, bars []domain.Bar, initialCapital float64, bestParams domain.Params) (*Metrics, error) {
	if len(equity) == 0 {
		return nil, fmt.Errorf("%w: no equity values", ErrEmptyInput)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no price bars", ErrEmptyInput)
	}
	if !positive(initialCapital) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCapital, initialCapital)
	}

	last := equity[len(equity)-1]
	m := &Metrics{
		TotalReturnPct:           (last/initialCapital - 1) * 100,
		TotalReturnFromTradesPct: RealizedProfit(trades) / initialCapital * 100,
		MaxDrawdownPct:           MaxDrawdownPct(equity),
		NumTrades:                len(trades),
		BuyAndHoldReturnPct:      (bars[len(bars)-1].Close/bars[0].Close - 1) * 100,
		BestParams:               bestParams,
	}
	if annual := AnnualReturnPct(last/initialCapital, len(bars)); !math.IsInf(annual, 0) && !math.IsNaN(annual) {
		m.AnnualReturnPct = &annual
	}
	if sharpe, err := SharpeRatio(equity); err == nil {
		m.SharpeRatio = &sharpe
	}
	if wr, err := WinRatePct(trades); err == nil {
		m.WinRatePct = &wr
	}
	if pf, err := ProfitFactor(trades); err == nil {
		m.ProfitFactor = &pf
	}
	return m, nil
}

// WinRatePct is the share of closed positions with a positive P&L, in
// percent.
func WinRatePct(trades []domain.Trade) (float64, error) {
	var closed, wins int
	for _, t := range trades {
		if !t.Closed {
			continue
		}
		closed++
		if t.ProfitLoss > 0 {
			wins++
		}
	}
	if closed == 0 {
		return 0, fmt.Errorf("%w: no closed positions", ErrUndefinedRatio)
	}
	return float64(wins) / float64(closed) * 100, nil
}

// ProfitFactor is gross profit over gross loss of the closed positions.
func ProfitFactor(trades []domain.Trade) (float64, error) {
	var profit, loss float64
	for _, t := range trades {
		if !t.Closed {
			continue
		}
		if t.ProfitLoss > 0 {
			profit += t.ProfitLoss
		} else {
			loss -= t.ProfitLoss
		}
	}
	if loss == 0 {
		return 0, fmt.Errorf("%w: no losing positions", ErrUndefinedRatio)
	}
	return profit / loss, nil
}

// RealizedProfit sums ProfitLoss over the ledger.
func RealizedProfit(trades []domain.Trade) float64 {
	var sum float64
	for _, t := range trades {
		sum += t.ProfitLoss
	}
	return sum
}

// AnnualReturnPct compounds growth (final/initial) over numBars trading days
// into a yearly percentage. A non-positive growth factor is a total loss and
// is reported as -100. The result is +Inf when compounding overflows.
func AnnualReturnPct(growth float64, numBars int) float64 {
	if numBars <= 0 {
		return 0
	}
	if growth <= 0 {
		return -100
	}
	return (math.Pow(growth, TradingDaysPerYear/float64(numBars)) - 1) * 100
}

// PeriodReturns returns the bar-over-bar fractional change of values. The
// first element has no predecessor and is dropped.
func PeriodReturns(values []float64) ([]float64, error) {
	if len(values) < 2 {
		return nil, nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			return nil, fmt.Errorf("%w: zero value at index %d", ErrUndefinedRatio, i-1)
		}
		out[i-1] = values[i]/values[i-1] - 1
	}
	return out, nil
}

// SharpeRatio annualizes mean/stddev of the period returns of equity with a
// zero risk-free rate. The sample standard deviation is used.
func SharpeRatio(equity []float64) (float64, error) {
	returns, err := PeriodReturns(equity)
	if err != nil {
		return 0, err
	}
	if len(returns) < 2 {
		return 0, fmt.Errorf("%w: %d returns", ErrUndefinedRatio, len(returns))
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0, fmt.Errorf("%w: zero variance", ErrUndefinedRatio)
	}
	return math.Sqrt(TradingDaysPerYear) * mean / std, nil
}

// DrawdownSeries returns, for each value, its percentage distance below the
// running maximum (zero or negative).
func DrawdownSeries(values []float64) []float64 {
	out := make([]float64, len(values))
	peak := math.Inf(-1)
	for i, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			out[i] = (v/peak - 1) * 100
		}
	}
	return out
}

// MaxDrawdownPct returns the deepest drawdown of values as a non-positive
// percentage.
func MaxDrawdownPct(values []float64) float64 {
	var worst float64
	for _, dd := range DrawdownSeries(values) {
		if dd < worst {
			worst = dd
		}
	}
	return worst
}
