// Package backtest simulates a single-asset portfolio driven by a per-bar
// signal series and derives performance metrics from the simulation.
package backtest

import (
	"fmt"
	"math"
	"strings"

	"strategylab/internal/domain"
)

// DefaultInitialCapital is used when Config.InitialCapital is left at zero.
const DefaultInitialCapital = 100000.0

// FillConvention selects the bar price at which every simulated order fills.
type FillConvention int

const (
	// FillAtOpen fills orders at the open of the signal bar.
	FillAtOpen FillConvention = iota
	// FillAtClose fills orders at the close of the signal bar.
	FillAtClose
)

// String returns "open" or "close".
func (f FillConvention) String() string {
	if f == FillAtClose {
		return "close"
	}
	return "open"
}

// ParseFill converts "open" or "close" (case-insensitive) to a
// FillConvention. An empty string selects FillAtOpen.
func ParseFill(s string) (FillConvention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open":
		return FillAtOpen, nil
	case "close":
		return FillAtClose, nil
	default:
		return FillAtOpen, fmt.Errorf("unknown fill convention %q", s)
	}
}

// Config holds the per-run simulation settings.
type Config struct {
	InitialCapital float64
	Fill           FillConvention
	// FeeRate is charged on the notional of every fill, e.g. 0.001 for
	// 10 bps. Zero means no fees.
	FeeRate float64
}

func (c Config) capital() float64 {
	if c.InitialCapital == 0 {
		return DefaultInitialCapital
	}
	return c.InitialCapital
}

// Result is the output of a single simulation run.
type Result struct {
	// Trades is the ledger in execution order.
	Trades []domain.Trade
	// Equity holds the initial capital followed by one mark-to-market
	// portfolio value per bar, so len(Equity) == len(bars)+1.
	Equity []float64
	// SkippedSignals counts directives that could not transact a single
	// share (see ErrInsufficientCapital).
	SkippedSignals int
	// Fees is the total commission charged over the run.
	Fees float64

	FinalCash   float64
	LongShares  int64
	ShortShares int64
}

// Run walks bars and signals index by index and returns the trade ledger and
// equity curve. Inputs are validated before any state is created and are
// never modified. Every call owns fresh cash, position and ledger state.
func Run(bars []domain.Bar, signals []domain.Signal, cfg Config) (*Result, error) {
	capital := cfg.capital()
	if capital < 0 || math.IsNaN(capital) || math.IsInf(capital, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCapital, capital)
	}
	if !(cfg.FeeRate >= 0 && cfg.FeeRate < 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFeeRate, cfg.FeeRate)
	}
	if err := validate(bars, signals); err != nil {
		return nil, err
	}

	sim := &simulation{
		fill:    cfg.Fill,
		fee:     cfg.FeeRate,
		cash:    capital,
		openIdx: -1,
	}
	equity := make([]float64, 0, len(bars)+1)
	equity = append(equity, capital)

	for i := range bars {
		sim.step(bars[i], signals[i])
		equity = append(equity, sim.value(bars[i].Close))
	}

	return &Result{
		Trades:         sim.trades,
		Equity:         equity,
		SkippedSignals: sim.skipped,
		Fees:           sim.fees,
		FinalCash:      sim.cash,
		LongShares:     sim.long,
		ShortShares:    sim.short,
	}, nil
}

func validate(bars []domain.Bar, signals []domain.Signal) error {
	if len(bars) == 0 {
		return fmt.Errorf("%w: no price bars", ErrEmptyInput)
	}
	if len(signals) == 0 {
		return fmt.Errorf("%w: no signals", ErrEmptyInput)
	}
	if len(bars) != len(signals) {
		return fmt.Errorf("%w: %d bars, %d signals", ErrDataMismatch, len(bars), len(signals))
	}
	for i := range bars {
		if !signals[i].Valid() {
			return fmt.Errorf("%w: signal %d at index %d", ErrDataMismatch, signals[i], i)
		}
		if !positive(bars[i].Open) || !positive(bars[i].Close) {
			return fmt.Errorf("%w: bar %d has open=%v close=%v", ErrDataMismatch, i, bars[i].Open, bars[i].Close)
		}
		if i > 0 && !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("%w: bar %d at %s does not follow %s", ErrDataMismatch,
				i, bars[i].Timestamp.Format("2006-01-02"), bars[i-1].Timestamp.Format("2006-01-02"))
		}
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// simulation is the mutable state of one run.
type simulation struct {
	fill FillConvention
	fee  float64

	cash      float64
	long      int64
	short     int64
	direction domain.Signal

	trades   []domain.Trade
	openIdx  int     // ledger index of the trade that opened the current position
	openFee  float64 // fee paid when that position was opened
	realized float64
	skipped  int
	fees     float64
}

func (s *simulation) fillPrice(bar domain.Bar) float64 {
	if s.fill == FillAtClose {
		return bar.Close
	}
	return bar.Open
}

func (s *simulation) value(mark float64) float64 {
	return s.cash + float64(s.long)*mark - float64(s.short)*mark
}

func (s *simulation) step(bar domain.Bar, sig domain.Signal) {
	if sig == domain.SignalHold || sig == s.direction {
		return
	}
	price := s.fillPrice(bar)

	var traded bool
	switch sig {
	case domain.SignalLong:
		traded = s.enterLong(bar, price)
	case domain.SignalShort:
		traded = s.exitLongOrEnterShort(bar, price)
	}
	if !traded {
		s.skipped++
		return
	}
	s.direction = sig
}

// enterLong covers any open short and then buys as many whole shares as the
// remaining cash allows.
func (s *simulation) enterLong(bar domain.Bar, price float64) bool {
	covered := s.short > 0
	if covered {
		fee := s.charge(s.short, price)
		s.cash -= float64(s.short) * price
		s.short = 0
		s.realize(price, fee)
	}

	shares := affordable(s.cash, price*(1+s.fee))
	if shares == 0 && !covered {
		return false
	}
	fee := s.charge(shares, price)
	s.long += shares
	s.cash -= float64(shares) * price
	s.record(bar, domain.TradeSideBuy, price, s.long, shares > 0, fee)
	return true
}

// exitLongOrEnterShort sells the whole long position if one is held;
// otherwise it opens a short sized by the available cash.
func (s *simulation) exitLongOrEnterShort(bar domain.Bar, price float64) bool {
	if s.long > 0 {
		fee := s.charge(s.long, price)
		s.cash += float64(s.long) * price
		s.long = 0
		s.realize(price, fee)
		s.record(bar, domain.TradeSideSell, price, 0, false, 0)
		return true
	}

	shares := affordable(s.cash, price*(1+s.fee))
	if shares == 0 {
		return false
	}
	fee := s.charge(shares, price)
	s.short += shares
	s.cash += float64(shares) * price
	s.record(bar, domain.TradeSideSell, price, s.short, true, fee)
	return true
}

// charge debits the fee for trading shares at price and returns it.
func (s *simulation) charge(shares int64, price float64) float64 {
	fee := float64(shares) * price * s.fee
	s.cash -= fee
	s.fees += fee
	return fee
}

// realize back-fills P&L, net of the entry and exit fees, onto the trade
// that opened the position being closed at exitPrice.
func (s *simulation) realize(exitPrice, exitFee float64) {
	if s.openIdx < 0 {
		return
	}
	open := &s.trades[s.openIdx]
	pnl := (exitPrice - open.Price) * float64(open.Shares)
	if open.Side == domain.TradeSideSell {
		pnl = -pnl
	}
	pnl -= s.openFee + exitFee
	s.realized += pnl
	open.ProfitLoss = pnl
	open.CumulativeProfit = s.realized
	open.Closed = true
	s.openIdx = -1
}

func (s *simulation) record(bar domain.Bar, side domain.TradeSide, price float64, shares int64, opens bool, fee float64) {
	s.trades = append(s.trades, domain.Trade{
		Date:         bar.Timestamp,
		Side:         side,
		Price:        price,
		Shares:       shares,
		CapitalAfter: s.cash,
	})
	if opens {
		s.openIdx = len(s.trades) - 1
		s.openFee = fee
	}
}

// maxShares is the largest share count a float64 holds exactly.
const maxShares = 1 << 53

// affordable returns floor(cash/price) capped at maxShares, or zero when
// cash is not positive.
func affordable(cash, price float64) int64 {
	if cash <= 0 {
		return 0
	}
	q := math.Floor(cash / price)
	if q >= maxShares {
		return maxShares
	}
	return int64(q)
}
