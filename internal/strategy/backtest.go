package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/optimize"
	"strategylab/internal/store"
)

// ParamStore persists the best-known parameters per strategy and symbol.
type ParamStore interface {
	Get(strategy, symbol string) (domain.Params, bool)
	Set(strategy, symbol string, params domain.Params) error
}

// Request describes one backtest.
type Request struct {
	Strategy string
	Symbol   string
	Market   string
	// Start and End bound the bar history; zero values leave a side open.
	Start, End time.Time
	// Params override saved and default parameters key by key.
	Params         domain.Params
	InitialCapital float64
	Fill           backtest.FillConvention
	// FeeRate is charged on the notional of every fill.
	FeeRate float64

	// Optimize runs a parameter search before the final run.
	Optimize bool
	Search   optimize.Config
	// Bounds replaces the strategy's own search bounds when non-empty.
	Bounds []optimize.Bound

	// Save records the run in the run store, if one is configured.
	Save bool
}

// Report is the outcome of a backtest.
type Report struct {
	RunID    string           `json:"run_id,omitempty"`
	Strategy string           `json:"strategy"`
	Symbol   string           `json:"symbol"`
	Market   string           `json:"market"`
	Fill     string           `json:"fill"`
	FeeRate  float64          `json:"fee_rate"`
	Params   domain.Params    `json:"params"`
	Metrics  backtest.Metrics `json:"metrics"`
	Trades   []domain.Trade   `json:"trades"`
	// Equity holds the initial capital followed by one value per bar;
	// Equity[i+1] is the value at the close of Dates[i].
	Equity         []float64        `json:"equity"`
	Dates          []time.Time      `json:"dates"`
	SkippedSignals int              `json:"skipped_signals"`
	Fees           float64          `json:"fees"`
	Search         *optimize.Result `json:"search,omitempty"`
}

// Backtester replays historical bar data through a strategy and computes
// performance metrics, optionally searching for the best parameters first.
type Backtester struct {
	store    store.BarStore
	registry *Registry
	params   ParamStore
	runs     store.RunStore
	metrics  *optimize.Metrics
	logger   *slog.Logger
}

// Option configures optional Backtester collaborators.
type Option func(*Backtester)

// WithParamStore resolves and saves parameters through ps.
func WithParamStore(ps ParamStore) Option {
	return func(bt *Backtester) { bt.params = ps }
}

// WithRunStore lets requests with Save set persist their runs.
func WithRunStore(rs store.RunStore) Option {
	return func(bt *Backtester) { bt.runs = rs }
}

// WithSearchMetrics records parameter searches in m.
func WithSearchMetrics(m *optimize.Metrics) Option {
	return func(bt *Backtester) { bt.metrics = m }
}

// NewBacktester creates a Backtester that reads bars from the given store and
// looks up strategies in the provided registry.
func NewBacktester(barStore store.BarStore, registry *Registry, opts ...Option) *Backtester {
	bt := &Backtester{
		store:    barStore,
		registry: registry,
		logger:   slog.Default().With("component", "backtester"),
	}
	for _, opt := range opts {
		opt(bt)
	}
	return bt
}

// Run executes one backtest. Parameters resolve as request params over saved
// params over strategy defaults. With req.Optimize the search result
// replaces the searched keys and is saved to the param store.
func (bt *Backtester) Run(ctx context.Context, req Request) (*Report, error) {
	strat, ok := bt.registry.Get(req.Strategy)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, req.Strategy)
	}
	market := req.Market
	if market == "" {
		market = string(domain.MarketUS)
	}

	bars, err := bt.store.ReadBars(ctx, req.Symbol, market, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("reading bars for %s: %w", req.Symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s/%s", backtest.ErrEmptyInput, market, req.Symbol)
	}

	cfg := backtest.Config{InitialCapital: req.InitialCapital, Fill: req.Fill, FeeRate: req.FeeRate}
	params := bt.resolveParams(strat, req)

	var search *optimize.Result
	if req.Optimize {
		bounds := req.Bounds
		if len(bounds) == 0 {
			bounds = strat.Bounds()
		}
		s := optimize.NewSearch(req.Search, bt.metrics)
		search, err = s.Run(ctx, Objective(bars, strat, params, cfg), bounds)
		if err != nil {
			return nil, fmt.Errorf("optimizing %s on %s: %w", strat.Name(), req.Symbol, err)
		}
		params = params.Merge(search.Best.Params)
		if bt.params != nil {
			if err := bt.params.Set(strat.Name(), req.Symbol, params); err != nil {
				bt.logger.Warn("saving best params", "strategy", strat.Name(), "symbol", req.Symbol, "error", err)
			}
		}
	}

	res, err := evaluate(bars, strat, params, cfg)
	if err != nil {
		return nil, err
	}
	var best domain.Params
	if search != nil {
		best = search.Best.Params
	}
	metrics, err := backtest.Summarize(res.Equity, res.Trades, bars, res.Equity[0], best)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Strategy:       strat.Name(),
		Symbol:         req.Symbol,
		Market:         market,
		Fill:           cfg.Fill.String(),
		FeeRate:        cfg.FeeRate,
		Params:         params,
		Metrics:        *metrics,
		Trades:         res.Trades,
		Equity:         res.Equity,
		Dates:          barDates(bars),
		SkippedSignals: res.SkippedSignals,
		Fees:           res.Fees,
		Search:         search,
	}

	if req.Save && bt.runs != nil {
		id, err := bt.runs.SaveRun(ctx, &store.Run{
			Strategy:       report.Strategy,
			Symbol:         report.Symbol,
			Market:         market,
			Start:          bars[0].Timestamp,
			End:            bars[len(bars)-1].Timestamp,
			Fill:           report.Fill,
			InitialCapital: res.Equity[0],
			FeeRate:        cfg.FeeRate,
			Params:         params,
			Metrics:        *metrics,
			Trades:         res.Trades,
		})
		if err != nil {
			return nil, fmt.Errorf("saving run: %w", err)
		}
		report.RunID = id
	}

	bt.logger.Info("backtest complete",
		"strategy", report.Strategy,
		"symbol", report.Symbol,
		"bars", len(bars),
		"params", params,
		"trades", metrics.NumTrades,
		"total_return_pct", metrics.TotalReturnPct,
		"optimized", search != nil,
	)
	return report, nil
}

func (bt *Backtester) resolveParams(strat Strategy, req Request) domain.Params {
	params := strat.Defaults()
	if bt.params != nil {
		if saved, ok := bt.params.Get(strat.Name(), req.Symbol); ok {
			params = params.Merge(saved)
		}
	}
	return params.Merge(req.Params)
}

// Objective returns the search objective for strat over bars: the
// mark-to-market total return percentage of a full run with base overridden
// by the trial's params. It scores the same history it was given; there is
// no out-of-sample split.
func Objective(bars []domain.Bar, strat Strategy, base domain.Params, cfg backtest.Config) optimize.Objective {
	return func(ctx context.Context, p domain.Params) (float64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		res, err := evaluate(bars, strat, base.Merge(p), cfg)
		if err != nil {
			return 0, err
		}
		return Score(res.Equity), nil
	}
}

// Score is the search objective value of an equity curve: total return in
// percent relative to its first value.
func Score(equity []float64) float64 {
	if len(equity) == 0 || equity[0] == 0 {
		return 0
	}
	return (equity[len(equity)-1]/equity[0] - 1) * 100
}

func evaluate(bars []domain.Bar, strat Strategy, params domain.Params, cfg backtest.Config) (*backtest.Result, error) {
	signals, err := strat.Signals(bars, params)
	if err != nil {
		return nil, fmt.Errorf("%s signals: %w", strat.Name(), err)
	}
	res, err := backtest.Run(bars, signals, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s backtest: %w", strat.Name(), err)
	}
	return res, nil
}

func barDates(bars []domain.Bar) []time.Time {
	out := make([]time.Time, len(bars))
	for i, b := range bars {
		out[i] = b.Timestamp
	}
	return out
}
