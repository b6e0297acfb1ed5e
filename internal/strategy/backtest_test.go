package strategy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/optimize"
	"strategylab/internal/paramstore"
	"strategylab/internal/store"
)

// memBars is an in-memory BarStore keyed by symbol.
type memBars map[string][]domain.Bar

var _ store.BarStore = memBars(nil)

func (m memBars) WriteBars(_ context.Context, bars []domain.Bar) error {
	for _, b := range bars {
		m[b.Symbol] = append(m[b.Symbol], b)
	}
	return nil
}

func (m memBars) ReadBars(_ context.Context, symbol, _ string, start, end time.Time) ([]domain.Bar, error) {
	var out []domain.Bar
	for _, b := range m[symbol] {
		if !start.IsZero() && b.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m memBars) ListSymbols(context.Context, string) ([]string, error) { return nil, nil }

func (m memBars) LatestTimestamp(context.Context, string, string) (time.Time, error) {
	return time.Time{}, store.ErrNotFound
}

// memRuns records saved runs.
type memRuns struct{ saved []*store.Run }

func (m *memRuns) SaveRun(_ context.Context, run *store.Run) (string, error) {
	run.ID = fmt.Sprintf("run-%d", len(m.saved)+1)
	m.saved = append(m.saved, run)
	return run.ID, nil
}

func (m *memRuns) GetRun(context.Context, string) (*store.Run, error) { return nil, store.ErrNotFound }

func (m *memRuns) ListRuns(context.Context, store.RunFilter) ([]store.Run, error) { return nil, nil }

// exitStrategy buys on bar 0 and sells on bar "exit".
type exitStrategy struct{}

func (exitStrategy) Name() string            { return "exit-at" }
func (exitStrategy) Defaults() domain.Params { return domain.Params{"exit": 1} }
func (exitStrategy) Bounds() []optimize.Bound {
	return []optimize.Bound{{Name: "exit", Min: 1, Max: 5}}
}

func (exitStrategy) Signals(bars []domain.Bar, p domain.Params) ([]domain.Signal, error) {
	exit := p["exit"]
	if exit <= 0 || exit >= len(bars) {
		return nil, fmt.Errorf("%w: exit %d", ErrInvalidParams, exit)
	}
	out := make([]domain.Signal, len(bars))
	out[0] = domain.SignalLong
	out[exit] = domain.SignalShort
	return out, nil
}

// risingBars has open == close == 10+i.
func risingBars(n int) []domain.Bar {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		p := float64(10 + i)
		bars[i] = domain.Bar{Symbol: "TEST", Timestamp: start.AddDate(0, 0, i), Open: p, High: p, Low: p, Close: p, Volume: 100}
	}
	return bars
}

func newTestBacktester(opts ...Option) *Backtester {
	r := NewRegistry()
	r.Register(exitStrategy{})
	return NewBacktester(memBars{"TEST": risingBars(6)}, r, opts...)
}

func TestBacktesterRunDefaults(t *testing.T) {
	bt := newTestBacktester()
	rep, err := bt.Run(context.Background(), Request{Strategy: "exit-at", Symbol: "TEST", InitialCapital: 100})
	require.NoError(t, err)

	assert.Equal(t, domain.Params{"exit": 1}, rep.Params)
	assert.InDelta(t, 10.0, rep.Metrics.TotalReturnPct, 1e-9)
	assert.Len(t, rep.Trades, 2)
	assert.Len(t, rep.Equity, 7)
	assert.Len(t, rep.Dates, 6)
	assert.Equal(t, "us", rep.Market)
	assert.Equal(t, "open", rep.Fill)
	assert.Nil(t, rep.Search)
	assert.Nil(t, rep.Metrics.BestParams)
	assert.Empty(t, rep.RunID)
}

func TestBacktesterParamPrecedence(t *testing.T) {
	ps := paramstore.NewStore("", nil)
	require.NoError(t, ps.Set("exit-at", "TEST", domain.Params{"exit": 2}))
	bt := newTestBacktester(WithParamStore(ps))

	rep, err := bt.Run(context.Background(), Request{Strategy: "exit-at", Symbol: "TEST", InitialCapital: 100})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Params["exit"], "saved params beat defaults")

	rep, err = bt.Run(context.Background(), Request{
		Strategy: "exit-at", Symbol: "TEST", InitialCapital: 100,
		Params: domain.Params{"exit": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Params["exit"], "request params beat saved params")
	assert.InDelta(t, 30.0, rep.Metrics.TotalReturnPct, 1e-9)
}

func TestBacktesterOptimize(t *testing.T) {
	ps := paramstore.NewStore("", nil)
	bt := newTestBacktester(WithParamStore(ps))

	rep, err := bt.Run(context.Background(), Request{
		Strategy:       "exit-at",
		Symbol:         "TEST",
		InitialCapital: 100,
		Optimize:       true,
		Search:         optimize.Config{Trials: 60, Workers: 3, Seed: 11},
	})
	require.NoError(t, err)
	require.NotNil(t, rep.Search)

	// Holding to the last bar of a rising series is optimal.
	assert.Equal(t, 5, rep.Params["exit"])
	assert.Equal(t, rep.Search.Best.Params, rep.Metrics.BestParams)

	saved, ok := ps.Get("exit-at", "TEST")
	require.True(t, ok)
	assert.Equal(t, 5, saved["exit"])
}

// The search scores parameters on the same bars the final report is computed
// on, so the reported return is in-sample. This pins that known limitation.
func TestBacktesterOptimizeIsInSample(t *testing.T) {
	bt := newTestBacktester()
	rep, err := bt.Run(context.Background(), Request{
		Strategy:       "exit-at",
		Symbol:         "TEST",
		InitialCapital: 100,
		Optimize:       true,
		Search:         optimize.Config{Trials: 10, Seed: 2},
	})
	require.NoError(t, err)
	assert.InDelta(t, rep.Search.Best.Score, rep.Metrics.TotalReturnPct, 1e-9)
}

func TestBacktesterOptimizeNoViableTrial(t *testing.T) {
	bt := newTestBacktester()
	_, err := bt.Run(context.Background(), Request{
		Strategy: "exit-at",
		Symbol:   "TEST",
		Optimize: true,
		Bounds:   []optimize.Bound{{Name: "exit", Min: 10, Max: 20}},
		Search:   optimize.Config{Trials: 5},
	})
	assert.ErrorIs(t, err, optimize.ErrNoViableTrial)
}

func TestBacktesterSavesRun(t *testing.T) {
	runs := &memRuns{}
	bt := newTestBacktester(WithRunStore(runs))

	rep, err := bt.Run(context.Background(), Request{Strategy: "exit-at", Symbol: "TEST", InitialCapital: 100, Save: true})
	require.NoError(t, err)
	require.Len(t, runs.saved, 1)
	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, 100.0, runs.saved[0].InitialCapital)
	assert.Len(t, runs.saved[0].Trades, 2)
}

func TestBacktesterFeeRate(t *testing.T) {
	runs := &memRuns{}
	bt := newTestBacktester(WithRunStore(runs))

	rep, err := bt.Run(context.Background(), Request{
		Strategy: "exit-at", Symbol: "TEST", InitialCapital: 1000, FeeRate: 0.001, Save: true,
	})
	require.NoError(t, err)

	// 99 shares at 10 then 11: fees of 0.99 and 1.089.
	assert.Equal(t, 0.001, rep.FeeRate)
	assert.InDelta(t, 2.079, rep.Fees, 1e-9)
	assert.InDelta(t, 1096.921, rep.Equity[len(rep.Equity)-1], 1e-9)
	require.Len(t, runs.saved, 1)
	assert.Equal(t, 0.001, runs.saved[0].FeeRate)

	_, err = bt.Run(context.Background(), Request{Strategy: "exit-at", Symbol: "TEST", FeeRate: -1})
	assert.ErrorIs(t, err, backtest.ErrInvalidFeeRate)
}

func TestBacktesterErrors(t *testing.T) {
	bt := newTestBacktester()
	ctx := context.Background()

	_, err := bt.Run(ctx, Request{Strategy: "nope", Symbol: "TEST"})
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = bt.Run(ctx, Request{Strategy: "exit-at", Symbol: "MISSING"})
	assert.ErrorIs(t, err, backtest.ErrEmptyInput)

	_, err = bt.Run(ctx, Request{Strategy: "exit-at", Symbol: "TEST", Params: domain.Params{"exit": 0}})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = bt.Run(ctx, Request{Strategy: "exit-at", Symbol: "TEST", InitialCapital: -1})
	assert.ErrorIs(t, err, backtest.ErrInvalidCapital)
}

func TestObjectiveMatchesScore(t *testing.T) {
	bars := risingBars(6)
	obj := Objective(bars, exitStrategy{}, exitStrategy{}.Defaults(), backtest.Config{InitialCapital: 100})

	score, err := obj(context.Background(), domain.Params{"exit": 4})
	require.NoError(t, err)
	assert.InDelta(t, 40.0, score, 1e-9)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = obj(ctx, domain.Params{"exit": 4})
	assert.ErrorIs(t, err, context.Canceled)
}
