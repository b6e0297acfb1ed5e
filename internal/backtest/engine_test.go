package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/domain"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// makeBars builds daily bars from (open, close) pairs.
func makeBars(oc ...[2]float64) []domain.Bar {
	bars := make([]domain.Bar, len(oc))
	for i, p := range oc {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: day0.AddDate(0, 0, i),
			Open:      p[0],
			High:      max(p[0], p[1]),
			Low:       min(p[0], p[1]),
			Close:     p[1],
			Volume:    1000,
		}
	}
	return bars
}

func sigs(v ...int) []domain.Signal {
	out := make([]domain.Signal, len(v))
	for i, s := range v {
		out[i] = domain.Signal(s)
	}
	return out
}

func TestRunSingleFlip(t *testing.T) {
	bars := makeBars([2]float64{10, 10}, [2]float64{12, 12}, [2]float64{15, 15})

	res, err := Run(bars, sigs(1, 0, -1), Config{InitialCapital: 100})
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	buy, sell := res.Trades[0], res.Trades[1]

	assert.Equal(t, domain.TradeSideBuy, buy.Side)
	assert.Equal(t, int64(10), buy.Shares)
	assert.Equal(t, 10.0, buy.Price)
	assert.Equal(t, 0.0, buy.CapitalAfter)

	assert.Equal(t, domain.TradeSideSell, sell.Side)
	assert.Equal(t, 15.0, sell.Price)
	assert.Equal(t, 150.0, sell.CapitalAfter)

	// P&L is back-filled onto the opening trade.
	assert.True(t, buy.Closed)
	assert.Equal(t, 50.0, buy.ProfitLoss)
	assert.Equal(t, 50.0, buy.CumulativeProfit)
	assert.False(t, sell.Closed)

	assert.Equal(t, []float64{100, 100, 120, 150}, res.Equity)
	assert.Equal(t, 150.0, res.FinalCash)
	assert.Zero(t, res.LongShares)

	m, err := Summarize(res.Equity, res.Trades, bars, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, 50.0, m.TotalReturnPct)
	assert.Equal(t, 50.0, m.TotalReturnFromTradesPct)
	assert.Equal(t, 2, m.NumTrades)
}

func TestRunFlatStrategy(t *testing.T) {
	bars := makeBars([2]float64{10, 11}, [2]float64{11, 9}, [2]float64{9, 14}, [2]float64{14, 13})

	res, err := Run(bars, sigs(0, 0, 0, 0), Config{InitialCapital: 1000})
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	require.Len(t, res.Equity, len(bars)+1)
	for i, v := range res.Equity {
		assert.Equal(t, 1000.0, v, "equity[%d]", i)
	}

	m, err := Summarize(res.Equity, res.Trades, bars, 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.TotalReturnPct)
	assert.Nil(t, m.SharpeRatio, "constant equity has no defined Sharpe ratio")
}

func TestRunDefaultsCapital(t *testing.T) {
	bars := makeBars([2]float64{10, 10})
	res, err := Run(bars, sigs(0), Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultInitialCapital, res.Equity[0])
}

func TestRunIdempotent(t *testing.T) {
	bars := makeBars(
		[2]float64{10, 10.5}, [2]float64{10.2, 11}, [2]float64{11.3, 10.8},
		[2]float64{10.1, 9.7}, [2]float64{9.9, 12.2}, [2]float64{12.5, 12.1},
	)
	signals := sigs(1, 0, -1, 1, -1, 1)
	cfg := Config{InitialCapital: 5000}

	first, err := Run(bars, signals, cfg)
	require.NoError(t, err)
	second, err := Run(bars, signals, cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRunDoesNotMutateInputs(t *testing.T) {
	bars := makeBars([2]float64{10, 10}, [2]float64{12, 12})
	signals := sigs(1, -1)
	barsCopy := append([]domain.Bar(nil), bars...)
	sigCopy := append([]domain.Signal(nil), signals...)

	_, err := Run(bars, signals, Config{InitialCapital: 100})
	require.NoError(t, err)

	assert.Equal(t, barsCopy, bars)
	assert.Equal(t, sigCopy, signals)
}

func TestRunShortAndCover(t *testing.T) {
	// Flat -> short 10 @10 -> cover @8 and buy long -> sell @9.
	bars := makeBars([2]float64{10, 9}, [2]float64{8, 8}, [2]float64{9, 9})

	res, err := Run(bars, sigs(-1, 1, -1), Config{InitialCapital: 100})
	require.NoError(t, err)
	require.Len(t, res.Trades, 3)

	short := res.Trades[0]
	assert.Equal(t, domain.TradeSideSell, short.Side)
	assert.Equal(t, int64(10), short.Shares)
	assert.Equal(t, 200.0, short.CapitalAfter)
	// Short of 10 from 10 to 8 realizes +20.
	assert.True(t, short.Closed)
	assert.Equal(t, 20.0, short.ProfitLoss)
	assert.Equal(t, 20.0, short.CumulativeProfit)

	// Covering costs 80, leaving 120 to buy 15 shares at 8.
	long := res.Trades[1]
	assert.Equal(t, domain.TradeSideBuy, long.Side)
	assert.Equal(t, int64(15), long.Shares)
	assert.Equal(t, 0.0, long.CapitalAfter)
	assert.True(t, long.Closed)
	assert.Equal(t, 15.0, long.ProfitLoss)
	assert.Equal(t, 35.0, long.CumulativeProfit)

	// Bar 0 marks the short at close 9: 200 - 90.
	assert.Equal(t, []float64{100, 110, 120, 135}, res.Equity)
}

func TestRunCoverWithoutAffordableLong(t *testing.T) {
	// Short 10 @10, then the price nearly doubles: covering leaves 5 in
	// cash, which buys no share at 19.5.
	bars := makeBars([2]float64{10, 10}, [2]float64{19.5, 19.5}, [2]float64{19.5, 19.5})

	res, err := Run(bars, sigs(-1, 1, 1), Config{InitialCapital: 100})
	require.NoError(t, err)
	require.Len(t, res.Trades, 2, "the repeated long on bar 2 is not a change of direction")

	short, cover := res.Trades[0], res.Trades[1]
	assert.True(t, short.Closed)
	assert.Equal(t, -95.0, short.ProfitLoss)

	assert.Equal(t, domain.TradeSideBuy, cover.Side)
	assert.Equal(t, int64(0), cover.Shares)
	assert.Equal(t, 5.0, cover.CapitalAfter)
	assert.False(t, cover.Closed)

	assert.Zero(t, res.SkippedSignals)
	assert.Zero(t, res.LongShares)
	assert.Zero(t, res.ShortShares)
	assert.Equal(t, []float64{100, 100, 5, 5}, res.Equity)
}

func TestRunSharesCappedOnHugeQuotient(t *testing.T) {
	bars := makeBars([2]float64{0.0001, 0.0001}, [2]float64{0.0001, 0.0001})
	capital := 1e16

	res, err := Run(bars, sigs(1, 0), Config{InitialCapital: capital})
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	buy := res.Trades[0]
	assert.Equal(t, int64(maxShares), buy.Shares)
	assert.Equal(t, int64(maxShares), res.LongShares)
	assert.Less(t, buy.CapitalAfter, capital, "buying must spend cash")
	assert.GreaterOrEqual(t, buy.CapitalAfter, 0.0)
}

func TestRunFeeRate(t *testing.T) {
	bars := makeBars([2]float64{10, 10}, [2]float64{12, 12}, [2]float64{12, 12})

	res, err := Run(bars, sigs(1, -1, 0), Config{InitialCapital: 1000, FeeRate: 0.01})
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)

	// 99 shares cost 990 plus a 9.90 fee; the 100th would not fit.
	buy := res.Trades[0]
	assert.Equal(t, int64(99), buy.Shares)
	assert.InDelta(t, 0.1, buy.CapitalAfter, 1e-9)

	// Selling at 12 pays an 11.88 fee. P&L is net of both fees.
	assert.InDelta(t, 198-9.9-11.88, buy.ProfitLoss, 1e-9)
	assert.InDelta(t, 1176.22, res.FinalCash, 1e-9)
	assert.InDelta(t, 21.78, res.Fees, 1e-9)

	require.Len(t, res.Equity, 4)
	assert.InDelta(t, 990.1, res.Equity[1], 1e-9)
	assert.InDelta(t, 1176.22, res.Equity[3], 1e-9)

	m, err := Summarize(res.Equity, res.Trades, bars, 1000, nil)
	require.NoError(t, err)
	assert.InDelta(t, m.TotalReturnPct, m.TotalReturnFromTradesPct, 1e-9,
		"once flat, realized P&L accounts for every fee")
}

func TestRunFillAtClose(t *testing.T) {
	bars := makeBars([2]float64{10, 20}, [2]float64{30, 40})

	res, err := Run(bars, sigs(1, -1), Config{InitialCapital: 100, Fill: FillAtClose})
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)

	assert.Equal(t, 20.0, res.Trades[0].Price)
	assert.Equal(t, int64(5), res.Trades[0].Shares)
	assert.Equal(t, 40.0, res.Trades[1].Price)
	assert.Equal(t, 200.0, res.Equity[2])
}

func TestRunRepeatedSignalIgnored(t *testing.T) {
	bars := makeBars([2]float64{10, 10}, [2]float64{10, 10}, [2]float64{10, 10})

	res, err := Run(bars, sigs(1, 1, 1), Config{InitialCapital: 100})
	require.NoError(t, err)
	assert.Len(t, res.Trades, 1)
}

func TestRunSellWhileLongDoesNotOpenShort(t *testing.T) {
	bars := makeBars([2]float64{10, 10}, [2]float64{11, 11}, [2]float64{12, 12})

	res, err := Run(bars, sigs(1, -1, -1), Config{InitialCapital: 100})
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	assert.Zero(t, res.ShortShares)
	assert.Equal(t, int64(0), res.Trades[1].Shares)
	assert.Equal(t, 110.0, res.FinalCash)
}

func TestRunInsufficientCapitalSkips(t *testing.T) {
	bars := makeBars([2]float64{500, 500}, [2]float64{50, 50})

	res, err := Run(bars, sigs(1, 1), Config{InitialCapital: 100})
	require.NoError(t, err)

	// The first signal cannot afford a share and is skipped, so the repeated
	// long on bar 1 is still a change of direction.
	assert.Equal(t, 1, res.SkippedSignals)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, day0.AddDate(0, 0, 1), res.Trades[0].Date)
	assert.Equal(t, int64(2), res.Trades[0].Shares)
}

func TestRunConservationWhenFlat(t *testing.T) {
	bars := makeBars(
		[2]float64{10, 11}, [2]float64{12, 13}, [2]float64{11, 10},
		[2]float64{9, 9.5}, [2]float64{10, 10},
	)
	signals := sigs(1, -1, 0, 0, 0)

	res, err := Run(bars, signals, Config{InitialCapital: 1000})
	require.NoError(t, err)

	// After the sell on bar 1 nothing is held: equity equals cash.
	for i := 2; i <= len(bars); i++ {
		assert.Equal(t, res.FinalCash, res.Equity[i], "equity[%d]", i)
	}
	for _, tr := range res.Trades {
		assert.GreaterOrEqual(t, tr.Shares, int64(0))
	}
}

func TestRunValidation(t *testing.T) {
	bars := makeBars([2]float64{10, 10}, [2]float64{11, 11})

	tests := []struct {
		name    string
		bars    []domain.Bar
		signals []domain.Signal
		cfg     Config
		want    error
	}{
		{"no bars", nil, sigs(1), Config{}, ErrEmptyInput},
		{"no signals", bars, nil, Config{}, ErrEmptyInput},
		{"length mismatch", bars, sigs(1), Config{}, ErrDataMismatch},
		{"bad signal", bars, sigs(1, 2), Config{}, ErrDataMismatch},
		{"duplicate date", []domain.Bar{bars[0], bars[0]}, sigs(0, 0), Config{}, ErrDataMismatch},
		{"descending dates", []domain.Bar{bars[1], bars[0]}, sigs(0, 0), Config{}, ErrDataMismatch},
		{"zero open", makeBars([2]float64{0, 10}), sigs(0), Config{}, ErrDataMismatch},
		{"negative capital", bars, sigs(0, 0), Config{InitialCapital: -5}, ErrInvalidCapital},
		{"negative fee", bars, sigs(0, 0), Config{FeeRate: -0.001}, ErrInvalidFeeRate},
		{"fee of one", bars, sigs(0, 0), Config{FeeRate: 1}, ErrInvalidFeeRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Run(tt.bars, tt.signals, tt.cfg)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
		})
	}
}

func TestParseFill(t *testing.T) {
	f, err := ParseFill("Close")
	require.NoError(t, err)
	assert.Equal(t, FillAtClose, f)

	f, err = ParseFill("")
	require.NoError(t, err)
	assert.Equal(t, FillAtOpen, f)

	_, err = ParseFill("vwap")
	assert.Error(t, err)
}
