// Package report renders backtest output as CSV and as ordered summary rows.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
)

// Row is one label/value pair of a metrics summary.
type Row struct {
	Label string
	Value string
}

// WriteTradesCSV writes the trade ledger with money columns rounded to cents.
func WriteTradesCSV(w io.Writer, trades []domain.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"date", "side", "price", "shares", "capital_after",
		"profit_loss", "cumulative_profit", "closed",
	}); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write([]string{
			t.Date.Format(time.DateOnly),
			string(t.Side),
			cents(t.Price),
			strconv.FormatInt(t.Shares, 10),
			cents(t.CapitalAfter),
			cents(t.ProfitLoss),
			cents(t.CumulativeProfit),
			strconv.FormatBool(t.Closed),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes one row per bar with the portfolio value and its
// drawdown. equity holds the initial capital first, so equity[i+1] belongs
// to dates[i].
func WriteEquityCSV(w io.Writer, dates []time.Time, equity []float64) error {
	if len(equity) != len(dates)+1 {
		return fmt.Errorf("%w: %d dates, %d equity values", backtest.ErrDataMismatch, len(dates), len(equity))
	}
	drawdown := backtest.DrawdownSeries(equity)

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "equity", "drawdown_pct"}); err != nil {
		return err
	}
	for i, d := range dates {
		if err := cw.Write([]string{
			d.Format(time.DateOnly),
			cents(equity[i+1]),
			cents(drawdown[i+1]),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SummaryRows returns the metrics as display rows in a fixed order.
// Undefined ratios are shown as "n/a".
func SummaryRows(m backtest.Metrics) []Row {
	rows := []Row{
		{"Return [%]", cents(m.TotalReturnPct)},
		{"Return from trades [%]", cents(m.TotalReturnFromTradesPct)},
		{"Return (Ann.) [%]", optional(m.AnnualReturnPct, 2)},
		{"Buy & Hold Return [%]", cents(m.BuyAndHoldReturnPct)},
		{"Sharpe Ratio", optional(m.SharpeRatio, 3)},
		{"Max. Drawdown [%]", cents(m.MaxDrawdownPct)},
		{"# Trades", strconv.Itoa(m.NumTrades)},
		{"Win Rate [%]", optional(m.WinRatePct, 2)},
		{"Profit Factor", optional(m.ProfitFactor, 3)},
	}
	for _, k := range m.BestParams.Keys() {
		rows = append(rows, Row{"Best " + k, strconv.Itoa(m.BestParams[k])})
	}
	return rows
}

func optional(v *float64, places int32) string {
	if v == nil {
		return "n/a"
	}
	return decimal.NewFromFloat(*v).StringFixed(places)
}

// cents rounds half away from zero to two decimals.
func cents(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
