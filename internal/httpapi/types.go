package httpapi

import (
	"time"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/store"
)

// RunSummary is one row of GET /api/runs.
type RunSummary struct {
	ID             string        `json:"id"`
	CreatedAt      time.Time     `json:"created_at"`
	Strategy       string        `json:"strategy"`
	Symbol         string        `json:"symbol"`
	Market         string        `json:"market"`
	Start          string        `json:"start"`
	End            string        `json:"end"`
	Fill           string        `json:"fill"`
	InitialCapital float64       `json:"initial_capital"`
	FeeRate        float64       `json:"fee_rate"`
	Params         domain.Params `json:"params"`
	TotalReturnPct float64       `json:"total_return_pct"`
	SharpeRatio    *float64      `json:"sharpe_ratio"`
	MaxDrawdownPct float64       `json:"max_drawdown_pct"`
	NumTrades      int           `json:"num_trades"`
}

// RunDetail is the body of GET /api/runs/{id}.
type RunDetail struct {
	RunSummary
	Metrics backtest.Metrics `json:"metrics"`
	Trades  []domain.Trade   `json:"trades"`
}

func summarize(r store.Run) RunSummary {
	return RunSummary{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt,
		Strategy:       r.Strategy,
		Symbol:         r.Symbol,
		Market:         r.Market,
		Start:          r.Start.Format(time.DateOnly),
		End:            r.End.Format(time.DateOnly),
		Fill:           r.Fill,
		InitialCapital: r.InitialCapital,
		FeeRate:        r.FeeRate,
		Params:         r.Params,
		TotalReturnPct: r.Metrics.TotalReturnPct,
		SharpeRatio:    r.Metrics.SharpeRatio,
		MaxDrawdownPct: r.Metrics.MaxDrawdownPct,
		NumTrades:      r.Metrics.NumTrades,
	}
}
