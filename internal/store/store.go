// Package store defines storage interfaces for persisting and retrieving
// price bars and backtest run history.
package store

import (
	"context"
	"time"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within
	// [start, end], ordered by timestamp. A zero start or end leaves that
	// side of the range open.
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)

	// LatestTimestamp returns the timestamp of the newest stored bar for
	// symbol, or ErrNotFound when there is none.
	LatestTimestamp(ctx context.Context, symbol string, market string) (time.Time, error)
}

// Run is one persisted backtest: its inputs, metrics and trade ledger.
type Run struct {
	ID             string
	CreatedAt      time.Time
	Strategy       string
	Symbol         string
	Market         string
	Start          time.Time
	End            time.Time
	Fill           string
	InitialCapital float64
	FeeRate        float64
	Params         domain.Params
	Metrics        backtest.Metrics
	Trades         []domain.Trade
}

// RunFilter narrows ListRuns. Empty fields match everything.
type RunFilter struct {
	Strategy string
	Symbol   string
	Limit    int
}

// RunStore persists backtest runs.
type RunStore interface {
	// SaveRun inserts run and its trades and returns the run ID. An empty
	// run.ID is assigned a new UUID.
	SaveRun(ctx context.Context, run *Run) (string, error)

	// GetRun returns a run with its trades, or ErrNotFound.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs newest first, without their trades.
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
}
