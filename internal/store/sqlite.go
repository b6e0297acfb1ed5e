package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"strategylab/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// embedded migrations and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate applies all embedded SQL files in lexical order. Every migration
// is idempotent.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts the run row and its trade ledger in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) (string, error) {
	if run == nil || run.Strategy == "" || run.Symbol == "" {
		return "", fmt.Errorf("%w: run needs strategy and symbol", ErrInvalidInput)
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	params, err := json.Marshal(run.Params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return "", fmt.Errorf("encode metrics: %w", err)
	}

	var annual any
	if run.Metrics.AnnualReturnPct != nil {
		annual = *run.Metrics.AnnualReturnPct
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, created_at, strategy, symbol, market, start_ms, end_ms, fill,
			initial_capital, fee_rate, params, metrics, total_return, annual_return
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixMilli(), run.Strategy, run.Symbol, run.Market,
		run.Start.UnixMilli(), run.End.UnixMilli(), run.Fill, run.InitialCapital, run.FeeRate,
		string(params), string(metrics), run.Metrics.TotalReturnPct, annual,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_trades (
			run_id, seq, date_ms, side, price, shares, capital_after,
			profit_loss, cumulative_profit, closed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare trade insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range run.Trades {
		_, err := stmt.ExecContext(ctx,
			run.ID, i, t.Date.UnixMilli(), string(t.Side), t.Price, t.Shares,
			t.CapitalAfter, t.ProfitLoss, t.CumulativeProfit, t.Closed,
		)
		if err != nil {
			return "", fmt.Errorf("insert trade %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return run.ID, nil
}

const runColumns = `id, created_at, strategy, symbol, market, start_ms, end_ms, fill, initial_capital, fee_rate, params, metrics`

// GetRun retrieves a run and its trades by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date_ms, side, price, shares, capital_after, profit_loss, cumulative_profit, closed
		FROM run_trades WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("get run trades: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t      domain.Trade
			dateMS int64
			side   string
		)
		if err := rows.Scan(&dateMS, &side, &t.Price, &t.Shares, &t.CapitalAfter,
			&t.ProfitLoss, &t.CumulativeProfit, &t.Closed); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Date = time.UnixMilli(dateMS).UTC()
		t.Side = domain.TradeSide(side)
		run.Trades = append(run.Trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return run, nil
}

// ListRuns returns runs matching filter, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var (
		where []string
		args  []any
	)
	if filter.Strategy != "" {
		where = append(where, "strategy = ?")
		args = append(args, filter.Strategy)
	}
	if filter.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run                       Run
		createdMS, startMS, endMS int64
		params, metrics           string
	)
	if err := row.Scan(&run.ID, &createdMS, &run.Strategy, &run.Symbol, &run.Market,
		&startMS, &endMS, &run.Fill, &run.InitialCapital, &run.FeeRate, &params, &metrics); err != nil {
		return nil, err
	}
	run.CreatedAt = time.UnixMilli(createdMS).UTC()
	run.Start = time.UnixMilli(startMS).UTC()
	run.End = time.UnixMilli(endMS).UTC()
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &run.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return &run, nil
}
