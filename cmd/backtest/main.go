package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"strategylab/internal/backtest"
	"strategylab/internal/config"
	"strategylab/internal/domain"
	"strategylab/internal/paramstore"
	"strategylab/internal/report"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
	"strategylab/internal/strategy/builtins"
	"strategylab/internal/util"
)

func main() {
	var (
		stratName = flag.String("strategy", "sma-cross", "strategy name")
		symbol    = flag.String("symbol", "", "ticker symbol (required)")
		market    = flag.String("market", "", "market (default from config)")
		startStr  = flag.String("start", "", "first bar date YYYY-MM-DD (default: all history)")
		endStr    = flag.String("end", "", "last bar date YYYY-MM-DD (default: latest)")
		paramsStr = flag.String("params", "", "parameter overrides, e.g. short_window=20,long_window=80")
		capital   = flag.Float64("capital", 0, "initial capital (default from config)")
		feeRate   = flag.Float64("fee", -1, "fee rate per fill, e.g. 0.001 (default from config)")
		fillStr   = flag.String("fill", "", "fill convention: open or close (default from config)")
		optimize  = flag.Bool("optimize", false, "search for the best parameters before the run")
		trials    = flag.Int("trials", 0, "search trial budget (default from config)")
		workers   = flag.Int("workers", 0, "concurrent search evaluations")
		seed      = flag.Uint64("seed", 0, "search seed (default from config)")
		csvDir    = flag.String("csv", "", "write trades.csv and equity.csv into this directory")
		asJSON    = flag.Bool("json", false, "print the full report as JSON instead of the summary")
		save      = flag.Bool("save", false, "record the run in the SQLite run store")
	)
	flag.Parse()

	if *symbol == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger := util.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	params, err := domain.ParseParams(*paramsStr)
	if err != nil {
		log.Fatalf("parsing -params: %v", err)
	}
	start, err := parseDate(*startStr)
	if err != nil {
		log.Fatalf("parsing -start: %v", err)
	}
	end, err := parseDate(*endStr)
	if err != nil {
		log.Fatalf("parsing -end: %v", err)
	}
	fillName := cfg.Backtest.Fill
	if *fillStr != "" {
		fillName = *fillStr
	}
	fill, err := backtest.ParseFill(fillName)
	if err != nil {
		log.Fatalf("parsing -fill: %v", err)
	}

	registry := strategy.NewRegistry()
	builtins.Register(registry)

	opts := []strategy.Option{
		strategy.WithParamStore(paramstore.NewStore(cfg.Storage.ParamsPath, logger)),
	}
	if *save {
		runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening run store: %v", err)
		}
		defer runs.Close()
		opts = append(opts, strategy.WithRunStore(runs))
	}
	bt := strategy.NewBacktester(store.NewParquetStore(cfg.Storage.DataDir), registry, opts...)

	req := strategy.Request{
		Strategy:       *stratName,
		Symbol:         *symbol,
		Market:         firstNonEmpty(*market, cfg.Backtest.Market),
		Start:          start,
		End:            end,
		Params:         params,
		InitialCapital: cfg.Backtest.InitialCapital,
		FeeRate:        cfg.Backtest.FeeRate,
		Fill:           fill,
		Optimize:       *optimize,
		Search:         cfg.Optimize.SearchConfig(),
		Bounds:         cfg.Optimize.Bounds,
		Save:           *save,
	}
	if *capital > 0 {
		req.InitialCapital = *capital
	}
	if *feeRate >= 0 {
		req.FeeRate = *feeRate
	}
	if *trials > 0 {
		req.Search.Trials = *trials
	}
	if *workers > 0 {
		req.Search.Workers = *workers
	}
	if *seed != 0 {
		req.Search.Seed = *seed
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rep, err := bt.Run(ctx, req)
	if err != nil {
		log.Fatalf("backtest: %v", err)
	}

	if *csvDir != "" {
		if err := writeCSV(*csvDir, rep); err != nil {
			log.Fatalf("writing csv: %v", err)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			log.Fatalf("encoding report: %v", err)
		}
		return
	}

	title := fmt.Sprintf("%s %s (%s fill, %g fee)", rep.Strategy, rep.Symbol, rep.Fill, rep.FeeRate)
	rows := [][]report.Row{
		report.RunRows(rep.Dates, rep.Equity),
		report.SummaryRows(rep.Metrics),
		{{Label: "Params", Value: rep.Params.String()}},
	}
	if rep.RunID != "" {
		rows = append(rows, []report.Row{{Label: "Run ID", Value: rep.RunID}})
	}
	fmt.Print(report.Render(title, rows...))
}

func writeCSV(dir string, rep *strategy.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	trades, err := os.Create(filepath.Join(dir, "trades.csv"))
	if err != nil {
		return err
	}
	defer trades.Close()
	if err := report.WriteTradesCSV(trades, rep.Trades); err != nil {
		return err
	}

	equity, err := os.Create(filepath.Join(dir, "equity.csv"))
	if err != nil {
		return err
	}
	defer equity.Close()
	return report.WriteEquityCSV(equity, rep.Dates, rep.Equity)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
