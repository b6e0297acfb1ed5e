package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"strategylab/internal/config"
	"strategylab/internal/gather/us"
	"strategylab/internal/store"
	"strategylab/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (overrides gather.symbols)")
	startFlag := flag.String("start", "", "first date for symbols with no stored bars, YYYY-MM-DD")
	flag.Parse()

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	configured := cfg.Gather.Symbols
	symbolsFile := cfg.Gather.SymbolsFile
	if *symbolsFlag != "" {
		configured = strings.Split(*symbolsFlag, ",")
		symbolsFile = ""
	}
	symbols, err := us.ResolveSymbols(configured, symbolsFile)
	if err != nil {
		log.Fatalf("resolving symbols: %v", err)
	}

	startDate := cfg.Gather.StartDate
	if *startFlag != "" {
		startDate = *startFlag
	}

	updater := us.NewBarUpdater(
		us.NewBarsClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL),
		us.NewCalendarClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL),
		store.NewParquetStore(cfg.Storage.DataDir),
		us.BarUpdaterConfig{
			Symbols:         symbols,
			Market:          cfg.Gather.Market,
			StartDate:       startDate,
			MaxWorkers:      cfg.Gather.MaxWorkers,
			RateLimitPerMin: cfg.Gather.RateLimitPerMin,
			Feed:            cfg.Gather.Feed,
		},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting fetch-bars", "symbols", len(symbols), "dataDir", cfg.Storage.DataDir)
	if err := updater.Run(ctx); err != nil {
		slog.Error("fetch-bars failed", "err", err)
		os.Exit(1)
	}
	slog.Info("fetch-bars done", "bars", humanize.Comma(updater.Fetched()))
}
