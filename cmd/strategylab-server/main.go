package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"strategylab/internal/api"
	"strategylab/internal/config"
	"strategylab/internal/httpapi"
	"strategylab/internal/optimize"
	"strategylab/internal/paramstore"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
	"strategylab/internal/strategy/builtins"
	"strategylab/internal/util"
)

func main() {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening run store: %v", err)
	}
	defer runs.Close()

	params := paramstore.NewStore(cfg.Storage.ParamsPath, logger)
	registry := strategy.NewRegistry()
	builtins.Register(registry)

	bt := strategy.NewBacktester(
		store.NewParquetStore(cfg.Storage.DataDir),
		registry,
		strategy.WithParamStore(params),
		strategy.WithRunStore(runs),
		strategy.WithSearchMetrics(optimize.NewMetrics(reg)),
	)
	svc := api.NewBacktestService(bt, registry, api.Defaults{
		Market:         cfg.Backtest.Market,
		InitialCapital: cfg.Backtest.InitialCapital,
		FeeRate:        cfg.Backtest.FeeRate,
		Fill:           cfg.Backtest.Fill,
		Search:         cfg.Optimize.SearchConfig(),
		Bounds:         cfg.Optimize.Bounds,
	})
	srv := api.NewServer(cfg.Server.GRPCAddr(), cfg.Server.MetricsAddr(), svc, reg)
	srv.Handle("/api/", httpapi.NewHistoryServer(runs, params).Handler())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting strategylab-server",
		"grpc", cfg.Server.GRPCAddr(),
		"metrics", cfg.Server.MetricsAddr(),
		"strategies", registry.List(),
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		slog.Error("server error", "err", err)
	}
}
