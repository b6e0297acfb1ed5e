package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"strategylab/internal/domain"
	"strategylab/internal/report"
	"strategylab/pkg/strategylab"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: strategylab-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version      Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  strategies   List strategies known to the server\n")
	fmt.Fprintf(os.Stderr, "  run          Run a backtest on the server\n")
	fmt.Fprintf(os.Stderr, "\nRun 'strategylab-cli <command> -h' for command options.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("strategylab-cli %s\n", version)
	case "strategies":
		err = strategies(os.Args[2:])
	case "run":
		err = run(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serverAddr() string {
	if a := os.Getenv("STRATEGYLAB_ADDR"); a != "" {
		return a
	}
	return "localhost:9090"
}

func strategies(args []string) error {
	fs := flag.NewFlagSet("strategies", flag.ExitOnError)
	addr := fs.String("addr", serverAddr(), "server address")
	fs.Parse(args)

	c, err := strategylab.NewClient(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	infos, err := c.ListStrategies(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		fmt.Printf("%-12s defaults: %s\n", info.Name, info.Defaults.String())
		for _, b := range info.Bounds {
			fmt.Printf("%-12s   %s in [%d, %d]\n", "", b.Name, b.Min, b.Max)
		}
	}
	return nil
}

func run(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	addr := fs.String("addr", serverAddr(), "server address")
	stratName := fs.String("strategy", "sma-cross", "strategy name")
	symbol := fs.String("symbol", "", "ticker symbol (required)")
	market := fs.String("market", "", "market")
	start := fs.String("start", "", "first bar date YYYY-MM-DD")
	end := fs.String("end", "", "last bar date YYYY-MM-DD")
	paramsStr := fs.String("params", "", "parameter overrides, e.g. short_window=20,long_window=80")
	capital := fs.Float64("capital", 0, "initial capital")
	fill := fs.String("fill", "", "fill convention: open or close")
	fee := fs.Float64("fee", -1, "fee rate per fill (default: server config)")
	optimize := fs.Bool("optimize", false, "search for the best parameters first")
	trials := fs.Int("trials", 0, "search trial budget")
	seed := fs.Uint64("seed", 0, "search seed")
	save := fs.Bool("save", false, "record the run on the server")
	asJSON := fs.Bool("json", false, "print the full report as JSON")
	timeout := fs.Duration("timeout", 5*time.Minute, "request timeout")
	fs.Parse(args)

	if *symbol == "" {
		fs.Usage()
		return fmt.Errorf("-symbol is required")
	}
	params, err := domain.ParseParams(*paramsStr)
	if err != nil {
		return err
	}
	req := strategylab.RunRequest{
		Strategy:       *stratName,
		Symbol:         *symbol,
		Market:         *market,
		Start:          *start,
		End:            *end,
		Params:         params,
		InitialCapital: *capital,
		Fill:           *fill,
		Optimize:       *optimize,
		Trials:         *trials,
		Seed:           *seed,
		Save:           *save,
	}
	if *fee >= 0 {
		req.FeeRate = fee
	}

	c, err := strategylab.NewClient(*addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	rep, err := c.Run(ctx, req)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	rows := [][]report.Row{
		report.RunRows(rep.Dates, rep.Equity),
		report.SummaryRows(rep.Metrics),
		{{Label: "Params", Value: rep.Params.String()}},
	}
	if rep.RunID != "" {
		rows = append(rows, []report.Row{{Label: "Run ID", Value: rep.RunID}})
	}
	fmt.Print(report.Render(fmt.Sprintf("%s %s (%s fill)", rep.Strategy, rep.Symbol, rep.Fill), rows...))
	return nil
}
