package us

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"strategylab/internal/domain"
	"strategylab/internal/gather"
	"strategylab/internal/store"
	"strategylab/internal/util"
)

var _ gather.Gatherer = (*BarUpdater)(nil)

// BarsClient is the subset of the Alpaca market-data client used to fetch
// daily bars. *marketdata.Client satisfies it.
type BarsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// BarSink is where fetched bars land. *store.ParquetStore satisfies it.
type BarSink interface {
	LatestTimestamp(ctx context.Context, symbol, market string) (time.Time, error)
	WriteBarsForMarket(bars []domain.Bar, market string) error
}

// NewBarsClient creates an Alpaca market-data client. An empty dataURL keeps
// the library default.
func NewBarsClient(apiKey, apiSecret, dataURL string) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return marketdata.NewClient(opts)
}

// BarUpdaterConfig controls one update pass.
type BarUpdaterConfig struct {
	Symbols         []string
	Market          string
	StartDate       string // YYYY-MM-DD, used for symbols with no stored bars
	MaxWorkers      int
	RateLimitPerMin int
	Feed            string
	MaxAttempts     int
	RetryDelay      time.Duration
}

// BarUpdater brings the stored daily bars of a fixed symbol list up to the
// latest finished trading day. Each symbol resumes from the day after its
// newest stored bar, so repeated runs on the same day fetch nothing.
type BarUpdater struct {
	bars     BarsClient
	calendar CalendarClient
	sink     BarSink
	cfg      BarUpdaterConfig
	limiter  *util.RateLimiter
	now      func() time.Time
	log      *slog.Logger

	fetched atomic.Int64
	failed  atomic.Int64
}

// NewBarUpdater wires an updater from its collaborators.
func NewBarUpdater(bars BarsClient, calendar CalendarClient, sink BarSink, cfg BarUpdaterConfig) *BarUpdater {
	if cfg.Market == "" {
		cfg.Market = string(domain.MarketUS)
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &BarUpdater{
		bars:     bars,
		calendar: calendar,
		sink:     sink,
		cfg:      cfg,
		limiter:  util.NewRateLimiter(cfg.RateLimitPerMin),
		now:      time.Now,
		log:      slog.Default().With("gatherer", "us-bars"),
	}
}

// Name returns the gatherer identifier.
func (u *BarUpdater) Name() string { return "us-bars" }

// Fetched returns the number of bars written by the last Run.
func (u *BarUpdater) Fetched() int64 { return u.fetched.Load() }

// Run updates every configured symbol. Per-symbol failures are logged and
// counted; Run returns an error only when the end date cannot be determined,
// ctx is cancelled, or every symbol failed.
func (u *BarUpdater) Run(ctx context.Context) error {
	defaultStart, err := time.Parse("2006-01-02", u.cfg.StartDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", u.cfg.StartDate, err)
	}
	if len(u.cfg.Symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}

	end, err := LatestFinishedTradingDay(u.calendar, u.now())
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}

	u.fetched.Store(0)
	u.failed.Store(0)
	runStart := time.Now()
	u.log.Info("starting bar update",
		"symbols", len(u.cfg.Symbols),
		"market", u.cfg.Market,
		"endDate", end.Format("2006-01-02"),
	)

	symCh := make(chan string, len(u.cfg.Symbols))
	for _, s := range u.cfg.Symbols {
		symCh <- strings.ToUpper(s)
	}
	close(symCh)

	var wg sync.WaitGroup
	workers := min(u.cfg.MaxWorkers, len(u.cfg.Symbols))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range symCh {
				if ctx.Err() != nil {
					return
				}
				n, err := u.updateSymbol(ctx, sym, defaultStart, end)
				if err != nil {
					u.failed.Add(1)
					u.log.Error("symbol update failed", "symbol", sym, "err", err)
					continue
				}
				u.fetched.Add(int64(n))
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	failed := u.failed.Load()
	u.log.Info("bar update complete",
		"bars", u.fetched.Load(),
		"failed", failed,
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)
	if int(failed) == len(u.cfg.Symbols) {
		return fmt.Errorf("all %d symbols failed", failed)
	}
	return nil
}

// updateSymbol fetches and stores the missing range for one symbol and
// returns the number of bars written.
func (u *BarUpdater) updateSymbol(ctx context.Context, symbol string, defaultStart, end time.Time) (int, error) {
	latest, err := u.sink.LatestTimestamp(ctx, symbol, u.cfg.Market)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("reading latest bar: %w", err)
	}
	r := gather.IncrementalRange(latest, defaultStart, end)
	if r.Empty() {
		u.log.Debug("up to date", "symbol", symbol, "latest", latest.Format("2006-01-02"))
		return 0, nil
	}

	var fetched []marketdata.Bar
	err = util.Retry(ctx, u.cfg.MaxAttempts, u.cfg.RetryDelay, func() error {
		if err := u.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		got, err := u.bars.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.OneDay,
			Adjustment: marketdata.All,
			Start:      r.Start,
			End:        r.End.AddDate(0, 0, 1), // exclusive
			Feed:       marketdata.Feed(u.cfg.Feed),
		})
		if err != nil {
			return err
		}
		fetched = got
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := convertBars(symbol, fetched)
	if len(bars) == 0 {
		return 0, nil
	}
	if err := u.sink.WriteBarsForMarket(bars, u.cfg.Market); err != nil {
		return 0, fmt.Errorf("writing bars: %w", err)
	}
	u.log.Info("symbol updated",
		"symbol", symbol,
		"bars", len(bars),
		"from", r.Start.Format("2006-01-02"),
		"to", r.End.Format("2006-01-02"),
	)
	return len(bars), nil
}

func convertBars(symbol string, in []marketdata.Bar) []domain.Bar {
	out := make([]domain.Bar, 0, len(in))
	for _, ab := range in {
		out = append(out, domain.Bar{
			Symbol:     symbol,
			Timestamp:  ab.Timestamp.UTC(),
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	return out
}
