package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"strategylab/internal/backtest"
	"strategylab/internal/domain"
	"strategylab/internal/optimize"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
)

var _ BacktestServer = (*BacktestService)(nil)

// RunRequest is the payload of BacktestService.Run. Dates are YYYY-MM-DD;
// zero values fall back to the service defaults.
type RunRequest struct {
	Strategy       string           `json:"strategy"`
	Symbol         string           `json:"symbol"`
	Market         string           `json:"market,omitempty"`
	Start          string           `json:"start,omitempty"`
	End            string           `json:"end,omitempty"`
	Params         domain.Params    `json:"params,omitempty"`
	InitialCapital float64          `json:"initial_capital,omitempty"`
	Fill           string           `json:"fill,omitempty"`
	FeeRate        *float64         `json:"fee_rate,omitempty"`
	Optimize       bool             `json:"optimize,omitempty"`
	Trials         int              `json:"trials,omitempty"`
	Workers        int              `json:"workers,omitempty"`
	Seed           uint64           `json:"seed,omitempty"`
	Bounds         []optimize.Bound `json:"bounds,omitempty"`
	Save           bool             `json:"save,omitempty"`
}

// StrategyInfo describes one registered strategy in ListStrategies.
type StrategyInfo struct {
	Name     string           `json:"name"`
	Defaults domain.Params    `json:"defaults"`
	Bounds   []optimize.Bound `json:"bounds"`
}

// Defaults fill the fields a RunRequest leaves empty.
type Defaults struct {
	Market         string
	InitialCapital float64
	FeeRate        float64
	Fill           string
	Search         optimize.Config
	Bounds         []optimize.Bound
}

// BacktestService serves backtests over gRPC.
type BacktestService struct {
	bt       *strategy.Backtester
	registry *strategy.Registry
	defaults Defaults
}

// NewBacktestService creates a BacktestService running requests through bt.
func NewBacktestService(bt *strategy.Backtester, registry *strategy.Registry, defaults Defaults) *BacktestService {
	return &BacktestService{
		bt:       bt,
		registry: registry,
		defaults: defaults,
	}
}

// Run decodes a RunRequest, executes the backtest and returns the report.
func (s *BacktestService) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var wire RunRequest
	if err := DecodeStruct(in, &wire); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	req, err := s.toRequest(wire)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	report, err := s.bt.Run(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}

	out, err := EncodeStruct(report)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding report: %v", err)
	}
	return out, nil
}

// ListStrategies returns {"strategies": [StrategyInfo...]} sorted by name.
func (s *BacktestService) ListStrategies(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	names := s.registry.List()
	infos := make([]StrategyInfo, 0, len(names))
	for _, name := range names {
		strat, _ := s.registry.Get(name)
		infos = append(infos, StrategyInfo{
			Name:     name,
			Defaults: strat.Defaults(),
			Bounds:   strat.Bounds(),
		})
	}
	out, err := EncodeStruct(map[string]any{"strategies": infos})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding strategies: %v", err)
	}
	return out, nil
}

func (s *BacktestService) toRequest(w RunRequest) (strategy.Request, error) {
	if w.Strategy == "" || w.Symbol == "" {
		return strategy.Request{}, fmt.Errorf("strategy and symbol are required")
	}
	start, err := parseDate(w.Start)
	if err != nil {
		return strategy.Request{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseDate(w.End)
	if err != nil {
		return strategy.Request{}, fmt.Errorf("end: %w", err)
	}

	fillName := w.Fill
	if fillName == "" {
		fillName = s.defaults.Fill
	}
	fill, err := backtest.ParseFill(fillName)
	if err != nil {
		return strategy.Request{}, err
	}

	req := strategy.Request{
		Strategy:       w.Strategy,
		Symbol:         w.Symbol,
		Market:         w.Market,
		Start:          start,
		End:            end,
		Params:         w.Params,
		InitialCapital: w.InitialCapital,
		Fill:           fill,
		FeeRate:        s.defaults.FeeRate,
		Optimize:       w.Optimize,
		Search:         s.defaults.Search,
		Bounds:         w.Bounds,
		Save:           w.Save,
	}
	if req.Market == "" {
		req.Market = s.defaults.Market
	}
	if req.InitialCapital == 0 {
		req.InitialCapital = s.defaults.InitialCapital
	}
	if w.FeeRate != nil {
		req.FeeRate = *w.FeeRate
	}
	if w.Trials > 0 {
		req.Search.Trials = w.Trials
	}
	if w.Workers > 0 {
		req.Search.Workers = w.Workers
	}
	if w.Seed != 0 {
		req.Search.Seed = w.Seed
	}
	if len(req.Bounds) == 0 {
		req.Bounds = s.defaults.Bounds
	}
	return req, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, strategy.ErrUnknownStrategy), errors.Is(err, store.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, strategy.ErrInvalidParams),
		errors.Is(err, optimize.ErrInvalidBounds),
		errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, backtest.ErrInvalidCapital),
		errors.Is(err, backtest.ErrInvalidFeeRate):
		code = codes.InvalidArgument
	case errors.Is(err, backtest.ErrEmptyInput),
		errors.Is(err, backtest.ErrDataMismatch),
		errors.Is(err, optimize.ErrNoViableTrial):
		code = codes.FailedPrecondition
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// EncodeStruct converts v to a Struct through its JSON form.
func EncodeStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeStruct fills v from the JSON form of s.
func DecodeStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
