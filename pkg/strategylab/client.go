// Package strategylab is a Go client for the strategylab-server gRPC API.
package strategylab

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"strategylab/internal/api"
	"strategylab/internal/strategy"
)

// RunRequest is the backtest request accepted by Run.
type RunRequest = api.RunRequest

// StrategyInfo describes one strategy known to the server.
type StrategyInfo = api.StrategyInfo

// Report is a completed backtest.
type Report = strategy.Report

// Client talks to a strategylab-server.
type Client struct {
	addr string
	conn *grpc.ClientConn
}

// NewClient creates a client for addr. Without options the connection uses
// insecure transport credentials. No I/O happens until the first call.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{addr: addr, conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run executes a backtest on the server.
func (c *Client) Run(ctx context.Context, req RunRequest) (*Report, error) {
	in, err := api.EncodeStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.RunMethod, in, out); err != nil {
		return nil, err
	}

	var report Report
	if err := api.DecodeStruct(out, &report); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &report, nil
}

// ListStrategies returns the strategies registered on the server.
func (c *Client) ListStrategies(ctx context.Context) ([]StrategyInfo, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.ListStrategiesMethod, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}

	var resp struct {
		Strategies []StrategyInfo `json:"strategies"`
	}
	if err := api.DecodeStruct(out, &resp); err != nil {
		return nil, fmt.Errorf("decoding strategies: %w", err)
	}
	return resp.Strategies, nil
}
