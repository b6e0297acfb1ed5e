// Package domain holds the value types shared by the backtesting core, the
// strategies that feed it, and the collaborators that load and report data.
package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Market identifies the exchange group a symbol trades on.
type Market string

const (
	MarketUS Market = "us"
	MarketIN Market = "in"
)

// Bar is one daily OHLCV row. A price series is a slice of bars ordered by
// Timestamp ascending with no duplicates.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Signal is a per-bar position directive produced by a strategy.
type Signal int8

const (
	SignalShort Signal = -1
	SignalHold  Signal = 0
	SignalLong  Signal = 1
)

// Valid reports whether s is one of the three defined directives.
func (s Signal) Valid() bool {
	return s >= SignalShort && s <= SignalLong
}

// String returns "short", "hold" or "long".
func (s Signal) String() string {
	switch s {
	case SignalShort:
		return "short"
	case SignalHold:
		return "hold"
	case SignalLong:
		return "long"
	default:
		return "invalid"
	}
}

// TradeSide is the direction of a simulated order.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Trade is one entry of a backtest trade ledger. ProfitLoss and
// CumulativeProfit stay zero until a later trade closes the position this
// trade opened; Closed is set at that point.
type Trade struct {
	Date             time.Time `json:"date"`
	Side             TradeSide `json:"side"`
	Price            float64   `json:"price"`
	Shares           int64     `json:"shares"`
	CapitalAfter     float64   `json:"capital_after"`
	ProfitLoss       float64   `json:"profit_loss"`
	CumulativeProfit float64   `json:"cumulative_profit"`
	Closed           bool      `json:"closed"`
}

// Params is a named set of integer strategy parameters, e.g.
// {"short_window": 30, "long_window": 100}.
type Params map[string]int

// Get returns the value stored under key, or def when absent.
func (p Params) Get(key string, def int) int {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Clone returns a shallow copy of p. A nil receiver yields an empty map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p with every key from override applied on top.
func (p Params) Merge(override Params) Params {
	out := p.Clone()
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseParams parses "key=value,key=value" into Params. Whitespace around
// keys and values is ignored; an empty string yields nil.
func ParseParams(s string) (Params, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	out := Params{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" {
			return nil, fmt.Errorf("param %q: want key=value", pair)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

// String formats p as sorted "key=value" pairs, the inverse of ParseParams.
func (p Params) String() string {
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		parts = append(parts, k+"="+strconv.Itoa(p[k]))
	}
	return strings.Join(parts, ",")
}
