// Package optimize runs a bounded random search over integer strategy
// parameters and returns the highest-scoring parameter set.
package optimize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"strategylab/internal/domain"
)

// DefaultTrials is the trial budget used when Config.Trials is zero.
const DefaultTrials = 30

// Bound is a closed integer range [Min, Max] for one named parameter.
type Bound struct {
	Name string `yaml:"name" json:"name"`
	Min  int    `yaml:"min" json:"min"`
	Max  int    `yaml:"max" json:"max"`
}

// Objective scores one parameter set. Higher is better. Each call must
// build its own simulation state.
type Objective func(ctx context.Context, params domain.Params) (float64, error)

// Config controls the search budget and sampling.
type Config struct {
	// Trials is the number of parameter sets evaluated (default 30).
	Trials int
	// Workers bounds concurrent evaluations (default GOMAXPROCS).
	Workers int
	// Seed makes the sampled parameter sets reproducible.
	Seed uint64
}

// Trial is the outcome of evaluating one parameter set.
type Trial struct {
	Index    int
	Params   domain.Params
	Score    float64
	Err      error
	Duration time.Duration
}

// Failed reports whether the trial produced no usable score.
func (t Trial) Failed() bool { return t.Err != nil }

type trialJSON struct {
	Index      int           `json:"index"`
	Params     domain.Params `json:"params"`
	Score      *float64      `json:"score"`
	Error      string        `json:"error,omitempty"`
	DurationMS float64       `json:"duration_ms"`
}

// MarshalJSON encodes a failed trial with a null score and its error text,
// since -Inf has no JSON representation.
func (t Trial) MarshalJSON() ([]byte, error) {
	out := trialJSON{
		Index:      t.Index,
		Params:     t.Params,
		DurationMS: float64(t.Duration) / float64(time.Millisecond),
	}
	if t.Err != nil {
		out.Error = t.Err.Error()
	} else if !math.IsInf(t.Score, 0) {
		score := t.Score
		out.Score = &score
	}
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON. A null score decodes as -Inf and the
// error text, if any, becomes an opaque error.
func (t *Trial) UnmarshalJSON(data []byte) error {
	var in trialJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = Trial{
		Index:    in.Index,
		Params:   in.Params,
		Score:    math.Inf(-1),
		Duration: time.Duration(in.DurationMS * float64(time.Millisecond)),
	}
	if in.Score != nil {
		t.Score = *in.Score
	}
	if in.Error != "" {
		t.Err = errors.New(in.Error)
	}
	return nil
}

// Result is the outcome of a search. Trials is ordered by trial index and
// only holds trials that were started.
type Result struct {
	Best   Trial   `json:"best"`
	Trials []Trial `json:"trials"`
}

// Search evaluates sampled parameter sets against an Objective.
type Search struct {
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger
}

// NewSearch creates a Search. metrics may be nil.
func NewSearch(cfg Config, metrics *Metrics) *Search {
	if cfg.Trials <= 0 {
		cfg.Trials = DefaultTrials
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Workers > cfg.Trials {
		cfg.Workers = cfg.Trials
	}
	return &Search{
		cfg:     cfg,
		metrics: metrics,
		logger:  slog.Default().With("component", "optimize"),
	}
}

// Run samples cfg.Trials parameter sets within bounds, evaluates them with
// at most cfg.Workers concurrent calls to objective and returns the best.
// Ties go to the lowest trial index. Cancelling ctx stops dispatching new
// trials; trials already running are allowed to finish.
func (s *Search) Run(ctx context.Context, objective Objective, bounds []Bound) (*Result, error) {
	if err := ValidateBounds(bounds); err != nil {
		return nil, err
	}

	candidates := Sample(bounds, s.cfg.Trials, s.cfg.Seed)
	trials := make([]Trial, len(candidates))
	started := make([]bool, len(candidates))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				trials[i] = s.evaluate(ctx, objective, i, candidates[i])
			}
		}()
	}

dispatch:
	for i := range candidates {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
			started[i] = true
		}
	}
	close(jobs)
	wg.Wait()

	res := &Result{Best: Trial{Index: -1, Score: math.Inf(-1)}}
	for i, t := range trials {
		if !started[i] {
			continue
		}
		res.Trials = append(res.Trials, t)
		if t.Failed() {
			continue
		}
		if res.Best.Index < 0 || t.Score > res.Best.Score {
			res.Best = t
		}
	}

	if res.Best.Index < 0 {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%w: %w", ErrNoViableTrial, err)
		}
		return res, fmt.Errorf("%w: %d trials failed", ErrNoViableTrial, len(res.Trials))
	}

	if s.metrics != nil {
		s.metrics.BestScore.Set(res.Best.Score)
	}
	s.logger.Info("search complete",
		"trials", len(res.Trials),
		"best_index", res.Best.Index,
		"best_score", res.Best.Score,
		"best_params", res.Best.Params,
	)
	return res, nil
}

// evaluate runs one trial, converting errors, panics and NaN scores into a
// failed trial scored -Inf.
func (s *Search) evaluate(ctx context.Context, objective Objective, idx int, params domain.Params) (t Trial) {
	start := time.Now()
	t = Trial{Index: idx, Params: params}

	defer func() {
		if r := recover(); r != nil {
			t.Err = fmt.Errorf("%w: panic: %v", ErrStrategyEvaluation, r)
		}
		if t.Err != nil {
			t.Score = math.Inf(-1)
			s.logger.Debug("trial failed", "index", idx, "params", params, "error", t.Err)
		}
		t.Duration = time.Since(start)
		if s.metrics != nil {
			s.metrics.observe(t)
		}
	}()

	score, err := objective(ctx, params.Clone())
	switch {
	case err != nil:
		t.Err = fmt.Errorf("%w: %w", ErrStrategyEvaluation, err)
	case math.IsNaN(score):
		t.Err = fmt.Errorf("%w: score is NaN", ErrStrategyEvaluation)
	default:
		t.Score = score
	}
	return t
}

// ValidateBounds checks that bounds is non-empty and every bound is a named,
// non-empty closed range with a unique name whose size fits in an int.
func ValidateBounds(bounds []Bound) error {
	if len(bounds) == 0 {
		return fmt.Errorf("%w: no bounds", ErrInvalidBounds)
	}
	seen := make(map[string]bool, len(bounds))
	for _, b := range bounds {
		if b.Name == "" {
			return fmt.Errorf("%w: bound without name", ErrInvalidBounds)
		}
		if seen[b.Name] {
			return fmt.Errorf("%w: duplicate bound %q", ErrInvalidBounds, b.Name)
		}
		seen[b.Name] = true
		if b.Min > b.Max {
			return fmt.Errorf("%w: %s min %d > max %d", ErrInvalidBounds, b.Name, b.Min, b.Max)
		}
		if tooWide(b) {
			return fmt.Errorf("%w: %s range [%d, %d] is too wide", ErrInvalidBounds, b.Name, b.Min, b.Max)
		}
	}
	return nil
}

// tooWide reports whether Max-Min+1 overflows an int. It assumes Min <= Max.
func tooWide(b Bound) bool {
	if b.Min < 0 {
		return b.Max >= math.MaxInt+b.Min
	}
	return b.Max-b.Min == math.MaxInt
}

// Sample draws n parameter sets uniformly within bounds from a PCG source
// seeded with seed. The same arguments always yield the same sets.
func Sample(bounds []Bound, n int, seed uint64) []domain.Params {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]domain.Params, n)
	for i := range out {
		p := make(domain.Params, len(bounds))
		for _, b := range bounds {
			p[b.Name] = b.Min + rng.IntN(b.Max-b.Min+1)
		}
		out[i] = p
	}
	return out
}
