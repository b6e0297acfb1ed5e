package optimize

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/domain"
)

var windowBounds = []Bound{
	{Name: "short_window", Min: 10, Max: 50},
	{Name: "long_window", Min: 50, Max: 200},
}

// peak scores highest at short=30, long=100.
func peak(_ context.Context, p domain.Params) (float64, error) {
	ds := float64(p["short_window"] - 30)
	dl := float64(p["long_window"] - 100)
	return -(ds*ds + dl*dl), nil
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name    string
		bounds  []Bound
		wantErr bool
	}{
		{"valid", windowBounds, false},
		{"single point", []Bound{{Name: "x", Min: 5, Max: 5}}, false},
		{"empty", nil, true},
		{"no name", []Bound{{Min: 1, Max: 2}}, true},
		{"inverted", []Bound{{Name: "x", Min: 3, Max: 2}}, true},
		{"duplicate", []Bound{{Name: "x", Min: 1, Max: 2}, {Name: "x", Min: 1, Max: 2}}, true},
		{"full int range", []Bound{{Name: "x", Min: math.MinInt, Max: math.MaxInt}}, true},
		{"zero to max int", []Bound{{Name: "x", Min: 0, Max: math.MaxInt}}, true},
		{"negative span overflow", []Bound{{Name: "x", Min: -1, Max: math.MaxInt - 1}}, true},
		{"widest valid", []Bound{{Name: "x", Min: 1, Max: math.MaxInt}}, false},
		{"widest valid negative", []Bound{{Name: "x", Min: -1, Max: math.MaxInt - 2}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBounds(tt.bounds)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBounds)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSampleWithinBoundsAndDeterministic(t *testing.T) {
	a := Sample(windowBounds, 200, 7)
	b := Sample(windowBounds, 200, 7)
	assert.Equal(t, a, b)

	for i, p := range a {
		for _, bd := range windowBounds {
			v := p[bd.Name]
			assert.True(t, v >= bd.Min && v <= bd.Max, "trial %d: %s=%d outside [%d,%d]", i, bd.Name, v, bd.Min, bd.Max)
		}
	}

	c := Sample(windowBounds, 200, 8)
	assert.NotEqual(t, a, c)
}

func TestRunReturnsBestWithinBounds(t *testing.T) {
	s := NewSearch(Config{Trials: 50, Workers: 4, Seed: 1}, nil)
	res, err := s.Run(context.Background(), peak, windowBounds)
	require.NoError(t, err)
	require.Len(t, res.Trials, 50)

	best := res.Best
	for _, bd := range windowBounds {
		v := best.Params[bd.Name]
		assert.GreaterOrEqual(t, v, bd.Min)
		assert.LessOrEqual(t, v, bd.Max)
	}
	for _, tr := range res.Trials {
		assert.LessOrEqual(t, tr.Score, best.Score)
	}

	// Re-running the objective with the returned params reproduces the score.
	again, err := peak(context.Background(), best.Params)
	require.NoError(t, err)
	assert.InDelta(t, best.Score, again, 1e-9)
}

func TestRunDefaultsTrialBudget(t *testing.T) {
	s := NewSearch(Config{Seed: 3}, nil)
	res, err := s.Run(context.Background(), peak, windowBounds)
	require.NoError(t, err)
	assert.Len(t, res.Trials, DefaultTrials)
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	one, err := NewSearch(Config{Trials: 40, Workers: 1, Seed: 99}, nil).Run(context.Background(), peak, windowBounds)
	require.NoError(t, err)
	many, err := NewSearch(Config{Trials: 40, Workers: 8, Seed: 99}, nil).Run(context.Background(), peak, windowBounds)
	require.NoError(t, err)

	assert.Equal(t, one.Best.Index, many.Best.Index)
	assert.Equal(t, one.Best.Params, many.Best.Params)
	assert.Equal(t, one.Best.Score, many.Best.Score)
}

func TestRunTiesGoToLowestIndex(t *testing.T) {
	flat := func(context.Context, domain.Params) (float64, error) { return 1, nil }
	res, err := NewSearch(Config{Trials: 20, Workers: 5}, nil).Run(context.Background(), flat, windowBounds)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Best.Index)
}

func TestRunToleratesFailures(t *testing.T) {
	objective := func(ctx context.Context, p domain.Params) (float64, error) {
		switch p["short_window"] % 3 {
		case 0:
			return 0, errors.New("window too short")
		case 1:
			panic("indicator blew up")
		}
		return peak(ctx, p)
	}

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	res, err := NewSearch(Config{Trials: 60, Workers: 4, Seed: 5}, m).Run(context.Background(), objective, windowBounds)
	require.NoError(t, err)

	var failed int
	for _, tr := range res.Trials {
		if tr.Failed() {
			failed++
			assert.ErrorIs(t, tr.Err, ErrStrategyEvaluation)
			assert.True(t, math.IsInf(tr.Score, -1))
		}
	}
	require.Positive(t, failed)
	assert.Equal(t, 2, res.Best.Params["short_window"]%3)

	assert.Equal(t, float64(failed), testutil.ToFloat64(m.TrialsTotal.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, float64(60-failed), testutil.ToFloat64(m.TrialsTotal.WithLabelValues(OutcomeOK)))
	assert.Equal(t, res.Best.Score, testutil.ToFloat64(m.BestScore))
}

func TestRunNaNScoreFails(t *testing.T) {
	nan := func(context.Context, domain.Params) (float64, error) { return math.NaN(), nil }
	res, err := NewSearch(Config{Trials: 3}, nil).Run(context.Background(), nan, windowBounds)
	assert.ErrorIs(t, err, ErrNoViableTrial)
	require.NotNil(t, res)
	assert.Len(t, res.Trials, 3)
}

func TestRunAllFail(t *testing.T) {
	fail := func(context.Context, domain.Params) (float64, error) { return 0, errors.New("boom") }
	res, err := NewSearch(Config{Trials: 10, Workers: 2}, nil).Run(context.Background(), fail, windowBounds)
	assert.ErrorIs(t, err, ErrNoViableTrial)
	require.NotNil(t, res)
	assert.Len(t, res.Trials, 10)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	objective := func(ctx context.Context, _ domain.Params) (float64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	_, err := NewSearch(Config{Trials: 10, Workers: 2}, nil).Run(ctx, objective, windowBounds)
	assert.ErrorIs(t, err, ErrNoViableTrial)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunInvalidBounds(t *testing.T) {
	_, err := NewSearch(Config{}, nil).Run(context.Background(), peak, []Bound{{Name: "x", Min: 9, Max: 1}})
	assert.ErrorIs(t, err, ErrInvalidBounds)
}

func TestTrialMarshalJSON(t *testing.T) {
	failed := Trial{Index: 2, Params: domain.Params{"x": 1}, Score: math.Inf(-1), Err: errors.New("bad")}
	data, err := json.Marshal(failed)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Nil(t, got["score"])
	assert.Equal(t, "bad", got["error"])

	ok := Trial{Index: 1, Score: 12.5}
	data, err = json.Marshal(ok)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 12.5, got["score"])
}

func TestTrialJSONRoundTrip(t *testing.T) {
	in := []Trial{
		{Index: 0, Params: domain.Params{"x": 3}, Score: 4.5, Duration: 2 * time.Millisecond},
		{Index: 1, Params: domain.Params{"x": 9}, Score: math.Inf(-1), Err: errors.New("boom")},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out []Trial
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 2)

	assert.Equal(t, 4.5, out[0].Score)
	assert.False(t, out[0].Failed())
	assert.Equal(t, 2*time.Millisecond, out[0].Duration)

	assert.True(t, out[1].Failed())
	assert.True(t, math.IsInf(out[1].Score, -1))
	assert.EqualError(t, out[1].Err, "boom")
	assert.Equal(t, domain.Params{"x": 9}, out[1].Params)
}

func TestSearchRejectsOverflowingBounds(t *testing.T) {
	s := NewSearch(Config{Trials: 3, Seed: 1}, nil)
	bounds := []Bound{{Name: "x", Min: math.MinInt, Max: math.MaxInt}}

	var res *Result
	var err error
	require.NotPanics(t, func() {
		res, err = s.Run(context.Background(), peak, bounds)
	})
	assert.ErrorIs(t, err, ErrInvalidBounds)
	assert.Nil(t, res)
}
