package optimize

import "errors"

var (
	// ErrInvalidBounds is returned when no bounds are given, a bound has no
	// name, a name repeats, or Min > Max.
	ErrInvalidBounds = errors.New("invalid search bounds")

	// ErrStrategyEvaluation wraps the cause of a failed trial in Trial.Err.
	// A failed trial scores -Inf and never aborts the search.
	ErrStrategyEvaluation = errors.New("strategy evaluation failed")

	// ErrNoViableTrial is returned when every evaluated trial failed or the
	// context was cancelled before any trial completed.
	ErrNoViableTrial = errors.New("no viable trial")
)
