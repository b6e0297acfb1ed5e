// Package gather defines the data gathering processes that keep the bar store
// current.
package gather

import (
	"context"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass and returns when it is complete or ctx
	// is cancelled.
	Run(ctx context.Context) error
}

// DateRange represents an inclusive range of trading days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the range covers no days.
func (r DateRange) Empty() bool {
	return r.End.Before(r.Start)
}

// IncrementalRange returns the range still missing from a store whose newest
// bar is at latest. A zero latest means nothing is stored yet and the range
// begins at defaultStart; otherwise it begins on the day after latest. Both
// ends are truncated to UTC midnight.
func IncrementalRange(latest, defaultStart, end time.Time) DateRange {
	start := defaultStart
	if !latest.IsZero() {
		start = day(latest).AddDate(0, 0, 1)
	}
	return DateRange{Start: day(start), End: day(end)}
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
