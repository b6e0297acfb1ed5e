package gather

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIncrementalRangeFresh(t *testing.T) {
	r := IncrementalRange(time.Time{}, date(2015, 1, 1), date(2024, 3, 8))
	if !r.Start.Equal(date(2015, 1, 1)) {
		t.Errorf("Start = %v, want 2015-01-01", r.Start)
	}
	if !r.End.Equal(date(2024, 3, 8)) {
		t.Errorf("End = %v, want 2024-03-08", r.End)
	}
	if r.Empty() {
		t.Error("fresh range should not be empty")
	}
}

func TestIncrementalRangeResumes(t *testing.T) {
	latest := time.Date(2024, 3, 6, 5, 0, 0, 0, time.UTC)
	r := IncrementalRange(latest, date(2015, 1, 1), date(2024, 3, 8))
	if !r.Start.Equal(date(2024, 3, 7)) {
		t.Errorf("Start = %v, want 2024-03-07", r.Start)
	}
}

func TestIncrementalRangeUpToDate(t *testing.T) {
	r := IncrementalRange(date(2024, 3, 8), date(2015, 1, 1), date(2024, 3, 8))
	if !r.Empty() {
		t.Errorf("range %v..%v should be empty", r.Start, r.End)
	}
}
