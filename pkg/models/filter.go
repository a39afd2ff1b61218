package models

import "time"

// TimeRange is an inclusive timestamp range.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ts falls within the range, inclusive of both
// endpoints.
func (r TimeRange) Contains(ts time.Time) bool {
	return !ts.Before(r.Start) && !ts.After(r.End)
}

// LogFilter narrows a log entry query. All set fields are combined with
// AND. Results are always ordered newest-first; Limit caps the result
// count when positive.
type LogFilter struct {
	SessionID    string
	FunctionName string
	Kind         EventKind
	TimeRange    *TimeRange
	Limit        int
}

// MetricsFilter narrows a performance metrics query.
type MetricsFilter struct {
	FunctionName string
	TimeRange    *TimeRange
	Limit        int
}
