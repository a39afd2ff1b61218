// Package models contains the shared data model for the execution
// monitoring system: log entries, performance metrics, query filters,
// and the persisted configuration.
package models

import "time"

// EventKind identifies which lifecycle event of an invocation a LogEntry
// records.
type EventKind string

const (
	KindStart    EventKind = "start"
	KindComplete EventKind = "complete"
	KindError    EventKind = "error"
)

// LogEntry is one record per lifecycle event of one instrumented
// invocation. The session ID correlates the start entry with its terminal
// (complete or error) entry. Entries are immutable once constructed and
// persisted append-only.
type LogEntry struct {
	Timestamp    time.Time      `json:"timestamp"`
	SessionID    string         `json:"session_id"`
	FunctionName string         `json:"function_name"`
	Kind         EventKind      `json:"event_type"`
	Duration     *float64       `json:"duration,omitempty"` // seconds, set on complete/error
	Parameters   map[string]any `json:"parameters,omitempty"`
	ResultSummary string        `json:"result_summary,omitempty"`
	ErrorDetails string         `json:"error_details,omitempty"`
	MemoryUsage  *int64         `json:"memory_usage,omitempty"` // bytes
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// PerformanceMetrics is one record per completed or failed timed
// invocation of a performance-tracked function.
type PerformanceMetrics struct {
	Timestamp     time.Time `json:"timestamp"`
	FunctionName  string    `json:"function_name"`
	ExecutionTime float64   `json:"execution_time"` // seconds
	MemoryPeak    int64     `json:"memory_peak"`    // bytes, max of pre/post RSS
	CPUUsage      float64   `json:"cpu_usage"`      // percent
	APICallCount  int       `json:"api_calls_count"`
	DBQueryCount  int       `json:"db_queries_count"`
	SuccessRate   float64   `json:"success_rate"` // 1.0 on success, 0.0 on failure
	SessionID     string    `json:"session_id"`
}
