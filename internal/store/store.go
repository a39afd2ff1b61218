// Package store implements the durable persistence layer for log entries
// and performance metrics, backed by SQLite. Both tables are append-only;
// rows age out through retention cleanup.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/arakida/execmon/pkg/models"
)

// timeLayout is a fixed-width UTC timestamp format. Fixed width keeps
// string comparison in SQL consistent with chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Stats reports the storage footprint for health/status output.
type Stats struct {
	LogEntryCount    int64  `json:"log_entries_count" yaml:"log_entries_count"`
	MetricsCount     int64  `json:"performance_metrics_count" yaml:"performance_metrics_count"`
	DatabaseSize     int64  `json:"database_size_bytes" yaml:"database_size_bytes"`
	DatabasePath     string `json:"database_path" yaml:"database_path"`
}

// Store is the durable, queryable storage for monitoring records.
type Store interface {
	InsertLogEntry(entry models.LogEntry) error
	InsertPerformanceMetrics(metrics models.PerformanceMetrics) error
	QueryLogEntries(filter models.LogFilter) ([]models.LogEntry, error)
	QueryPerformanceMetrics(filter models.MetricsFilter) ([]models.PerformanceMetrics, error)

	// CleanupOldData deletes log entries older than logRetention and
	// metrics older than summaryRetention. The two deletes are not
	// transactional with each other; a retry is idempotent.
	CleanupOldData(logRetention, summaryRetention time.Duration) error

	// Stats returns row counts and the database file size. It returns an
	// error instead of partial results if collection fails.
	Stats() (Stats, error)

	Close() error
}

type sqliteStore struct {
	path   string
	db     *sql.DB
	logger *zap.Logger

	// mu serializes mutating statements so concurrent instrumented calls
	// cannot interleave writes. Reads go straight to the pool.
	mu sync.Mutex
}

// Open opens (creating if needed) the SQLite database at path and
// initializes the schema.
func Open(path string, logger *zap.Logger) (Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite tolerates one writer at a time; the store's own mutex
	// already serializes writes, so a single connection avoids
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	s := &sqliteStore{path: path, db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	logger.Info("monitoring database ready", zap.String("path", path))
	return s, nil
}

func (s *sqliteStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS log_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			session_id TEXT NOT NULL,
			function_name TEXT NOT NULL,
			event_type TEXT NOT NULL,
			duration REAL,
			parameters TEXT,
			result_summary TEXT,
			error_details TEXT,
			memory_usage INTEGER,
			metadata TEXT,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS performance_metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			function_name TEXT NOT NULL,
			execution_time REAL NOT NULL,
			memory_peak INTEGER NOT NULL,
			cpu_usage REAL DEFAULT 0.0,
			api_calls_count INTEGER DEFAULT 0,
			db_queries_count INTEGER DEFAULT 0,
			success_rate REAL DEFAULT 1.0,
			session_id TEXT,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_log_timestamp ON log_entries(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_log_session ON log_entries(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_log_function ON log_entries(function_name)`,
		`CREATE INDEX IF NOT EXISTS idx_perf_timestamp ON performance_metrics(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_perf_function ON performance_metrics(function_name)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) InsertLogEntry(entry models.LogEntry) error {
	params, err := marshalMap(entry.Parameters)
	if err != nil {
		return storageErr("insert log entry", err)
	}
	meta, err := marshalMap(entry.Metadata)
	if err != nil {
		return storageErr("insert log entry", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO log_entries
		(timestamp, session_id, function_name, event_type, duration,
		 parameters, result_summary, error_details, memory_usage, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.UTC().Format(timeLayout),
		entry.SessionID,
		entry.FunctionName,
		string(entry.Kind),
		nullFloat(entry.Duration),
		params,
		nullString(entry.ResultSummary),
		nullString(entry.ErrorDetails),
		nullInt(entry.MemoryUsage),
		meta,
	)
	return storageErr("insert log entry", err)
}

func (s *sqliteStore) InsertPerformanceMetrics(metrics models.PerformanceMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO performance_metrics
		(timestamp, function_name, execution_time, memory_peak,
		 cpu_usage, api_calls_count, db_queries_count, success_rate, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		metrics.Timestamp.UTC().Format(timeLayout),
		metrics.FunctionName,
		metrics.ExecutionTime,
		metrics.MemoryPeak,
		metrics.CPUUsage,
		metrics.APICallCount,
		metrics.DBQueryCount,
		metrics.SuccessRate,
		metrics.SessionID,
	)
	return storageErr("insert performance metrics", err)
}

func (s *sqliteStore) QueryLogEntries(filter models.LogFilter) ([]models.LogEntry, error) {
	query := "SELECT timestamp, session_id, function_name, event_type, duration, parameters, result_summary, error_details, memory_usage, metadata FROM log_entries WHERE 1=1"
	var args []any

	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.FunctionName != "" {
		query += " AND function_name = ?"
		args = append(args, filter.FunctionName)
	}
	if filter.Kind != "" {
		query += " AND event_type = ?"
		args = append(args, string(filter.Kind))
	}
	if filter.TimeRange != nil {
		query += " AND timestamp BETWEEN ? AND ?"
		args = append(args,
			filter.TimeRange.Start.UTC().Format(timeLayout),
			filter.TimeRange.End.UTC().Format(timeLayout),
		)
	}

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("query log entries", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var (
			entry     models.LogEntry
			ts        string
			kind      string
			duration  sql.NullFloat64
			params    sql.NullString
			result    sql.NullString
			errDetail sql.NullString
			mem       sql.NullInt64
			meta      sql.NullString
		)
		if err := rows.Scan(&ts, &entry.SessionID, &entry.FunctionName, &kind,
			&duration, &params, &result, &errDetail, &mem, &meta); err != nil {
			return nil, storageErr("query log entries", err)
		}

		entry.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, storageErr("query log entries", fmt.Errorf("parsing timestamp %q: %w", ts, err))
		}
		entry.Kind = models.EventKind(kind)
		if duration.Valid {
			d := duration.Float64
			entry.Duration = &d
		}
		if mem.Valid {
			m := mem.Int64
			entry.MemoryUsage = &m
		}
		entry.ResultSummary = result.String
		entry.ErrorDetails = errDetail.String
		if entry.Parameters, err = unmarshalMap(params); err != nil {
			return nil, storageErr("query log entries", err)
		}
		if entry.Metadata, err = unmarshalMap(meta); err != nil {
			return nil, storageErr("query log entries", err)
		}

		entries = append(entries, entry)
	}
	return entries, storageErr("query log entries", rows.Err())
}

func (s *sqliteStore) QueryPerformanceMetrics(filter models.MetricsFilter) ([]models.PerformanceMetrics, error) {
	query := "SELECT timestamp, function_name, execution_time, memory_peak, cpu_usage, api_calls_count, db_queries_count, success_rate, session_id FROM performance_metrics WHERE 1=1"
	var args []any

	if filter.TimeRange != nil {
		query += " AND timestamp BETWEEN ? AND ?"
		args = append(args,
			filter.TimeRange.Start.UTC().Format(timeLayout),
			filter.TimeRange.End.UTC().Format(timeLayout),
		)
	}
	if filter.FunctionName != "" {
		query += " AND function_name = ?"
		args = append(args, filter.FunctionName)
	}

	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("query performance metrics", err)
	}
	defer rows.Close()

	var results []models.PerformanceMetrics
	for rows.Next() {
		var (
			m         models.PerformanceMetrics
			ts        string
			sessionID sql.NullString
		)
		if err := rows.Scan(&ts, &m.FunctionName, &m.ExecutionTime, &m.MemoryPeak,
			&m.CPUUsage, &m.APICallCount, &m.DBQueryCount, &m.SuccessRate, &sessionID); err != nil {
			return nil, storageErr("query performance metrics", err)
		}
		m.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, storageErr("query performance metrics", fmt.Errorf("parsing timestamp %q: %w", ts, err))
		}
		m.SessionID = sessionID.String
		results = append(results, m)
	}
	return results, storageErr("query performance metrics", rows.Err())
}

func (s *sqliteStore) CleanupOldData(logRetention, summaryRetention time.Duration) error {
	now := time.Now().UTC()
	logCutoff := now.Add(-logRetention).Format(timeLayout)
	summaryCutoff := now.Add(-summaryRetention).Format(timeLayout)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM log_entries WHERE timestamp < ?", logCutoff)
	if err != nil {
		return storageErr("cleanup log entries", err)
	}
	logsDeleted, _ := res.RowsAffected()

	res, err = s.db.Exec("DELETE FROM performance_metrics WHERE timestamp < ?", summaryCutoff)
	if err != nil {
		return storageErr("cleanup performance metrics", err)
	}
	metricsDeleted, _ := res.RowsAffected()

	s.logger.Info("old data cleanup completed",
		zap.Int64("log_entries_deleted", logsDeleted),
		zap.Int64("metrics_deleted", metricsDeleted),
	)
	return nil
}

func (s *sqliteStore) Stats() (Stats, error) {
	stats := Stats{DatabasePath: s.path}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM log_entries").Scan(&stats.LogEntryCount); err != nil {
		return Stats{}, storageErr("stats", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM performance_metrics").Scan(&stats.MetricsCount); err != nil {
		return Stats{}, storageErr("stats", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.DatabaseSize = info.Size()
	}
	return stats, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// marshalMap renders a metadata/parameter map as JSON text, or NULL when
// empty, matching the persisted schema contract.
func marshalMap(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling map column: %w", err)
	}
	return string(data), nil
}

func unmarshalMap(col sql.NullString) (map[string]any, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(col.String), &m); err != nil {
		return nil, fmt.Errorf("unmarshaling map column: %w", err)
	}
	return m, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}
