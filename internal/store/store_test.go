package store

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arakida/execmon/pkg/models"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "monitoring.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func floatPtr(f float64) *float64 { return &f }

func TestInsertAndQueryLogEntries(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	entries := []models.LogEntry{
		{
			Timestamp:    now,
			SessionID:    "aaaa1111",
			FunctionName: "scoring.fetch_clips",
			Kind:         models.KindStart,
			Parameters:   map[string]any{"args_count": 2},
		},
		{
			Timestamp:     now.Add(time.Second),
			SessionID:     "aaaa1111",
			FunctionName:  "scoring.fetch_clips",
			Kind:          models.KindComplete,
			Duration:      floatPtr(1.0),
			ResultSummary: "42 clips",
		},
		{
			Timestamp:    now.Add(2 * time.Second),
			SessionID:    "bbbb2222",
			FunctionName: "scoring.rank_clips",
			Kind:         models.KindError,
			Duration:     floatPtr(0.2),
			ErrorDetails: "bad input",
		},
	}
	for _, e := range entries {
		if err := s.InsertLogEntry(e); err != nil {
			t.Fatalf("inserting entry: %v", err)
		}
	}

	// Session filter returns only that session's entries, newest-first.
	got, err := s.QueryLogEntries(models.LogFilter{SessionID: "aaaa1111"})
	if err != nil {
		t.Fatalf("querying by session: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for session, got %d", len(got))
	}
	if got[0].Kind != models.KindComplete || got[1].Kind != models.KindStart {
		t.Errorf("entries not newest-first: %v, %v", got[0].Kind, got[1].Kind)
	}
	if got[0].ResultSummary != "42 clips" {
		t.Errorf("result summary = %q", got[0].ResultSummary)
	}
	if got[0].Duration == nil || *got[0].Duration != 1.0 {
		t.Errorf("duration not round-tripped: %v", got[0].Duration)
	}
	if got[1].Parameters["args_count"] != float64(2) {
		t.Errorf("parameters not round-tripped: %v", got[1].Parameters)
	}

	// Kind filter combined with function name.
	got, err = s.QueryLogEntries(models.LogFilter{
		FunctionName: "scoring.rank_clips",
		Kind:         models.KindError,
	})
	if err != nil {
		t.Fatalf("querying by kind: %v", err)
	}
	if len(got) != 1 || got[0].ErrorDetails != "bad input" {
		t.Fatalf("unexpected error entries: %+v", got)
	}
}

func TestQueryLogEntries_TimeRangeAndLimit(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		err := s.InsertLogEntry(models.LogEntry{
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			SessionID:    "cccc3333",
			FunctionName: "scoring.score_clip",
			Kind:         models.KindStart,
		})
		if err != nil {
			t.Fatalf("inserting entry %d: %v", i, err)
		}
	}

	got, err := s.QueryLogEntries(models.LogFilter{
		TimeRange: &models.TimeRange{
			Start: base.Add(2 * time.Minute),
			End:   base.Add(6 * time.Minute),
		},
	})
	if err != nil {
		t.Fatalf("querying time range: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 entries in range (inclusive), got %d", len(got))
	}
	if !got[0].Timestamp.Equal(base.Add(6 * time.Minute)) {
		t.Errorf("newest entry first, got %v", got[0].Timestamp)
	}

	got, err = s.QueryLogEntries(models.LogFilter{Limit: 3})
	if err != nil {
		t.Fatalf("querying with limit: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("limit not applied, got %d entries", len(got))
	}
}

func TestInsertAndQueryPerformanceMetrics(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	metrics := []models.PerformanceMetrics{
		{Timestamp: now, FunctionName: "scoring.score_clip", ExecutionTime: 0.5, MemoryPeak: 1 << 20, CPUUsage: 12.5, SuccessRate: 1.0, SessionID: "dddd4444"},
		{Timestamp: now.Add(time.Second), FunctionName: "scoring.score_clip", ExecutionTime: 0.7, MemoryPeak: 2 << 20, SuccessRate: 0.0},
		{Timestamp: now.Add(2 * time.Second), FunctionName: "scoring.dedupe", ExecutionTime: 1.1, MemoryPeak: 3 << 20, SuccessRate: 1.0},
	}
	for _, m := range metrics {
		if err := s.InsertPerformanceMetrics(m); err != nil {
			t.Fatalf("inserting metrics: %v", err)
		}
	}

	got, err := s.QueryPerformanceMetrics(models.MetricsFilter{FunctionName: "scoring.score_clip"})
	if err != nil {
		t.Fatalf("querying metrics: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 metrics rows, got %d", len(got))
	}
	if got[0].SuccessRate != 0.0 || got[1].SuccessRate != 1.0 {
		t.Errorf("metrics not newest-first: %v, %v", got[0].SuccessRate, got[1].SuccessRate)
	}
	if got[1].CPUUsage != 12.5 {
		t.Errorf("cpu usage not round-tripped: %v", got[1].CPUUsage)
	}
	if got[1].SessionID != "dddd4444" {
		t.Errorf("session id not round-tripped: %q", got[1].SessionID)
	}
}

func TestCleanupOldData(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	old := now.Add(-100 * 24 * time.Hour)
	veryOld := now.Add(-400 * 24 * time.Hour)

	for _, ts := range []time.Time{veryOld, old, now} {
		if err := s.InsertLogEntry(models.LogEntry{
			Timestamp: ts, SessionID: "eeee5555", FunctionName: "f", Kind: models.KindStart,
		}); err != nil {
			t.Fatalf("inserting entry: %v", err)
		}
		if err := s.InsertPerformanceMetrics(models.PerformanceMetrics{
			Timestamp: ts, FunctionName: "f", ExecutionTime: 0.1, MemoryPeak: 1, SuccessRate: 1.0,
		}); err != nil {
			t.Fatalf("inserting metrics: %v", err)
		}
	}

	// 90-day log retention, 365-day summary retention.
	if err := s.CleanupOldData(90*24*time.Hour, 365*24*time.Hour); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.LogEntryCount != 1 {
		t.Errorf("expected 1 surviving log entry, got %d", stats.LogEntryCount)
	}
	if stats.MetricsCount != 2 {
		t.Errorf("expected 2 surviving metrics rows, got %d", stats.MetricsCount)
	}

	// Idempotent: a second pass removes nothing further.
	if err := s.CleanupOldData(90*24*time.Hour, 365*24*time.Hour); err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
	stats2, err := s.Stats()
	if err != nil {
		t.Fatalf("stats after second cleanup: %v", err)
	}
	if stats2.LogEntryCount != stats.LogEntryCount || stats2.MetricsCount != stats.MetricsCount {
		t.Errorf("second cleanup removed rows: %+v vs %+v", stats2, stats)
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("stats on empty store: %v", err)
	}
	if stats.LogEntryCount != 0 || stats.MetricsCount != 0 {
		t.Fatalf("empty store reports rows: %+v", stats)
	}
	if stats.DatabasePath == "" {
		t.Error("stats missing database path")
	}

	if err := s.InsertLogEntry(models.LogEntry{
		Timestamp: time.Now().UTC(), SessionID: "ffff6666", FunctionName: "f", Kind: models.KindStart,
	}); err != nil {
		t.Fatalf("inserting entry: %v", err)
	}

	stats, err = s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.LogEntryCount != 1 {
		t.Errorf("log entry count = %d, want 1", stats.LogEntryCount)
	}
	if stats.DatabaseSize <= 0 {
		t.Errorf("database size = %d, want > 0", stats.DatabaseSize)
	}
}
