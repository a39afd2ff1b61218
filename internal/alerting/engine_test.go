package alerting

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arakida/execmon/internal/bus"
	"github.com/arakida/execmon/internal/config"
	"github.com/arakida/execmon/internal/store"
	"github.com/arakida/execmon/pkg/models"
)

type fixture struct {
	st     store.Store
	cfgMgr config.Manager
}

func newFixture(t *testing.T, rules []models.AlertRule) fixture {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "monitoring.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := models.DefaultConfig()
	cfg.Alerts = rules
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshaling config: %v", err)
	}
	cfgPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	cfgMgr := config.NewManager(cfgPath)
	if _, err := cfgMgr.Load(); err != nil {
		t.Fatalf("loading config: %v", err)
	}

	return fixture{st: st, cfgMgr: cfgMgr}
}

func errorRateRule(channels ...string) models.AlertRule {
	return models.AlertRule{
		Name:                 "high_error_rate",
		Condition:            "error_rate > 0.1",
		Threshold:            0.1,
		TimeWindow:           10,
		NotificationChannels: channels,
		Enabled:              true,
		CooldownPeriod:       5,
	}
}

func (f fixture) seedEntries(t *testing.T, now time.Time, errors, completes int) {
	t.Helper()
	for i := 0; i < errors; i++ {
		if err := f.st.InsertLogEntry(models.LogEntry{
			Timestamp: now.Add(-time.Minute), SessionID: "s1", FunctionName: "f",
			Kind: models.KindError, ErrorDetails: "boom",
		}); err != nil {
			t.Fatalf("seeding error entry: %v", err)
		}
	}
	for i := 0; i < completes; i++ {
		if err := f.st.InsertLogEntry(models.LogEntry{
			Timestamp: now.Add(-time.Minute), SessionID: "s2", FunctionName: "f",
			Kind: models.KindComplete,
		}); err != nil {
			t.Fatalf("seeding complete entry: %v", err)
		}
	}
}

func TestEvaluate_ErrorRateRule(t *testing.T) {
	f := newFixture(t, []models.AlertRule{errorRateRule("console")})
	e := NewEngine(f.st, f.cfgMgr, zap.NewNop(), nil)
	now := time.Now().UTC()

	// 1 error out of 10 terminals: exactly at the threshold, no alert.
	f.seedEntries(t, now, 1, 9)
	alerts, err := e.Evaluate(now)
	if err != nil {
		t.Fatalf("evaluating: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("alert fired at threshold: %+v", alerts)
	}

	// Push the rate above the threshold.
	f.seedEntries(t, now, 4, 0)
	alerts, err = e.Evaluate(now)
	if err != nil {
		t.Fatalf("evaluating: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Rule != "high_error_rate" {
		t.Errorf("alert rule = %q", alerts[0].Rule)
	}
}

func TestEvaluate_CooldownSuppressesRepeat(t *testing.T) {
	f := newFixture(t, []models.AlertRule{errorRateRule("console")})
	e := NewEngine(f.st, f.cfgMgr, zap.NewNop(), nil)
	now := time.Now().UTC()
	f.seedEntries(t, now, 5, 1)

	alerts, err := e.Evaluate(now)
	if err != nil {
		t.Fatalf("evaluating: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected initial alert, got %d", len(alerts))
	}

	// Inside the 5-minute cooldown: silent.
	alerts, err = e.Evaluate(now.Add(time.Minute))
	if err != nil {
		t.Fatalf("evaluating in cooldown: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("alert fired during cooldown: %+v", alerts)
	}

	// Past the cooldown: fires again.
	alerts, err = e.Evaluate(now.Add(6 * time.Minute))
	if err != nil {
		t.Fatalf("evaluating after cooldown: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected alert after cooldown, got %d", len(alerts))
	}
}

func TestEvaluate_DisabledRuleSkipped(t *testing.T) {
	rule := errorRateRule("console")
	rule.Enabled = false
	f := newFixture(t, []models.AlertRule{rule})
	e := NewEngine(f.st, f.cfgMgr, zap.NewNop(), nil)
	now := time.Now().UTC()
	f.seedEntries(t, now, 10, 0)

	alerts, err := e.Evaluate(now)
	if err != nil {
		t.Fatalf("evaluating: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("disabled rule fired: %+v", alerts)
	}
}

func TestEvaluate_FailureCountRule(t *testing.T) {
	rule := models.AlertRule{
		Name:                 "fetch_failure",
		Condition:            "event_type == 'error'",
		Threshold:            1.0,
		TimeWindow:           2,
		NotificationChannels: []string{"console"},
		Enabled:              true,
		CooldownPeriod:       5,
	}
	f := newFixture(t, []models.AlertRule{rule})
	e := NewEngine(f.st, f.cfgMgr, zap.NewNop(), nil)
	now := time.Now().UTC()

	alerts, err := e.Evaluate(now)
	if err != nil {
		t.Fatalf("evaluating empty store: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("alert fired with no failures: %+v", alerts)
	}

	f.seedEntries(t, now, 1, 0)
	alerts, err = e.Evaluate(now)
	if err != nil {
		t.Fatalf("evaluating: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected failure alert, got %d", len(alerts))
	}
}

func TestEvaluate_DegradationRule(t *testing.T) {
	rule := models.AlertRule{
		Name:                 "performance_degradation",
		Condition:            "execution_time > baseline * 1.5",
		Threshold:            1.5,
		TimeWindow:           10,
		NotificationChannels: []string{"console"},
		Enabled:              true,
		CooldownPeriod:       5,
	}
	f := newFixture(t, []models.AlertRule{rule})
	e := NewEngine(f.st, f.cfgMgr, zap.NewNop(), nil)
	now := time.Now().UTC()

	// Baseline: steady 0.1s runs a few hours ago.
	for i := 0; i < 5; i++ {
		if err := f.st.InsertPerformanceMetrics(models.PerformanceMetrics{
			Timestamp: now.Add(-3 * time.Hour), FunctionName: "f",
			ExecutionTime: 0.1, MemoryPeak: 1, SuccessRate: 1.0,
		}); err != nil {
			t.Fatalf("seeding baseline: %v", err)
		}
	}
	// Recent: 0.5s, well past 0.1 * 1.5.
	if err := f.st.InsertPerformanceMetrics(models.PerformanceMetrics{
		Timestamp: now.Add(-time.Minute), FunctionName: "f",
		ExecutionTime: 0.5, MemoryPeak: 1, SuccessRate: 1.0,
	}); err != nil {
		t.Fatalf("seeding recent: %v", err)
	}

	alerts, err := e.Evaluate(now)
	if err != nil {
		t.Fatalf("evaluating: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected degradation alert, got %d", len(alerts))
	}
	if alerts[0].Value != 0.5 {
		t.Errorf("alert value = %v, want recent mean 0.5", alerts[0].Value)
	}
}

func TestAttach_EventDrivenDispatch(t *testing.T) {
	f := newFixture(t, []models.AlertRule{errorRateRule("file")})
	alertPath := filepath.Join(t.TempDir(), "alerts.jsonl")
	e := NewEngine(f.st, f.cfgMgr, zap.NewNop(), map[string]Notifier{
		"file": NewFileNotifier(alertPath),
	})

	b := bus.New(zap.NewNop())
	subs := e.Attach(b)
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(subs))
	}

	f.seedEntries(t, time.Now().UTC(), 5, 1)
	b.Publish(models.EventFunctionFailed, map[string]any{"error": "boom"})

	data, err := os.ReadFile(alertPath)
	if err != nil {
		t.Fatalf("alert file not written: %v", err)
	}
	var alert Alert
	if err := json.Unmarshal(data, &alert); err != nil {
		t.Fatalf("alert file not JSONL: %v", err)
	}
	if alert.Rule != "high_error_rate" {
		t.Errorf("dispatched rule = %q", alert.Rule)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var received map[string][]Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding webhook body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Notify([]Alert{{Rule: "high_error_rate", Message: "too many failures"}})
	if err != nil {
		t.Fatalf("notifying webhook: %v", err)
	}
	if len(received["alerts"]) != 1 || received["alerts"][0].Rule != "high_error_rate" {
		t.Fatalf("webhook received %+v", received)
	}

	// Empty batches make no request.
	if err := NewWebhookNotifier("http://127.0.0.1:1").Notify(nil); err != nil {
		t.Fatalf("empty notify should be a no-op, got %v", err)
	}
}
