// Package alerting evaluates the configured alert rules against recorded
// monitoring data and dispatches triggered alerts to notification
// channels. Evaluation is best-effort and driven by bus events; a failing
// evaluation never disturbs the monitored workload.
package alerting

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arakida/execmon/internal/bus"
	"github.com/arakida/execmon/internal/config"
	"github.com/arakida/execmon/internal/store"
	"github.com/arakida/execmon/pkg/models"
)

// Alert is one triggered rule instance.
type Alert struct {
	Rule        string    `json:"rule"`
	Message     string    `json:"message"`
	Value       float64   `json:"value"`
	Threshold   float64   `json:"threshold"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// Engine evaluates alert rules over the persisted monitoring data.
type Engine interface {
	// Evaluate checks every enabled rule against the data visible at
	// now, honoring per-rule cooldowns, and returns triggered alerts.
	Evaluate(now time.Time) ([]Alert, error)

	// Attach subscribes the engine to the bus events that warrant
	// re-evaluation and returns the subscriptions.
	Attach(b bus.EventBus) []bus.Subscription
}

type engine struct {
	st        store.Store
	cfgMgr    config.Manager
	logger    *zap.Logger
	notifiers map[string]Notifier

	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewEngine creates an Engine reading rules from cfgMgr and data from st.
// notifiers maps channel names (as referenced by rule configuration) to
// their implementations; unknown channels are logged and skipped.
func NewEngine(st store.Store, cfgMgr config.Manager, logger *zap.Logger, notifiers map[string]Notifier) Engine {
	return &engine{
		st:        st,
		cfgMgr:    cfgMgr,
		logger:    logger,
		notifiers: notifiers,
		lastFired: make(map[string]time.Time),
	}
}

func (e *engine) Attach(b bus.EventBus) []bus.Subscription {
	handler := func(string, map[string]any) {
		alerts, err := e.Evaluate(time.Now().UTC())
		if err != nil {
			e.logger.Error("alert evaluation failed", zap.Error(err))
			return
		}
		e.dispatch(alerts)
	}
	return []bus.Subscription{
		b.Subscribe(models.EventFunctionFailed, handler),
		b.Subscribe(models.EventPerformanceRecorded, handler),
	}
}

func (e *engine) Evaluate(now time.Time) ([]Alert, error) {
	cfg := e.cfgMgr.Get()

	var alerts []Alert
	for _, rule := range cfg.Alerts {
		if !rule.Enabled || e.inCooldown(rule, now) {
			continue
		}

		alert, err := e.checkRule(rule, cfg, now)
		if err != nil {
			return nil, fmt.Errorf("checking rule %s: %w", rule.Name, err)
		}
		if alert != nil {
			e.markFired(rule.Name, now)
			alerts = append(alerts, *alert)
		}
	}
	return alerts, nil
}

// checkRule interprets a rule's condition. Conditions are classified by
// the quantity they reference rather than parsed as expressions.
func (e *engine) checkRule(rule models.AlertRule, cfg models.Config, now time.Time) (*Alert, error) {
	window := models.TimeRange{
		Start: now.Add(-time.Duration(rule.TimeWindow) * time.Minute),
		End:   now,
	}

	switch {
	case strings.Contains(rule.Condition, "error_rate"):
		return e.checkErrorRate(rule, window)
	case strings.Contains(rule.Condition, "execution_time"):
		return e.checkDegradation(rule, cfg, window, now)
	case strings.Contains(rule.Condition, "event_type"):
		return e.checkFailures(rule, window)
	default:
		e.logger.Warn("unrecognized alert condition", zap.String("rule", rule.Name), zap.String("condition", rule.Condition))
		return nil, nil
	}
}

// checkErrorRate compares error entries against all terminal entries in
// the window.
func (e *engine) checkErrorRate(rule models.AlertRule, window models.TimeRange) (*Alert, error) {
	errored, err := e.st.QueryLogEntries(models.LogFilter{Kind: models.KindError, TimeRange: &window})
	if err != nil {
		return nil, err
	}
	completed, err := e.st.QueryLogEntries(models.LogFilter{Kind: models.KindComplete, TimeRange: &window})
	if err != nil {
		return nil, err
	}

	total := len(errored) + len(completed)
	if total == 0 {
		return nil, nil
	}
	rate := float64(len(errored)) / float64(total)
	if rate <= rule.Threshold {
		return nil, nil
	}
	return &Alert{
		Rule:        rule.Name,
		Message:     fmt.Sprintf("error rate %.0f%% over the last %d minutes exceeds %.0f%%", rate*100, rule.TimeWindow, rule.Threshold*100),
		Value:       rate,
		Threshold:   rule.Threshold,
		TriggeredAt: window.End,
	}, nil
}

// checkDegradation compares the mean execution time in the window
// against a baseline mean from the preceding 24 hours, scaled by the
// configured multiplier.
func (e *engine) checkDegradation(rule models.AlertRule, cfg models.Config, window models.TimeRange, now time.Time) (*Alert, error) {
	recent, err := e.st.QueryPerformanceMetrics(models.MetricsFilter{TimeRange: &window})
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, nil
	}

	baselineRange := models.TimeRange{Start: now.Add(-24 * time.Hour), End: window.Start}
	baseline, err := e.st.QueryPerformanceMetrics(models.MetricsFilter{TimeRange: &baselineRange})
	if err != nil {
		return nil, err
	}
	if len(baseline) == 0 {
		return nil, nil
	}

	recentMean := meanExecutionTime(recent)
	baselineMean := meanExecutionTime(baseline)
	limit := baselineMean * cfg.PerformanceThresholdMultiplier
	if baselineMean == 0 || recentMean <= limit {
		return nil, nil
	}
	return &Alert{
		Rule:        rule.Name,
		Message:     fmt.Sprintf("mean execution time %.3fs exceeds %.3fs (baseline %.3fs x %.2f)", recentMean, limit, baselineMean, cfg.PerformanceThresholdMultiplier),
		Value:       recentMean,
		Threshold:   limit,
		TriggeredAt: now,
	}, nil
}

// checkFailures fires when error entries in the window reach the rule's
// threshold count.
func (e *engine) checkFailures(rule models.AlertRule, window models.TimeRange) (*Alert, error) {
	errored, err := e.st.QueryLogEntries(models.LogFilter{Kind: models.KindError, TimeRange: &window})
	if err != nil {
		return nil, err
	}
	if float64(len(errored)) < rule.Threshold {
		return nil, nil
	}
	return &Alert{
		Rule:        rule.Name,
		Message:     fmt.Sprintf("%d failures in the last %d minutes", len(errored), rule.TimeWindow),
		Value:       float64(len(errored)),
		Threshold:   rule.Threshold,
		TriggeredAt: window.End,
	}, nil
}

func (e *engine) dispatch(alerts []Alert) {
	if len(alerts) == 0 {
		return
	}

	rules := make(map[string]models.AlertRule)
	for _, rule := range e.cfgMgr.Get().Alerts {
		rules[rule.Name] = rule
	}

	for _, alert := range alerts {
		for _, channel := range rules[alert.Rule].NotificationChannels {
			notifier, ok := e.notifiers[channel]
			if !ok {
				e.logger.Warn("no notifier for channel", zap.String("channel", channel), zap.String("rule", alert.Rule))
				continue
			}
			if err := notifier.Notify([]Alert{alert}); err != nil {
				e.logger.Error("alert notification failed",
					zap.String("channel", channel),
					zap.String("rule", alert.Rule),
					zap.Error(err),
				)
			}
		}
	}
}

func (e *engine) inCooldown(rule models.AlertRule, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	last, ok := e.lastFired[rule.Name]
	if !ok {
		return false
	}
	return now.Sub(last) < time.Duration(rule.CooldownPeriod)*time.Minute
}

func (e *engine) markFired(name string, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastFired[name] = now
}

func meanExecutionTime(rows []models.PerformanceMetrics) float64 {
	if len(rows) == 0 {
		return 0
	}
	var sum float64
	for _, row := range rows {
		sum += row.ExecutionTime
	}
	return sum / float64(len(rows))
}
