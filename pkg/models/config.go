package models

import "time"

// AlertRule is one configured alert: a named trigger condition with a
// threshold, evaluation window, notification channels, and a cooldown
// that suppresses repeat notifications.
type AlertRule struct {
	Name                 string   `json:"name" mapstructure:"name"`
	Condition            string   `json:"condition" mapstructure:"condition"`
	Threshold            float64  `json:"threshold" mapstructure:"threshold"`
	TimeWindow           int      `json:"time_window" mapstructure:"time_window"` // minutes
	NotificationChannels []string `json:"notification_channels" mapstructure:"notification_channels"`
	Enabled              bool     `json:"enabled" mapstructure:"enabled"`
	CooldownPeriod       int      `json:"cooldown_period" mapstructure:"cooldown_period"` // minutes
}

// Config holds the process-wide monitoring settings. It is persisted as
// JSON, loaded once at startup, and replaced wholesale on every validated
// update.
type Config struct {
	LogLevel                       string      `json:"log_level" mapstructure:"log_level"`
	DatabasePath                   string      `json:"database_path" mapstructure:"database_path"`
	LogFilePath                    string      `json:"log_file_path" mapstructure:"log_file_path"`
	MaxLogFileSize                 int         `json:"max_log_file_size" mapstructure:"max_log_file_size"` // bytes
	LogRetentionDays               int         `json:"log_retention_days" mapstructure:"log_retention_days"`
	SummaryRetentionDays           int         `json:"summary_retention_days" mapstructure:"summary_retention_days"`
	DashboardPort                  int         `json:"dashboard_port" mapstructure:"dashboard_port"`
	DashboardHost                  string      `json:"dashboard_host" mapstructure:"dashboard_host"`
	UpdateInterval                 int         `json:"update_interval" mapstructure:"update_interval"` // seconds
	PerformanceThresholdMultiplier float64     `json:"performance_threshold_multiplier" mapstructure:"performance_threshold_multiplier"`
	ErrorRateThreshold             float64     `json:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	ErrorRateWindow                int         `json:"error_rate_window" mapstructure:"error_rate_window"` // minutes
	CleanupSchedule                string      `json:"cleanup_schedule" mapstructure:"cleanup_schedule"`   // cron expression; empty disables
	Alerts                         []AlertRule `json:"alerts" mapstructure:"alerts"`
}

// DefaultConfig returns the configuration used when no persisted config
// exists, including the default alert rules.
func DefaultConfig() Config {
	return Config{
		LogLevel:                       "info",
		DatabasePath:                   "monitoring.db",
		LogFilePath:                    "monitoring.log",
		MaxLogFileSize:                 10 * 1024 * 1024,
		LogRetentionDays:               90,
		SummaryRetentionDays:           365,
		DashboardPort:                  5000,
		DashboardHost:                  "localhost",
		UpdateInterval:                 5,
		PerformanceThresholdMultiplier: 1.5,
		ErrorRateThreshold:             0.1,
		ErrorRateWindow:                10,
		CleanupSchedule:                "",
		Alerts:                         DefaultAlertRules(),
	}
}

// DefaultAlertRules returns the alert rules applied when the persisted
// configuration carries none.
func DefaultAlertRules() []AlertRule {
	return []AlertRule{
		{
			Name:                 "fetch_failure",
			Condition:            "event_type == 'error'",
			Threshold:            1.0,
			TimeWindow:           2,
			NotificationChannels: []string{"file", "console"},
			Enabled:              true,
			CooldownPeriod:       5,
		},
		{
			Name:                 "performance_degradation",
			Condition:            "execution_time > baseline * 1.5",
			Threshold:            1.5,
			TimeWindow:           10,
			NotificationChannels: []string{"file", "console"},
			Enabled:              true,
			CooldownPeriod:       5,
		},
		{
			Name:                 "high_error_rate",
			Condition:            "error_rate > 0.1",
			Threshold:            0.1,
			TimeWindow:           10,
			NotificationChannels: []string{"file", "console"},
			Enabled:              true,
			CooldownPeriod:       5,
		},
	}
}

// ErrorRateWindowDuration returns the error-rate evaluation window as a
// duration.
func (c Config) ErrorRateWindowDuration() time.Duration {
	return time.Duration(c.ErrorRateWindow) * time.Minute
}

// LogRetention returns the log entry retention window as a duration.
func (c Config) LogRetention() time.Duration {
	return time.Duration(c.LogRetentionDays) * 24 * time.Hour
}

// SummaryRetention returns the performance metrics retention window as a
// duration.
func (c Config) SummaryRetention() time.Duration {
	return time.Duration(c.SummaryRetentionDays) * 24 * time.Hour
}
