// Package config manages the persisted monitoring configuration: loading
// and defaulting at startup, validated updates, wholesale JSON rewrite on
// change, and synchronous change notification to registered listeners.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"

	"github.com/arakida/execmon/pkg/models"
)

// Listener is invoked synchronously after a successful configuration
// update, receiving the new effective configuration.
type Listener func(cfg models.Config)

// Manager loads, validates, persists and distributes the monitoring
// configuration. There is exactly one active configuration per Manager;
// reads see a wholesale-replaced value, never a partially applied update.
type Manager interface {
	// Load reads the persisted configuration, or writes and returns the
	// defaults if no file exists. A malformed file falls back to
	// defaults rather than failing startup.
	Load() (models.Config, error)

	// Get returns the current effective configuration.
	Get() models.Config

	// Update validates the given field updates against expected types,
	// applies them all-or-nothing, rewrites the persisted file, and
	// notifies listeners. Unknown fields are ignored.
	Update(updates map[string]any) error

	// RegisterListener adds a change listener. Listeners fire in
	// registration order after every successful Update.
	RegisterListener(l Listener)

	// Path returns the config file location.
	Path() string
}

// ValidationError reports a wrong-typed update field. No field is applied
// when any update fails validation.
type ValidationError struct {
	Field    string
	Expected string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid type for %s: expected %s", e.Field, e.Expected)
}

type fileManager struct {
	path string

	mu        sync.RWMutex
	cfg       models.Config
	listeners []Listener
}

// NewManager creates a Manager persisting to the given JSON file path.
func NewManager(path string) Manager {
	return &fileManager{
		path: path,
		cfg:  models.DefaultConfig(),
	}
}

func (m *fileManager) Path() string {
	return m.path
}

func (m *fileManager) Load() (models.Config, error) {
	if _, err := os.Stat(m.path); os.IsNotExist(err) {
		if err := m.save(m.Get()); err != nil {
			return models.Config{}, fmt.Errorf("writing default config: %w", err)
		}
		return m.Get(), nil
	}

	v := viper.New()
	v.SetConfigFile(m.path)
	v.SetConfigType("json")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A corrupt file must not prevent monitoring from starting.
		return m.Get(), nil
	}

	cfg := models.DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return m.Get(), nil
	}
	if len(cfg.Alerts) == 0 {
		cfg.Alerts = models.DefaultAlertRules()
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return cfg, nil
}

func (m *fileManager) Get() models.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *fileManager) Update(updates map[string]any) error {
	// Validate every field before applying any.
	for field, value := range updates {
		if err := validateField(field, value); err != nil {
			return err
		}
	}

	m.mu.Lock()
	cfg := m.cfg
	applyUpdates(&cfg, updates)
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	// Persist before publishing: a failed write leaves memory, disk, and
	// listeners all on the previous configuration.
	if err := m.save(cfg); err != nil {
		return fmt.Errorf("persisting config update: %w", err)
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	for _, l := range listeners {
		l(cfg)
	}
	return nil
}

func (m *fileManager) RegisterListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *fileManager) save(cfg models.Config) error {
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(m.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// fieldKinds maps updatable field names to their expected kinds. Fields
// not listed here (such as alerts) cannot be changed through Update.
var fieldKinds = map[string]string{
	"log_level":                        "string",
	"database_path":                    "string",
	"log_file_path":                    "string",
	"max_log_file_size":                "int",
	"log_retention_days":               "int",
	"summary_retention_days":           "int",
	"dashboard_port":                   "int",
	"dashboard_host":                   "string",
	"update_interval":                  "int",
	"performance_threshold_multiplier": "float",
	"error_rate_threshold":             "float",
	"error_rate_window":                "int",
	"cleanup_schedule":                 "string",
}

func validateField(field string, value any) error {
	kind, known := fieldKinds[field]
	if !known {
		return nil
	}

	switch kind {
	case "string":
		if _, ok := value.(string); !ok {
			return &ValidationError{Field: field, Expected: "string"}
		}
	case "int":
		switch value.(type) {
		case int, int64:
		default:
			return &ValidationError{Field: field, Expected: "int"}
		}
	case "float":
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			return &ValidationError{Field: field, Expected: "float"}
		}
	}
	return nil
}

func applyUpdates(cfg *models.Config, updates map[string]any) {
	for field, value := range updates {
		switch field {
		case "log_level":
			cfg.LogLevel = value.(string)
		case "database_path":
			cfg.DatabasePath = value.(string)
		case "log_file_path":
			cfg.LogFilePath = value.(string)
		case "max_log_file_size":
			cfg.MaxLogFileSize = toInt(value)
		case "log_retention_days":
			cfg.LogRetentionDays = toInt(value)
		case "summary_retention_days":
			cfg.SummaryRetentionDays = toInt(value)
		case "dashboard_port":
			cfg.DashboardPort = toInt(value)
		case "dashboard_host":
			cfg.DashboardHost = value.(string)
		case "update_interval":
			cfg.UpdateInterval = toInt(value)
		case "performance_threshold_multiplier":
			cfg.PerformanceThresholdMultiplier = toFloat(value)
		case "error_rate_threshold":
			cfg.ErrorRateThreshold = toFloat(value)
		case "error_rate_window":
			cfg.ErrorRateWindow = toInt(value)
		case "cleanup_schedule":
			cfg.CleanupSchedule = value.(string)
		}
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func setDefaults(v *viper.Viper) {
	def := models.DefaultConfig()
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("database_path", def.DatabasePath)
	v.SetDefault("log_file_path", def.LogFilePath)
	v.SetDefault("max_log_file_size", def.MaxLogFileSize)
	v.SetDefault("log_retention_days", def.LogRetentionDays)
	v.SetDefault("summary_retention_days", def.SummaryRetentionDays)
	v.SetDefault("dashboard_port", def.DashboardPort)
	v.SetDefault("dashboard_host", def.DashboardHost)
	v.SetDefault("update_interval", def.UpdateInterval)
	v.SetDefault("performance_threshold_multiplier", def.PerformanceThresholdMultiplier)
	v.SetDefault("error_rate_threshold", def.ErrorRateThreshold)
	v.SetDefault("error_rate_window", def.ErrorRateWindow)
	v.SetDefault("cleanup_schedule", def.CleanupSchedule)
}
