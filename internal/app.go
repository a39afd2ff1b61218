// Package internal provides the App struct that wires all components of
// the execution monitoring system together and initializes the CLI layer.
package internal

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/arakida/execmon/internal/alerting"
	"github.com/arakida/execmon/internal/bus"
	"github.com/arakida/execmon/internal/cli"
	"github.com/arakida/execmon/internal/config"
	"github.com/arakida/execmon/internal/monitor"
	"github.com/arakida/execmon/internal/store"
)

// App holds all service dependencies for the execution monitoring system.
type App struct {
	ConfigPath string

	// Configuration
	ConfigMgr config.Manager

	// Event bus and lifecycle coordinator
	Bus   bus.EventBus
	Coord *monitor.Coordinator

	// Instrumentation
	Instr *monitor.Instrumenter

	// Alerting, built on Start because it needs the live store.
	AlertEngine alerting.Engine

	alertSubs  []bus.Subscription
	alertStore store.Store
}

// NewApp creates and wires all components of the execution monitoring
// system. configPath is the JSON configuration file location; the file is
// created with defaults on first initialization.
func NewApp(configPath string) *App {
	app := &App{ConfigPath: configPath}

	// --- Configuration ---
	app.ConfigMgr = config.NewManager(configPath)

	// --- Event bus ---
	// The coordinator owns the configured log sinks, which do not exist
	// yet; the bus gets a plain stderr logger for handler panics.
	app.Bus = bus.New(stderrLogger())

	// --- Lifecycle coordinator and instrumentation ---
	app.Coord = monitor.NewCoordinator(app.ConfigMgr, app.Bus)
	app.Instr = monitor.NewInstrumenter(app.Coord)

	// --- Wire CLI package-level variables ---
	cli.Coord = app.Coord
	cli.Instr = app.Instr
	cli.ConfigMgr = app.ConfigMgr
	cli.Monitor = app

	return app
}

// Start brings the monitoring system up and attaches the alert engine to
// the event bus. It is idempotent; CLI commands call it lazily.
func (a *App) Start() error {
	if err := a.Coord.Initialize(); err != nil {
		return err
	}
	a.attachAlerting()
	return nil
}

// Alerts returns the alert engine, or nil before the first Start.
func (a *App) Alerts() alerting.Engine {
	return a.AlertEngine
}

// Close shuts the monitoring system down. It is safe to call on an App
// that was never started.
func (a *App) Close() {
	a.Coord.Shutdown()
}

// attachAlerting binds the alert engine to the coordinator's live store.
// A Close/Start cycle opens a fresh store, so the engine is rebuilt and
// re-attached whenever the store it was built on is gone.
func (a *App) attachAlerting() {
	st := a.Coord.Store()
	if a.AlertEngine != nil && st == a.alertStore {
		return
	}

	for _, sub := range a.alertSubs {
		a.Bus.Unsubscribe(sub)
	}

	logger := a.Coord.Logger()
	cfg := a.Coord.Config()
	notifiers := map[string]alerting.Notifier{
		"console": alerting.NewConsoleNotifier(logger),
		"file":    alerting.NewFileNotifier(alertFilePath(cfg.DatabasePath)),
	}

	a.AlertEngine = alerting.NewEngine(st, a.ConfigMgr, logger, notifiers)
	a.alertSubs = a.AlertEngine.Attach(a.Bus)
	a.alertStore = st
}

// alertFilePath places the alert journal next to the monitoring database.
func alertFilePath(databasePath string) string {
	return filepath.Join(filepath.Dir(databasePath), "alerts.jsonl")
}

// ResolveConfigPath determines the configuration file location. It checks
// the EXECMON_CONFIG env var, then falls back to monitoring_config.json
// in the current directory.
func ResolveConfigPath() string {
	if path := os.Getenv("EXECMON_CONFIG"); path != "" {
		return path
	}
	return "monitoring_config.json"
}

// stderrLogger builds a minimal console logger for use before the
// configured sinks exist.
func stderrLogger() *zap.Logger {
	encoder := zapcore.NewConsoleEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapcore.WarnLevel)
	return zap.New(core)
}
