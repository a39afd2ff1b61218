// Package monitor contains the lifecycle coordinator and the
// instrumentation wrappers that observe a unit of work's execution and
// emit log entries, performance metrics, and bus events.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/arakida/execmon/internal/bus"
	"github.com/arakida/execmon/internal/config"
	"github.com/arakida/execmon/internal/logging"
	"github.com/arakida/execmon/internal/store"
	"github.com/arakida/execmon/pkg/models"
)

// Status is the snapshot returned by Coordinator.Status.
type Status struct {
	State       string         `json:"status" yaml:"status"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
	Database    store.Stats    `json:"database_stats,omitempty" yaml:"database_stats,omitempty"`
	Config      StatusConfig   `json:"config,omitempty" yaml:"config,omitempty"`
	Subscribers map[string]int `json:"event_bus_subscribers,omitempty" yaml:"event_bus_subscribers,omitempty"`
}

// StatusConfig is the configuration subset included in a status snapshot.
type StatusConfig struct {
	LogLevel       string `json:"log_level" yaml:"log_level"`
	DatabasePath   string `json:"database_path" yaml:"database_path"`
	DashboardPort  int    `json:"dashboard_port" yaml:"dashboard_port"`
	UpdateInterval int    `json:"update_interval" yaml:"update_interval"`
}

// Coordinator sequences configuration load, logging setup, and storage
// initialization exactly once per process, and tears them down on
// shutdown. It replaces the usual pile of package-level singletons with
// one owned instance so tests can run isolated coordinators.
type Coordinator struct {
	cfgMgr config.Manager
	b      bus.EventBus

	mu                 sync.Mutex
	initialized        bool
	levelListenerAdded bool
	sinks              *logging.Sinks
	st                 store.Store
	sched              *cron.Cron
}

// NewCoordinator creates an uninitialized Coordinator using the given
// configuration manager and event bus.
func NewCoordinator(cfgMgr config.Manager, b bus.EventBus) *Coordinator {
	return &Coordinator{cfgMgr: cfgMgr, b: b}
}

// Initialize brings the monitoring system up: configuration, logging
// sinks, storage schema, and the optional cleanup schedule. It is
// idempotent; a second call is a no-op. Initialization failure is fatal
// to the caller and leaves the coordinator uninitialized.
func (c *Coordinator) Initialize() error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil
	}

	cfg, sinks, st, err := c.bringUp()
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.sinks = sinks
	c.st = st
	c.initialized = true
	sinks.Logger.Info("monitoring system initialized successfully")
	c.mu.Unlock()

	// Published outside the lock so handlers may query the coordinator.
	c.b.Publish(models.EventSystemStartup, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"config":    cfg,
	})
	return nil
}

// bringUp runs the initialization sequence. Called with c.mu held.
func (c *Coordinator) bringUp() (models.Config, *logging.Sinks, store.Store, error) {
	cfg, err := c.cfgMgr.Load()
	if err != nil {
		return models.Config{}, nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	sinks, err := logging.Setup(logging.Options{
		Level:        cfg.LogLevel,
		FilePath:     cfg.LogFilePath,
		MaxSizeBytes: cfg.MaxLogFileSize,
	})
	if err != nil {
		return models.Config{}, nil, nil, fmt.Errorf("setting up logging: %w", err)
	}
	logger := sinks.Logger
	logger.Info("monitoring system initializing")

	// Runtime log-level updates follow configuration changes. Registered
	// once per coordinator; the sinks pointer is re-read so the listener
	// survives a shutdown/initialize cycle.
	if !c.levelListenerAdded {
		c.levelListenerAdded = true
		c.cfgMgr.RegisterListener(func(updated models.Config) {
			if s := c.currentSinks(); s != nil {
				s.SetLevel(updated.LogLevel)
			}
		})
	}

	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		logger.Error("failed to initialize monitoring database", zap.Error(err))
		sinks.Close()
		return models.Config{}, nil, nil, fmt.Errorf("initializing database: %w", err)
	}

	if cfg.CleanupSchedule != "" {
		sched := cron.New()
		_, err := sched.AddFunc(cfg.CleanupSchedule, func() {
			if err := st.CleanupOldData(cfg.LogRetention(), cfg.SummaryRetention()); err != nil {
				logger.Error("scheduled cleanup failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Error("invalid cleanup schedule", zap.String("schedule", cfg.CleanupSchedule), zap.Error(err))
		} else {
			sched.Start()
			c.sched = sched
		}
	}

	return cfg, sinks, st, nil
}

// EnsureInitialized initializes the coordinator if it is not already.
// Every instrumentation entry point calls this first.
func (c *Coordinator) EnsureInitialized() error {
	c.mu.Lock()
	ok := c.initialized
	c.mu.Unlock()
	if ok {
		return nil
	}
	return c.Initialize()
}

// Initialized reports whether the coordinator is up.
func (c *Coordinator) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Shutdown tears the monitoring system down: shutdown event, retention
// cleanup, scheduler stop, bus reset. Errors are logged, never returned;
// shutdown is best-effort. A coordinator may be re-initialized afterward.
func (c *Coordinator) Shutdown() {
	// Claim teardown inside one critical section: the coordinator is
	// marked down and its resources are taken before the lock drops, so
	// a concurrent Shutdown no-ops instead of racing the teardown.
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return
	}
	c.initialized = false
	sinks := c.sinks
	st := c.st
	sched := c.sched
	c.sinks = nil
	c.st = nil
	c.sched = nil
	c.mu.Unlock()

	logger := sinks.Logger
	logger.Info("monitoring system shutting down")

	// Published outside the lock so handlers may query the coordinator.
	c.b.Publish(models.EventSystemShutdown, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})

	if sched != nil {
		sched.Stop()
	}

	cfg := c.cfgMgr.Get()
	if err := st.CleanupOldData(cfg.LogRetention(), cfg.SummaryRetention()); err != nil {
		logger.Error("cleanup during shutdown failed", zap.Error(err))
	}

	c.b.ClearAll()

	if err := st.Close(); err != nil {
		logger.Error("closing monitoring database failed", zap.Error(err))
	}

	logger.Info("monitoring system shutdown complete")
	if err := sinks.Close(); err != nil {
		fmt.Println("closing log sinks failed:", err)
	}
}

// Cleanup runs retention cleanup with the current configuration.
func (c *Coordinator) Cleanup() error {
	c.mu.Lock()
	st := c.st
	c.mu.Unlock()
	if st == nil {
		return fmt.Errorf("monitoring system not initialized")
	}
	cfg := c.cfgMgr.Get()
	return st.CleanupOldData(cfg.LogRetention(), cfg.SummaryRetention())
}

// Status returns a snapshot of system health: storage stats, selected
// configuration, and subscriber tallies for the well-known event types.
// Collection failures yield an error-state snapshot, never a panic or a
// returned error.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return Status{State: "not_initialized"}
	}
	st := c.st
	c.mu.Unlock()

	stats, err := st.Stats()
	if err != nil {
		return Status{State: "error", Error: err.Error()}
	}

	cfg := c.cfgMgr.Get()
	subs := make(map[string]int, len(models.WellKnownEvents))
	for _, eventType := range models.WellKnownEvents {
		subs[eventType] = c.b.SubscriberCount(eventType)
	}

	return Status{
		State:    "running",
		Database: stats,
		Config: StatusConfig{
			LogLevel:       cfg.LogLevel,
			DatabasePath:   cfg.DatabasePath,
			DashboardPort:  cfg.DashboardPort,
			UpdateInterval: cfg.UpdateInterval,
		},
		Subscribers: subs,
	}
}

// Store returns the persistence layer, or nil before initialization.
func (c *Coordinator) Store() store.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// Bus returns the event bus.
func (c *Coordinator) Bus() bus.EventBus {
	return c.b
}

// Config returns the current effective configuration.
func (c *Coordinator) Config() models.Config {
	return c.cfgMgr.Get()
}

// ConfigManager returns the configuration manager.
func (c *Coordinator) ConfigManager() config.Manager {
	return c.cfgMgr
}

// Logger returns the monitoring logger, or a no-op logger before
// initialization so callers never need a nil check.
func (c *Coordinator) Logger() *zap.Logger {
	if s := c.currentSinks(); s != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func (c *Coordinator) currentSinks() *logging.Sinks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinks
}
