package cli

import (
	"fmt"

	"github.com/arakida/execmon/internal/alerting"
	"github.com/arakida/execmon/internal/config"
	"github.com/arakida/execmon/internal/monitor"
)

// Starter brings the monitoring system up on first use and exposes the
// services that only exist once it is running.
type Starter interface {
	Start() error
	Alerts() alerting.Engine
}

// Monitoring service instances, set during app initialization in app.go.
var (
	Coord     *monitor.Coordinator
	Instr     *monitor.Instrumenter
	ConfigMgr config.Manager
	Monitor   Starter
)

// ensureStarted lazily initializes the monitoring system before running a
// command that needs it.
func ensureStarted() error {
	if Monitor == nil {
		return fmt.Errorf("monitoring system not initialized")
	}
	if err := Monitor.Start(); err != nil {
		return fmt.Errorf("starting monitoring system: %w", err)
	}
	return nil
}
