package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/arakida/execmon/internal/alerting"
	"github.com/arakida/execmon/internal/bus"
	"github.com/arakida/execmon/internal/config"
	"github.com/arakida/execmon/internal/monitor"
	"github.com/arakida/execmon/pkg/models"
)

// wireTestApp points the package-level service variables at an isolated
// monitoring system backed by a temp directory, restoring the originals
// on cleanup.
func wireTestApp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()

	cfg := models.DefaultConfig()
	cfg.DatabasePath = filepath.Join(dir, "monitoring.db")
	cfg.LogFilePath = filepath.Join(dir, "monitoring.log")
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "monitoring_config.json")
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	origCoord, origInstr, origCfgMgr, origMonitor := Coord, Instr, ConfigMgr, Monitor

	ConfigMgr = config.NewManager(cfgPath)
	Coord = monitor.NewCoordinator(ConfigMgr, bus.New(zap.NewNop()))
	Instr = monitor.NewInstrumenter(Coord)
	Monitor = &testStarter{}

	t.Cleanup(func() {
		Coord.Shutdown()
		Coord, Instr, ConfigMgr, Monitor = origCoord, origInstr, origCfgMgr, origMonitor
	})
}

// testStarter is the Starter used by CLI tests: a real coordinator with a
// notifier-less alert engine.
type testStarter struct {
	engine alerting.Engine
}

func (s *testStarter) Start() error {
	if err := Coord.Initialize(); err != nil {
		return err
	}
	if s.engine == nil {
		s.engine = alerting.NewEngine(Coord.Store(), ConfigMgr, zap.NewNop(), nil)
	}
	return nil
}

func (s *testStarter) Alerts() alerting.Engine {
	return s.engine
}

func commandRegistered(name string) bool {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == name {
			return true
		}
	}
	return false
}
