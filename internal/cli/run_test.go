package cli

import (
	"testing"

	"github.com/arakida/execmon/pkg/models"
)

func TestRunCommand_Success(t *testing.T) {
	wireTestApp(t)
	origName := runName
	defer func() { runName = origName }()
	runName = ""

	if err := runCmd.RunE(runCmd, []string{"true"}); err != nil {
		t.Fatalf("run true: %v", err)
	}

	// Recorded under the command basename.
	entries, err := Coord.Store().QueryLogEntries(models.LogFilter{FunctionName: "true"})
	if err != nil {
		t.Fatalf("querying entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected start+complete entries, got %d", len(entries))
	}
}

func TestRunCommand_FailurePropagates(t *testing.T) {
	wireTestApp(t)
	origName := runName
	defer func() { runName = origName }()
	runName = "failing-step"

	err := runCmd.RunE(runCmd, []string{"false"})
	if err == nil {
		t.Fatal("expected error for failing command")
	}

	entries, qerr := Coord.Store().QueryLogEntries(models.LogFilter{FunctionName: "failing-step", Kind: models.KindError})
	if qerr != nil {
		t.Fatalf("querying entries: %v", qerr)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one error entry, got %d", len(entries))
	}
}
