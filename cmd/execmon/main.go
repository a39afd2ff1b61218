package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	app "github.com/arakida/execmon/internal"
	"github.com/arakida/execmon/internal/cli"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)

	a := app.NewApp(app.ResolveConfigPath())

	// Shut the monitoring system down cleanly on interrupt so the
	// shutdown event and retention cleanup still run.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		a.Close()
		os.Exit(1)
	}()

	err := cli.Execute()
	a.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
