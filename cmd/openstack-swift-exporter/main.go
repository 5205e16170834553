// Command openstack-swift-exporter serves the objects of one OpenStack Swift
// container as Prometheus metrics.
package main

import (
	"log/slog"
	"os"
	_ "time/tzdata"

	appcmd "github.com/Bigouden/openstack-swift-exporter/internal/cmd"
)

func main() {
	slog.SetDefault(appcmd.NewBootstrapLogger(os.Stdout, os.Getenv))
	app := appcmd.NewApp()
	if err := app.Execute(); err != nil {
		slog.Error("command execution failed", "err", err)
		os.Exit(1)
	}
}
