// Command isync-adapterd is the background daemon that keeps a cloud-backed
// user directory and a local processing root in sync.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexsync/isync-adapter/internal/logging"
	"github.com/lexsync/isync-adapter/internal/supervisor"
)

// version, commit, and buildDate are populated at build time via
// -ldflags "-X main.version=... -X main.commit=... -X main.buildDate=...".
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const defaultConfigPath = "config.json"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "isync-adapterd",
		Short:         "Bidirectional sync daemon between a cloud mount and a local processing root",
		SilenceUsage:  false,
		SilenceErrors: false,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath)
		},
	}
	cmd.SetVersionTemplate("isync-adapterd version {{.Version}}\n")

	def := defaultConfigPath
	if env := os.Getenv("ADAPTER_CONFIG"); env != "" {
		def = env
	}
	cmd.Flags().StringVar(&cfgPath, "config", def, "path to the daemon's configuration file (env ADAPTER_CONFIG overrides this default)")

	return cmd
}

// run executes the startup sequence and blocks until an interrupt/terminate
// signal triggers an orderly shutdown (spec §4.5).
func run(cfgPath string) error {
	sup, err := supervisor.New(cfgPath)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Run(ctx); err != nil {
		logging.L().Error("fatal: supervisor exited with error", "error", err.Error())
		return err
	}
	return nil
}
