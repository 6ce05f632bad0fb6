package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyperclay/sitesync/internal/config"
	"github.com/hyperclay/sitesync/internal/engine"
)

// pidFileName is the lock file written under the sync folder's reserved
// backup directory while an agent session is running. It doubles as the
// liveness check for `sitesync status` when no WebSocket is reachable.
const pidFileName = "agent.pid"

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync agent in the foreground",
		Long:  "Starts the sync agent: samples clock offset against the server, reconciles the local folder against the remote site list, then watches and polls for changes until stopped.",
		RunE:  runRunCmd,
	}

	return cmd
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	pidPath := filepath.Join(cc.Cfg.SyncFolder, config.BackupDirName, pidFileName)

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("acquiring single-instance lock: %w", err)
	}
	defer cleanup()

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	eng := engine.New(cc.Cfg, cc.Logger)

	cc.Statusf("starting sync agent for %s\n", cc.Cfg.SyncFolder)

	if err := eng.Init(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	cc.Statusf("sync agent running, press Ctrl+C to stop\n")

	<-ctx.Done()

	cc.Statusf("shutting down\n")

	return eng.Stop()
}
