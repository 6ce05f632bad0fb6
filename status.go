package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/hyperclay/sitesync/internal/config"
	"github.com/hyperclay/sitesync/internal/engine"
)

const statusDialTimeout = 2 * time.Second

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the sync agent is running and its current state",
		RunE:  runStatusCmd,
	}

	return cmd
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	pidPath := filepath.Join(cc.Cfg.SyncFolder, config.BackupDirName, pidFileName)
	pid, alive := pidFileAlive(pidPath)

	if !alive {
		return printNotRunning(cc)
	}

	if !cc.Cfg.WebsocketEnabled {
		return printRunningNoDetail(cc, pid)
	}

	status, err := fetchLiveStatus(cmd.Context(), cc.Cfg.WebsocketPort)
	if err != nil {
		cc.Logger.Debug("status: could not fetch live snapshot", "error", err)

		return printRunningNoDetail(cc, pid)
	}

	return printStatus(cc, pid, status)
}

// fetchLiveStatus dials the loopback event bridge and reads the one-shot
// status snapshot frame every new connection receives before streaming.
func fetchLiveStatus(ctx context.Context, port int) (engine.Status, error) {
	var status engine.Status

	dialCtx, cancel := context.WithTimeout(ctx, statusDialTimeout)
	defer cancel()

	url := fmt.Sprintf("ws://%s/events", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))

	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return status, fmt.Errorf("dialing event stream: %w", err)
	}
	defer conn.CloseNow()

	readCtx, cancelRead := context.WithTimeout(ctx, statusDialTimeout)
	defer cancelRead()

	if err := wsjson.Read(readCtx, conn, &status); err != nil {
		return status, fmt.Errorf("reading status snapshot: %w", err)
	}

	conn.Close(websocket.StatusNormalClosure, "status fetched")

	return status, nil
}

func printNotRunning(cc *CLIContext) error {
	if cc.Flags.JSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{"running": false})
	}

	fmt.Println("sync agent is not running")

	return nil
}

func printRunningNoDetail(cc *CLIContext, pid int) error {
	if cc.Flags.JSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{"running": true, "pid": pid})
	}

	fmt.Printf("sync agent is running (pid %d)\n", pid)

	return nil
}

func printStatus(cc *CLIContext, pid int, status engine.Status) error {
	if cc.Flags.JSON {
		out := map[string]any{
			"running": true,
			"pid":     pid,
			"status":  status,
		}

		return json.NewEncoder(os.Stdout).Encode(out)
	}

	fmt.Printf("sync agent is running (pid %d)\n", pid)
	fmt.Printf("  state:          %s\n", status.State)
	fmt.Printf("  queue length:   %d\n", status.QueueLength)
	fmt.Printf("  clock offset:   %s\n", status.ClockOffset)
	fmt.Printf("  downloaded:     %d (skipped %d)\n", status.Stats.FilesDownloaded, status.Stats.FilesDownloadedSkipped)
	fmt.Printf("  uploaded:       %d (skipped %d)\n", status.Stats.FilesUploaded, status.Stats.FilesUploadedSkipped)
	fmt.Printf("  protected:      %d\n", status.Stats.FilesProtected)

	if status.Stats.LastSync != nil {
		fmt.Printf("  last sync:      %s\n", formatTime(*status.Stats.LastSync))
	}

	if len(status.Stats.RecentErrors) > 0 {
		fmt.Printf("  recent errors:\n")

		headers := []string{"TIME", "FILE", "KIND", "ERROR"}
		rows := make([][]string, 0, len(status.Stats.RecentErrors))

		for _, e := range status.Stats.RecentErrors {
			rows = append(rows, []string{formatTime(e.At), e.File, e.Kind, e.Error})
		}

		printTable(os.Stdout, headers, rows)
	}

	return nil
}
