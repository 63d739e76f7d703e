package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var stopTimeout time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running workbot server",
	Long: `Stop a running workbot server by reading its PID file and asking it
to shut down gracefully. If the server does not exit within the timeout
it is killed.

The PID file is located at ~/.workbot/server.pid.

Examples:
  # Stop the running server
  workbot stop

  # Allow more time for in-flight reconciliation to finish
  workbot stop --timeout 30s`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 10*time.Second, "how long to wait for a graceful exit before killing")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := pidFilePath()

	pid := readPIDFile(pidPath)
	if pid == 0 {
		return fmt.Errorf("no server PID file found at %s\nIs the server running?", pidPath)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(pidPath)
		return fmt.Errorf("invalid PID %d: %w", pid, err)
	}
	if !processIsAlive(proc) {
		os.Remove(pidPath)
		return fmt.Errorf("server process %d is not running (stale PID file removed)", pid)
	}

	fmt.Fprintf(os.Stderr, "Stopping workbot server (PID %d)...\n", pid)
	if err := sendGracefulStop(proc); err != nil {
		return fmt.Errorf("failed to signal server: %w", err)
	}

	if waitForExit(proc, stopTimeout) {
		os.Remove(pidPath)
		fmt.Fprintln(os.Stderr, "Server stopped.")
		return nil
	}

	fmt.Fprintf(os.Stderr, "Server still running after %s, killing it.\n", stopTimeout)
	_ = proc.Kill()
	os.Remove(pidPath)
	return nil
}

// waitForExit polls until the process exits or the deadline passes.
func waitForExit(proc *os.Process, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processIsAlive(proc) {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return !processIsAlive(proc)
}
