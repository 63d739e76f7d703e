//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

// gracefulSignals lists the signals that trigger a clean shutdown.
func gracefulSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// processIsAlive reports whether the process still exists. Signal 0
// performs the existence check without delivering anything.
func processIsAlive(proc *os.Process) bool {
	return proc.Signal(syscall.Signal(0)) == nil
}

// sendGracefulStop asks the process to shut down cleanly.
func sendGracefulStop(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
