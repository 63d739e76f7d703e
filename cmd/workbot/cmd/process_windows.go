//go:build windows

package cmd

import (
	"os"

	"golang.org/x/sys/windows"
)

// gracefulSignals lists the signals that trigger a clean shutdown.
// Windows only delivers os.Interrupt (Ctrl+C); SIGTERM does not exist here.
func gracefulSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// processIsAlive reports whether the process still exists by opening a
// handle and inspecting its exit code.
func processIsAlive(proc *os.Process) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(proc.Pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	// STILL_ACTIVE (259) means the process has not exited yet.
	return exitCode == 259
}

// sendGracefulStop terminates the process. Kill maps to TerminateProcess;
// there is no graceful signal to send on Windows.
func sendGracefulStop(proc *os.Process) error {
	return proc.Kill()
}
