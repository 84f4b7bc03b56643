//go:build windows

package cli

import (
	"os"
)

// isProcessRunning attempts to check whether a process is alive on Windows.
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Windows, FindProcess always succeeds; Signal only distinguishes a
	// finished process.
	err = proc.Signal(os.Interrupt)
	return err != os.ErrProcessDone
}

// stopProcess kills the process on Windows (no graceful SIGTERM support).
func stopProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
