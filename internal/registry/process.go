package registry

import (
	"os"
	"syscall"
	"time"
)

// processAlive checks whether a process with the given PID exists.
// Signal 0 sends nothing but reports whether the process can be signaled.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}

// signalTerm delivers SIGTERM and reports whether the process accepted it.
// "No such process" counts as success: termination is idempotent.
func signalTerm(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.SIGTERM) == nil
}

// escalateAfterGrace waits out the grace period and sends SIGKILL if the
// process survived its SIGTERM.
func escalateAfterGrace(pid int, grace time.Duration) {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	if process, err := os.FindProcess(pid); err == nil {
		_ = process.Signal(syscall.SIGKILL)
	}
}
