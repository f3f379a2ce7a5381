//go:build !windows

package cmd

import (
	"os"
	"path/filepath"
	"syscall"
)

// gracefulSignals returns the OS signals that trigger a graceful shutdown:
// SIGINT (Ctrl+C) and SIGTERM (rdportal stop, systemd, docker stop).
func gracefulSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// runtimeDir is where the PID file lives: $XDG_RUNTIME_DIR/rdportal when
// set, else ~/.rdportal.
func runtimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "rdportal")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".rdportal")
	}
	return filepath.Join(os.TempDir(), "rdportal")
}

// processIsAlive probes the process with signal 0.
func processIsAlive(proc *os.Process) bool {
	return proc.Signal(syscall.Signal(0)) == nil
}

// sendGracefulStop asks the server to shut down with SIGTERM.
func sendGracefulStop(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
