//go:build windows

package cmd

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// stillActive is the exit code GetExitCodeProcess reports for a running process.
const stillActive = 259

// gracefulSignals returns the OS signals that trigger a graceful shutdown.
// Only os.Interrupt (CTRL_C_EVENT) is delivered on Windows.
func gracefulSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// runtimeDir is where the PID file lives: %LOCALAPPDATA%\rdportal when
// set, else the temp directory.
func runtimeDir() string {
	if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
		return filepath.Join(dir, "rdportal")
	}
	return filepath.Join(os.TempDir(), "rdportal")
}

// processIsAlive opens a query handle and checks the exit code.
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
	return exitCode == stillActive
}

// sendGracefulStop terminates the process. Windows has no SIGTERM, so the
// server's in-flight requests are cut off.
func sendGracefulStop(proc *os.Process) error {
	return proc.Kill()
}
