//go:build windows

package state

import "golang.org/x/sys/windows"

// lockedRange is the single byte LockFileEx guards. The whole state file is
// protected through it.
const lockedRange = 1

// flockLock blocks until the exclusive lock is held.
func flockLock(fd uintptr) error {
	var ol windows.Overlapped
	return windows.LockFileEx(windows.Handle(fd), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, lockedRange, 0, &ol)
}

func flockUnlock(fd uintptr) error {
	var ol windows.Overlapped
	return windows.UnlockFileEx(windows.Handle(fd), 0, lockedRange, 0, &ol)
}
