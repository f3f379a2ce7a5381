//go:build !windows

package state

import "golang.org/x/sys/unix"

// flockLock takes an exclusive advisory lock on the lock file, retrying
// when a signal interrupts the wait.
func flockLock(fd uintptr) error {
	for {
		err := unix.Flock(int(fd), unix.LOCK_EX)
		if err != unix.EINTR {
			return err
		}
	}
}

func flockUnlock(fd uintptr) error {
	return unix.Flock(int(fd), unix.LOCK_UN)
}
