//go:build !windows

package daemon

import "syscall"

// Signal 0 tests if the process exists without sending a signal.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func terminate(pid int) error { return syscall.Kill(pid, syscall.SIGTERM) }

func kill(pid int) error { return syscall.Kill(pid, syscall.SIGKILL) }
