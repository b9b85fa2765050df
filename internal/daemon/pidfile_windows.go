//go:build windows

package daemon

import (
	"os"
	"syscall"
)

// On Windows FindProcess always succeeds; probe with a zero signal.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Windows has no SIGTERM delivery; termination is a kill.
func terminate(pid int) error { return kill(pid) }

func kill(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
