//go:build !windows

package procutil

import (
	"os"
	"syscall"
)

// HiddenProcAttr is a no-op off Windows; there is no console window to hide.
func HiddenProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

// IsPidAlive reports whether a process with the given pid is still running,
// used by the Single-Instance Guard (C11) to tell a stale lock file from a
// live one (spec.md §4.11). Signal 0 performs existence/permission checks
// without actually delivering a signal.
func IsPidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
