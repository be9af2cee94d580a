//go:build windows

package procutil

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// HiddenProcAttr returns a SysProcAttr that hides the console window of a
// shelled-out process. Adapted from the teacher's hiddenProcAttr in
// companion/lcu.go.
func HiddenProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{HideWindow: true}
}

// IsPidAlive reports whether a process with the given pid is still running,
// used by the Single-Instance Guard (C11) to tell a stale lock file from a
// live one (spec.md §4.11).
func IsPidAlive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == uint32(259) // STILL_ACTIVE
}
