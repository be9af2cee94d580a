// Package procutil holds the small set of OS-process helpers shared by the
// lockfile locator, the pre-builder, and the overlay runner: finding a
// process by executable name, hiding console windows for shelled-out
// tools, and killing stray processes left by a prior crashed session.
// Grounded on the teacher's companion/lcu.go (detectClient's PowerShell
// query, hiddenProcAttr) and original_source/main/core/cleanup.py
// (kill_all_modtools_processes).
package procutil

import (
	"os/exec"
	"strings"
)

// FindProcessDir shells out to PowerShell to find a running process by
// image name and returns the directory its executable lives in. Mirrors
// the teacher's Get-CimInstance Win32_Process query.
func FindProcessDir(imageName string) (dir string, ok bool) {
	out, err := runHidden("powershell", "-NoProfile", "-Command",
		"Get-CimInstance Win32_Process -Filter \"name='"+imageName+"'\" | Select-Object -ExpandProperty ExecutablePath")
	if err != nil || len(out) == 0 {
		return "", false
	}
	line := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if line == "" {
		return "", false
	}
	idx := strings.LastIndexAny(line, `\/`)
	if idx < 0 {
		return "", false
	}
	return line[:idx], true
}

// KillProcessByName terminates every running process with the given image
// name (case-insensitive), used to clean up a stray runoverlay/mod-tools
// process from a prior crashed session (spec.md §4.5 "* -> ChampSelect"
// cleanup, §4.9, S5).
func KillProcessByName(imageName string) {
	_, _ = runHidden("taskkill", "/IM", imageName, "/F", "/T")
}

func runHidden(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = HiddenProcAttr()
	return cmd.Output()
}
