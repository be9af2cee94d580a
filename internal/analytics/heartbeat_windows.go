//go:build windows

package analytics

import "golang.org/x/sys/windows/registry"

// windowsMachineGUID reads HKLM\SOFTWARE\Microsoft\Cryptography\MachineGuid,
// the standard OS-stable per-machine identifier on Windows. Repurposes the
// teacher's registry import (main.go used it for the auto-launch Run key).
func windowsMachineGUID() (string, bool) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Cryptography`, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err != nil {
		return "", false
	}
	defer k.Close()

	guid, _, err := k.GetStringValue("MachineGuid")
	if err != nil || guid == "" {
		return "", false
	}
	return guid, true
}
