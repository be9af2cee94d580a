// Package analytics implements the Analytics Heartbeat (C12, spec.md
// §4.12): a background task sending a periodic {machine_id, app_version}
// POST. It shares the supervision tree's lifecycle but no other component
// depends on it. Machine id resolution repurposes the teacher's Windows
// registry import (main.go used golang.org/x/sys/windows/registry for
// auto-launch; here it reads the stable per-machine MachineGuid instead).
package analytics

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
)

// Heartbeat periodically POSTs {machine_id, app_version} to endpoint.
// Failure is never fatal (spec.md §4.12).
type Heartbeat struct {
	endpoint   string
	appVersion string
	interval   time.Duration
	client     *http.Client
	machineID  string
}

// New builds a Heartbeat. appDataDir is used to persist a fallback random
// machine id if no OS-stable identifier is available.
func New(endpoint, appVersion, appDataDir string, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		endpoint:   endpoint,
		appVersion: appVersion,
		interval:   interval,
		client:     &http.Client{Timeout: 10 * time.Second},
		machineID:  resolveMachineID(appDataDir),
	}
}

type payload struct {
	MachineID  string `json:"machine_id"`
	AppVersion string `json:"app_version"`
}

// Run sends one heartbeat immediately, then every interval, until stop is
// closed.
func (h *Heartbeat) Run(stop <-chan struct{}) {
	if h.endpoint == "" {
		return
	}
	h.send()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.send()
		}
	}
}

func (h *Heartbeat) send() {
	body, err := json.Marshal(payload{MachineID: h.machineID, AppVersion: h.appVersion})
	if err != nil {
		return
	}
	resp, err := h.client.Post(h.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[analytics] heartbeat failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[analytics] heartbeat rejected: status=%d", resp.StatusCode)
	}
}

// resolveMachineID tries an OS-stable identifier first, falling back to a
// random UUID persisted under appDataDir (spec.md §4.12).
func resolveMachineID(appDataDir string) string {
	if runtime.GOOS == "windows" {
		if id, ok := windowsMachineGUID(); ok {
			return id
		}
	}
	return persistedRandomID(appDataDir)
}

func persistedRandomID(appDataDir string) string {
	path := filepath.Join(appDataDir, "machine_id")
	if raw, err := os.ReadFile(path); err == nil {
		id := string(bytes.TrimSpace(raw))
		if id != "" {
			return id
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(appDataDir, 0o755); err == nil {
		_ = os.WriteFile(path, []byte(id), 0o644)
	}
	return id
}
