// Package overlay implements the Overlay Runner (C9, spec.md §4.9): spawns
// the external runoverlay process against a chosen overlay directory and
// owns its single process handle. Grounded on the teacher's main.go
// subprocess patterns and original_source/main/core/cleanup.py's
// kill_all_modtools_processes for the stop half.
package overlay

import (
	"log"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/aaronlol/chromabind/internal/procutil"
)

const stopWaitTimeout = 5 * time.Second

// Runner owns at most one live runoverlay process at a time.
type Runner struct {
	toolsDir string
	gameDir  string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// New builds a Runner. toolsDir holds runoverlay.exe; gameDir is the game
// install directory passed through to the tool.
func New(toolsDir, gameDir string) *Runner {
	return &Runner{toolsDir: toolsDir, gameDir: gameDir}
}

// Start spawns runoverlay against overlayDir. Failure to spawn is reported,
// not retried (spec.md §4.9). Any previously running process is stopped
// first (single-owner handle).
func (r *Runner) Start(overlayDir string) error {
	r.StopOverlayProcess()

	exePath := filepath.Join(r.toolsDir, "runoverlay.exe")
	cmd := exec.Command(exePath, overlayDir, "--game:"+r.gameDir)
	cmd.SysProcAttr = procutil.HiddenProcAttr()

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "overlay: failed to start runoverlay")
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	log.Printf("[overlay] started runoverlay pid=%d dir=%s", cmd.Process.Pid, overlayDir)
	return nil
}

// StopOverlayProcess terminates the owned process, if any, and waits
// (bounded) for exit. Idempotent: calling it with no process running is a
// no-op (spec.md §4.9, §5 "Shared-resource policy").
func (r *Runner) StopOverlayProcess() {
	r.mu.Lock()
	cmd := r.cmd
	r.cmd = nil
	r.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	if err := cmd.Process.Kill(); err != nil {
		log.Printf("[overlay] kill error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopWaitTimeout):
		log.Printf("[overlay] runoverlay did not exit within %s", stopWaitTimeout)
	}
}

// Running reports whether a process handle is currently owned.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmd != nil
}

// KillStaleRunoverlay kills any runoverlay.exe left by a prior crashed
// session, before this Runner has ever spawned one (spec.md §4.8 "If the
// external process from a previous run is detected, it is terminated
// before arming", §4.5 ChampSelect entry cleanup).
func KillStaleRunoverlay() {
	procutil.KillProcessByName("runoverlay.exe")
}

// KillStaleModTools kills any mod-tools.exe left running by a prior
// crashed pre-build, used at startup (spec.md §9 stale-process detection,
// supplemented from original_source/main/core/cleanup.py).
func KillStaleModTools() {
	procutil.KillProcessByName("mod-tools.exe")
}
