// Package singleton implements the Single-Instance Guard (C11, spec.md
// §4.11). It replaces the teacher's named-mutex approach (main.go's
// acquireSingleInstanceLock, CreateMutexW/Global\ShowMeSkinsCompanion) with
// a create-exclusive (O_CREATE|O_EXCL) lock file holding the pid and start
// epoch. No OS advisory lock is taken: an existing file blocks a second
// instance only while its recorded pid is alive; otherwise it is treated as
// stale and replaced.
package singleton

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/aaronlol/chromabind/internal/procutil"
)

// ErrAlreadyRunning is returned by Acquire when a live instance holds the
// lock (spec.md §4.11 "refuse to start and surface a user-visible notice").
var ErrAlreadyRunning = errors.New("singleton: another instance is already running")

// Guard holds the single-instance lock file for the process's lifetime.
type Guard struct {
	path string
}

// Acquire create-exclusives the lock file at path. If the file exists and
// its recorded pid is no longer alive, the stale file is replaced and the
// lock is taken; otherwise ErrAlreadyRunning is returned (spec.md §4.11).
func Acquire(path string) (*Guard, error) {
	if err := os.MkdirAll(parentDir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "singleton: create lock dir")
	}

	g, err := tryCreate(path)
	if err == nil {
		return g, nil
	}
	if !os.IsExist(err) {
		return nil, errors.Wrap(err, "singleton: create lock file")
	}

	pid, _, readErr := readLock(path)
	if readErr == nil && procutil.IsPidAlive(pid) {
		return nil, ErrAlreadyRunning
	}

	// Stale: remove and retry once.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "singleton: remove stale lock")
	}
	g, err = tryCreate(path)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrAlreadyRunning // lost a race with another instance
		}
		return nil, errors.Wrap(err, "singleton: create lock file after stale removal")
	}
	return g, nil
}

func tryCreate(path string) (*Guard, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d\n%d\n", os.Getpid(), time.Now().Unix()); err != nil {
		os.Remove(path)
		return nil, err
	}
	return &Guard{path: path}, nil
}

func readLock(path string) (pid int, epoch int64, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) < 1 {
		return 0, 0, errors.New("singleton: malformed lock file")
	}
	pid, err = strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, 0, err
	}
	if len(lines) >= 2 {
		epoch, _ = strconv.ParseInt(strings.TrimSpace(lines[1]), 10, 64)
	}
	return pid, epoch, nil
}

// Release removes the lock file (spec.md §4.11 "Remove the file on
// graceful exit"). Safe to call more than once.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	os.Remove(g.path)
}

func parentDir(path string) string {
	idx := strings.LastIndexAny(path, `\/`)
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
