// Package lockfile finds and parses the League client's per-session
// credentials file (spec.md §4.1, §3 "Lockfile"). Grounded on the
// teacher's own detection approach (companion/lcu.go pollForClient /
// detectClient, which shells out to PowerShell to find LeagueClientUx.exe)
// and on original_source/lcu/core/lockfile.py's search order and field
// layout.
package lockfile

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/aaronlol/chromabind/internal/procutil"
)

// ErrNotFound is returned when the search order in Find is exhausted.
var ErrNotFound = errors.New("lockfile: not found")

// ErrMalformed is returned when a file exists but does not parse.
var ErrMalformed = errors.New("lockfile: malformed")

// Lockfile is the parsed five-field credentials file (spec.md §3).
// Its contents are immutable once parsed: a later mtime change means
// credentials rotated and the whole Connection must be rebuilt, not this
// struct mutated in place.
type Lockfile struct {
	Path     string
	Name     string
	PID      int
	Port     int
	Password string
	Protocol string
}

const envVar = "LCU_LOCKFILE"

// commonPaths lists platform-conventional install locations, checked after
// the explicit path and environment variable (spec.md §4.1 step 3).
func commonPaths() []string {
	if runtime.GOOS == "windows" {
		return []string{
			`C:\Riot Games\League of Legends\lockfile`,
			`C:\Program Files\Riot Games\League of Legends\lockfile`,
			`C:\Program Files (x86)\Riot Games\League of Legends\lockfile`,
		}
	}
	home, _ := os.UserHomeDir()
	paths := []string{
		"/Applications/League of Legends.app/Contents/LoL/lockfile",
	}
	if home != "" {
		paths = append(paths, filepath.Join(home, ".local/share/League of Legends/lockfile"))
	}
	return paths
}

// Find implements the search order from spec.md §4.1: explicit path, env
// var, common install paths, then a process scan.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if isFile(explicit) {
			return explicit, nil
		}
	}

	if env := os.Getenv(envVar); env != "" {
		if isFile(env) {
			return env, nil
		}
	}

	for _, p := range commonPaths() {
		if isFile(p) {
			return p, nil
		}
	}

	if p, ok := findViaProcessScan(); ok {
		return p, nil
	}

	return "", ErrNotFound
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// findViaProcessScan looks for a running LeagueClientUx process and checks
// its directory (and parent) for a lockfile, mirroring the teacher's
// detectClient PowerShell query.
func findViaProcessScan() (string, bool) {
	exeDir, ok := procutil.FindProcessDir("LeagueClientUx.exe")
	if !ok {
		return "", false
	}
	for _, dir := range []string{exeDir, filepath.Dir(exeDir)} {
		candidate := filepath.Join(dir, "lockfile")
		if isFile(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// Parse reads the whole file as UTF-8 and splits on ':', taking five
// fields (spec.md §4.1 "Parsing"). Fewer than five fields, or a
// non-numeric pid/port, yields ErrMalformed.
func Parse(path string) (*Lockfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "lockfile: read")
	}

	content := strings.TrimRight(string(raw), "\r\n")
	parts := strings.Split(content, ":")
	if len(parts) < 5 {
		return nil, ErrMalformed
	}

	name := parts[0]
	pid, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, ErrMalformed
	}
	port, err := strconv.Atoi(parts[2])
	if err != nil || port < 1 || port > 65535 {
		return nil, ErrMalformed
	}
	password := parts[3]
	protocol := parts[4]

	return &Lockfile{
		Path:     path,
		Name:     name,
		PID:      pid,
		Port:     port,
		Password: password,
		Protocol: protocol,
	}, nil
}

// Mtime returns the lockfile's current modification time, used by the
// Connection to detect credential rotation (spec.md §3 "Lockfile"
// invariant).
func Mtime(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.ModTime().UnixNano(), nil
}
