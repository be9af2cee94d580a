// Package config parses the CLI surface described in spec.md §6. Grounded
// on the teacher's flag usage patterns (companion uses hard-coded
// constants; this module promotes the tunables the spec calls out to
// flags using the standard library's flag package, the teacher's choice
// of CLI library everywhere else in the pack).
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Config holds every flag from spec.md §6, plus the handful of
// user-configurable filesystem roots spec.md §4.6/§4.7/§4.11 refer to
// ("root directory (user-configurable)", "a single configurable tools
// directory") but does not name as flags explicitly.
type Config struct {
	Lockfile         string
	PhaseHz          float64
	WSPing           int
	TimerHz          float64
	SkinThresholdMs  int
	DownloadSkins    bool
	ForceUpdateSkins bool
	MaxChampions     int
	Verbose          bool
	Debug            bool

	SkinsRoot          string
	ToolsDir           string
	GameDir            string
	AppDataDir         string
	AnalyticsEndpoint  string
	AnalyticsInterval  int
	SkinLanguage       string
}

// Parse parses args (normally os.Args[1:]) into a Config, applying the
// defaults named across spec.md §4-§6.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("chromabind", flag.ContinueOnError)

	c := &Config{}
	fs.StringVar(&c.Lockfile, "lockfile", "", "explicit path to the LCU lockfile")
	fs.Float64Var(&c.PhaseHz, "phase-hz", 1.0, "gameflow-phase polling fallback frequency (parsed but unused: the phase tracker polls at a fixed 1 Hz)")
	fs.IntVar(&c.WSPing, "ws-ping", 15, "websocket reconnect probe interval in seconds (parsed but unused: the subscriber redials after a fixed 3 s)")
	fs.Float64Var(&c.TimerHz, "timer-hz", 10, "commit ticker frequency")
	fs.IntVar(&c.SkinThresholdMs, "skin-threshold-ms", 250, "commit when remaining loadout time drops to this threshold")
	fs.BoolVar(&c.DownloadSkins, "download-skins", true, "allow downloading missing skin archives (parsed but unused: nothing is downloaded)")
	noDownload := fs.Bool("no-download-skins", false, "disable downloading missing skin archives (sets download-skins to false)")
	fs.BoolVar(&c.ForceUpdateSkins, "force-update-skins", false, "drop the cached skin-name mapping and reload it from skins-root at startup (nothing is downloaded)")
	fs.IntVar(&c.MaxChampions, "max-champions", 0, "cap the number of champions loaded from Data Dragon (0 = unlimited)")
	fs.BoolVar(&c.Verbose, "verbose", false, "enable verbose logging")
	fs.BoolVar(&c.Debug, "debug", false, "enable debug logging")

	defaultAppData := defaultAppDataDir()
	fs.StringVar(&c.SkinsRoot, "skins-root", "", "root directory of <championId>/<skinId>/... mod archives")
	fs.StringVar(&c.ToolsDir, "tools-dir", "", "directory containing mod-tools.exe and runoverlay.exe")
	fs.StringVar(&c.GameDir, "game-dir", "", "League of Legends game install directory")
	fs.StringVar(&c.AppDataDir, "app-data-dir", defaultAppData, "writable directory for the single-instance lock and persisted machine id")
	fs.StringVar(&c.AnalyticsEndpoint, "analytics-endpoint", "", "heartbeat POST target (empty disables the heartbeat)")
	fs.IntVar(&c.AnalyticsInterval, "analytics-interval", 3600, "heartbeat interval in seconds")
	fs.StringVar(&c.SkinLanguage, "skin-language", "en_US", "language directory under skins-root/skinid_mapping to load")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *noDownload {
		c.DownloadSkins = false
	}
	return c, nil
}

// Usage writes a one-line usage summary to stderr, used on parse failure.
// The per-flag help is printed by the flag set itself when parsing fails.
func Usage() {
	fmt.Fprintln(os.Stderr, "usage: chromabind [flags]")
}

func defaultAppDataDir() string {
	if runtime.GOOS == "windows" {
		if v := os.Getenv("LOCALAPPDATA"); v != "" {
			return filepath.Join(v, "chromabind")
		}
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return ".chromabind"
	}
	return filepath.Join(home, ".chromabind")
}
