// Command chromabind is the headless bootstrap: parses flags, builds the
// supervision tree (Pre-Builder, Overlay Runner, Connection, Client, Commit
// Controller, Phase Tracker, Subscriber, Analytics Heartbeat), and tears it
// down on signal. Grounded on the
// teacher's main.go (onReady/onExit lifecycle, "no console by default"
// logging stance), adapted from a tray app to a headless CLI per
// SPEC_FULL.md's AMBIENT STACK section.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aaronlol/chromabind/internal/analytics"
	"github.com/aaronlol/chromabind/internal/commit"
	"github.com/aaronlol/chromabind/internal/config"
	"github.com/aaronlol/chromabind/internal/lcu"
	"github.com/aaronlol/chromabind/internal/namedb"
	"github.com/aaronlol/chromabind/internal/overlay"
	"github.com/aaronlol/chromabind/internal/phase"
	"github.com/aaronlol/chromabind/internal/prebuild"
	"github.com/aaronlol/chromabind/internal/singleton"
	"github.com/aaronlol/chromabind/internal/skins"
	"github.com/aaronlol/chromabind/internal/state"
)

// Version is set at build time via -ldflags "-X main.Version=0.3.1".
var Version = "0.0.0"

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		config.Usage()
		os.Exit(1)
	}

	// No console output by default, mirroring the teacher's "no console by
	// default" stance -- headless here, so the gate is --verbose/--debug
	// instead of a tray toggle.
	if cfg.Verbose || cfg.Debug {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	guard, err := singleton.Acquire(filepath.Join(cfg.AppDataDir, "chromabind.lock"))
	if err != nil {
		if err == singleton.ErrAlreadyRunning {
			fmt.Fprintln(os.Stderr, "chromabind: another instance is already running")
		} else {
			fmt.Fprintf(os.Stderr, "chromabind: fatal init error: %v\n", err)
		}
		os.Exit(1)
	}
	defer guard.Release()

	overlay.KillStaleRunoverlay()
	overlay.KillStaleModTools()

	names := namedb.New()
	if err := names.LoadChampions(cfg.MaxChampions); err != nil {
		log.Printf("[main] champion database load failed, name lookups degraded: %v", err)
	}
	if cfg.ForceUpdateSkins {
		names.ClearSkinMapping()
	}
	if cfg.SkinsRoot != "" {
		names.LoadSkinMapping(cfg.SkinsRoot, cfg.SkinLanguage)
	}

	resolver := skins.New(cfg.SkinsRoot, names)

	prebuiltRoot := filepath.Join(cfg.AppDataDir, "prebuilt")
	builder := prebuild.New(cfg.ToolsDir, cfg.GameDir, prebuiltRoot, resolver)
	builder.CleanupAllOverlays()

	runner := overlay.New(cfg.ToolsDir, cfg.GameDir)

	st := state.New()

	conn := lcu.NewConnection(cfg.Lockfile)
	client := lcu.NewClient(conn)

	controller := commit.New(st, resolver, builder, runner, client, names, cfg.SkinThresholdMs, cfg.TimerHz)

	killStale := func() {
		overlay.KillStaleRunoverlay()
		overlay.KillStaleModTools()
	}
	tracker := phase.New(st, client, runner, builder, killStale, controller)

	gameModeDetector := lcu.NewGameModeDetector(st, client)

	subscriber := lcu.NewSubscriber(conn, lcu.Handlers{
		OnGameflowPhase: tracker.OnGameflowPhaseEvent,
		OnChampSelect:   tracker.OnChampSelectSession,
		OnLobby:         gameModeDetector.OnLobby,
	})

	heartbeat := analytics.New(cfg.AnalyticsEndpoint, Version, cfg.AppDataDir, time.Duration(cfg.AnalyticsInterval)*time.Second)
	heartbeatStop := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())

	go subscriber.Run()
	go tracker.Run(ctx)
	go heartbeat.Run(heartbeatStop)

	log.Println("[main] chromabind started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("[main] shutdown signal received")

	shutdown(cancel, subscriber, st, builder, runner, heartbeatStop)
	log.Println("[main] shutdown complete")
}

// shutdown stops the stop flag, Subscriber, Phase Tracker, Pre-Builder,
// Overlay Runner and Heartbeat in that order. The whole sequence shares one
// shutdownTimeout budget (no per-step bound) and escalates to a forced exit
// if it overruns (spec.md §9 "graceful shutdown... forced-exit
// escalation").
func shutdown(cancel context.CancelFunc, subscriber *lcu.Subscriber, st *state.State, builder *prebuild.Builder, runner *overlay.Runner, heartbeatStop chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		st.Stop()
		subscriber.Stop()
		cancel()
		builder.CancelCurrentBuild()
		runner.StopOverlayProcess()
		close(heartbeatStop)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Println("[main] shutdown overran timeout, forcing exit")
		os.Exit(1)
	}
}
