// Package commit implements the Commit Controller (C8, spec.md §4.8): the
// Disarmed/Armed/Fired state machine that fires exactly one injection per
// champion-select, timed against the server-provided loadout countdown.
// Grounded on original_source/threads/timer_manager.py (maybe_start_timer,
// the FINALIZATION probe) for the arm step, and on
// original_source/injection/prebuilder.py for the Pre-Build request this
// controller issues on the champion-locked edge.
package commit

import (
	"context"
	"log"
	"time"

	"github.com/aaronlol/chromabind/internal/lcu"
	"github.com/aaronlol/chromabind/internal/namedb"
	"github.com/aaronlol/chromabind/internal/overlay"
	"github.com/aaronlol/chromabind/internal/prebuild"
	"github.com/aaronlol/chromabind/internal/skins"
	"github.com/aaronlol/chromabind/internal/state"
)

// defaultTimerHz matches TIMER_HZ_DEFAULT in the original's config.
const defaultTimerHz = 10

// wsProbeIterations/wsProbeSleep mirror WS_PROBE_ITERATIONS/WS_PROBE_SLEEP_MS:
// when FINALIZATION arrives with adjustedTimeLeftInPhase<=0 (not yet
// populated by the client), poll the session a few times before giving up.
const (
	wsProbeIterations = 5
	wsProbeSleep      = 40 * time.Millisecond
)

// Prebuilder is the subset of prebuild.Builder the controller needs.
type Prebuilder interface {
	Prebuild(championName string, championID int, ownedSkinSet map[int]struct{}) bool
	PrebuiltOverlayPath(championName, skinName string) (string, bool)
	CleanupUnusedOverlays(championName, usedSkinName string)
}

// OverlayStarter is the subset of overlay.Runner the controller needs.
type OverlayStarter interface {
	Start(overlayDir string) error
}

// SessionFetcher lets the controller re-probe the session during the
// FINALIZATION value-not-ready window (timer_manager.py's probe loop), and
// refresh the owned-skin set on the champion-locked edge (spec.md §3
// "OwnedSkinSet... Mutated only on the ChampSelect/champion-locked edge").
type SessionFetcher interface {
	ChampSelectSession(ctx context.Context) (*lcu.ChampSelectSession, error)
	OwnedSkinIDs(ctx context.Context) ([]int, error)
	MySelection(ctx context.Context) (int, error)
}

// Controller runs the Armed/Disarmed/Fired state machine and its ticker.
// It implements phase.SessionHandler: the Phase Tracker (C5) is the sole
// reader of champ-select session snapshots and the sole writer of
// processed_action_ids (spec.md §9 open question), and forwards the
// hover/lock/timer facts it extracts here via these callbacks.
type Controller struct {
	st        *state.State
	resolver  *skins.Resolver
	prebuild  Prebuilder
	runner    OverlayStarter
	fetcher   SessionFetcher
	names     *namedb.DB

	thresholdMs int
	timerHz     float64
	fallbackMs  int

	tickerStop chan struct{}
}

// New builds a Controller. thresholdMs and timerHz come from CLI flags
// (spec.md §6 --skin-threshold-ms, --timer-hz).
func New(st *state.State, resolver *skins.Resolver, pb Prebuilder, runner OverlayStarter, fetcher SessionFetcher, names *namedb.DB, thresholdMs int, timerHz float64) *Controller {
	if timerHz <= 0 {
		timerHz = defaultTimerHz
	}
	return &Controller{
		st: st, resolver: resolver, prebuild: pb, runner: runner, fetcher: fetcher, names: names,
		thresholdMs: thresholdMs, timerHz: timerHz, fallbackMs: 3000,
	}
}

// OnHover records the local player's current champion/skin hover (spec.md
// §4.8 hover tracking, tier (b) of the Commit step's priority order). Called
// by the Phase Tracker for every champ-select session snapshot. The
// chroma-panel confirmed selection (tier (a)) is a distinct value, populated
// separately from /lol-champ-select/v1/session/my-selection.
func (c *Controller) OnHover(championID, skinID int) {
	if championID > 0 {
		c.st.SetHoveredChampion(championID)
	}
	if skinID > 0 {
		c.st.SetLastHoveredSkinID(skinID)
	}
}

// OnChampionLocked is called by the Phase Tracker on the champion-locked
// edge it detected (the single processed_action_ids write already
// happened there). It requests a Pre-Build for the locked champion
// (spec.md §4.8 "champion locked" transition, grounded on
// original_source/injection/prebuilder.py's Pre-Build request trigger).
func (c *Controller) OnChampionLocked(championID int) {
	overlay.KillStaleRunoverlay()
	c.refreshOwnedSkins()
	if champ, ok := c.names.ChampionByID(championID); ok {
		owned := c.st.OwnedSkins()
		go c.prebuild.Prebuild(champ.Name, championID, owned)
	}
}

// OnSessionTimer is called by the Phase Tracker with each snapshot's timer
// phase/adjustedTimeLeftInPhase, the FINALIZATION arm condition input
// (spec.md §4.8, grounded on timer_manager.py's maybe_start_timer).
func (c *Controller) OnSessionTimer(phase string, adjustedTimeLeftMs int) {
	c.maybeArm(phase, adjustedTimeLeftMs)
}

// refreshOwnedSkins re-fetches the owned-skin set on the champion-locked
// edge (spec.md §3). Best-effort: a fetch failure just leaves the
// previous snapshot in place.
func (c *Controller) refreshOwnedSkins() {
	if c.fetcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ids, err := c.fetcher.OwnedSkinIDs(ctx)
	if err != nil || ids == nil {
		return
	}
	c.st.SetOwnedSkins(ids)
}

// refreshMySelection probes /lol-champ-select/v1/session/my-selection for
// the chroma-panel confirmed skin (tier (a) of the Commit step's priority
// order, spec.md §4.8). Best-effort: an unresolved or absent selection just
// leaves SelectedSkinID at whatever it was already set to.
func (c *Controller) refreshMySelection() {
	if c.fetcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	id, err := c.fetcher.MySelection(ctx)
	if err == nil && id > 0 {
		c.st.SetSelectedSkinID(id)
	}
}

// maybeArm implements timer_manager.py's maybe_start_timer: only starts the
// countdown on a FINALIZATION snapshot, probing a few times if the
// remaining-time value hasn't been populated yet.
func (c *Controller) maybeArm(phase string, leftMs int) {
	if phase != "FINALIZATION" {
		return
	}

	c.refreshMySelection()

	if leftMs <= 0 && c.fetcher != nil {
		for i := 0; i < wsProbeIterations; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			probed, err := c.fetcher.ChampSelectSession(ctx)
			cancel()
			if err == nil && probed != nil && probed.Timer.Phase == "FINALIZATION" && probed.Timer.AdjustedTimeLeftInPhase > 0 {
				leftMs = probed.Timer.AdjustedTimeLeftInPhase
				break
			}
			time.Sleep(wsProbeSleep)
		}
	}

	if leftMs <= 0 {
		return
	}

	tickerID, started := c.st.StartLoadoutCountdown(leftMs, time.Now())
	if !started {
		return // Armed->Armed self-loop rejected (spec.md §4.8 tie-breaking)
	}

	log.Printf("[commit] armed ticker=%d remaining=%dms hz=%.1f", tickerID, leftMs, c.timerHz)
	go c.runTicker(tickerID)
}

// runTicker polls the countdown at timerHz and fires the commit once
// remaining time drops to the threshold (spec.md §4.8 "Ticker"). It is
// single-instance: a tick whose tickerID no longer matches the active
// ticker exits immediately.
func (c *Controller) runTicker(tickerID int) {
	interval := time.Duration(float64(time.Second) / c.timerHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	const staleWindow = 2 * time.Second

	for range ticker.C {
		if c.st.Stopped() {
			return
		}
		snap := c.st.Loadout()
		if snap.TickerID != tickerID || !snap.Active {
			return
		}

		elapsed := time.Since(snap.T0)
		remainMs := snap.Left0Ms - int(elapsed.Milliseconds())
		if elapsed > staleWindow && remainMs < 0 {
			remainMs = c.fallbackMs
		}

		if remainMs > c.thresholdMs {
			continue
		}

		if c.st.TryFire(tickerID) {
			c.commit()
			return
		}
		return
	}
}

// commit selects the overlay to use, per the order in spec.md §4.8
// "Commit step": (a) chroma-panel confirmed selection, (b) last-hovered
// skinId, (c) random mode, (d) historic skin id, (e) no-op. State holds no
// random-mode skin of its own: when random mode is active, tier (c) yields
// the historic skin id, the same value tier (d) would.
func (c *Controller) commit() {
	champID, _ := c.st.LockedChampion()
	if champID == 0 {
		champID = c.st.HoveredChampion()
	}
	if champID == 0 {
		log.Println("[commit] no locked/hovered champion, skipping")
		return
	}

	skinID := c.selectSkinID()
	if skinID == 0 {
		log.Println("[commit] no skin selection available (hover/chroma/random/historic all empty), skipping")
		return
	}

	champ, ok := c.names.ChampionByID(champID)
	championName := champ.Name
	if !ok {
		championName = ""
	}

	skinName, err := c.resolver.ArchiveForSkinID(champID, skinID)
	if err != nil {
		log.Printf("[commit] could not resolve archive for skin %d: %v", skinID, err)
		return
	}

	if dir, ok := c.prebuild.PrebuiltOverlayPath(championName, skinName.Name); ok {
		c.launch(dir, championName, skinName.Name)
		return
	}

	// Fall back to a synchronous build within the remaining budget
	// (spec.md §4.8 "an eventuality when the hover occurred late").
	log.Printf("[commit] no pre-built overlay for %s, building synchronously", skinName.Name)
	// Synchronous fallback reuses the same Prebuild path, which builds every
	// candidate archive of the champion, not only this skin. Prebuild
	// returns false at once if a build for this champion is still running.
	owned := c.st.OwnedSkins()
	if !c.prebuild.Prebuild(championName, champID, owned) {
		log.Printf("[commit] synchronous fallback build failed, skipping commit")
		return
	}
	if dir, ok := c.prebuild.PrebuiltOverlayPath(championName, skinName.Name); ok {
		c.launch(dir, championName, skinName.Name)
		return
	}
	log.Printf("[commit] synchronous fallback did not produce %s, no-op", skinName.Name)
}

func (c *Controller) launch(overlayDir, championName, skinName string) {
	if err := c.runner.Start(overlayDir); err != nil {
		log.Printf("[commit] failed to start overlay: %v", err)
		return
	}
	log.Printf("[commit] fired: %s %s", championName, skinName)
	c.prebuild.CleanupUnusedOverlays(championName, skinName)
}

func (c *Controller) selectSkinID() int {
	if id := c.st.SelectedSkinID(); id > 0 {
		return id
	}
	if id := c.st.LastHoveredSkinID(); id > 0 {
		return id
	}
	if c.st.RandomModeActive() {
		if id := c.st.HistoricSkinID(); id > 0 {
			return id
		}
	}
	if id := c.st.HistoricSkinID(); id > 0 {
		return id
	}
	return 0
}
