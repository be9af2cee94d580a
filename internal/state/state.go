// Package state holds the process-wide mutable facts every other component
// reads and writes. It replaces the module-global caches the Python source
// relied on (main/core/state.py, state/shared_state.py) with a single record
// owned by the application bootstrap and handed out by reference.
package state

import (
	"sync"
	"time"
)

// Phase is the gameflow state machine's sum type (spec.md §3, GameflowPhase).
type Phase string

const (
	PhaseNone           Phase = "None"
	PhaseLobby          Phase = "Lobby"
	PhaseMatchmaking    Phase = "Matchmaking"
	PhaseReadyCheck      Phase = "ReadyCheck"
	PhaseChampSelect    Phase = "ChampSelect"
	PhaseFinalization   Phase = "Finalization"
	PhaseInProgress     Phase = "InProgress"
	PhaseWaitingForStats Phase = "WaitingForStats"
	PhasePreEndOfGame   Phase = "PreEndOfGame"
	PhaseEndOfGame      Phase = "EndOfGame"
)

// Other wraps an unrecognized phase name the client reported.
func Other(raw string) Phase { return Phase(raw) }

// CommitState is the Commit Controller's own small state machine (spec.md §4.8).
type CommitState int

const (
	Disarmed CommitState = iota
	Armed
	Fired
)

func (c CommitState) String() string {
	switch c {
	case Disarmed:
		return "Disarmed"
	case Armed:
		return "Armed"
	case Fired:
		return "Fired"
	default:
		return "Unknown"
	}
}

// State is the shared rendezvous point described in spec.md §4.10. Each
// field has exactly one writer class; the three mutexes below partition the
// fields into the lock groups the spec names (timer_lock, locks_lock,
// owned_skins_lock). Readers needing a cross-group snapshot must acquire
// locks in the fixed order timerMu -> locksMu -> ownedMu to stay
// deadlock-free (spec.md §4.10 and §5).
type State struct {
	// stop is read by every long-lived loop as its primary exit condition.
	stop atomicBool

	// --- timerMu group: phase, commit/ticker bookkeeping, hover/selection ---
	timerMu sync.Mutex

	phase Phase

	hoveredChampID int
	lockedChampID  int
	ownChampLocked bool

	selectedSkinID   int
	lastHoveredSkinID int
	historicSkinID   int
	randomModeActive bool

	loadoutCountdownActive bool
	loadoutT0              time.Time
	loadoutLeft0Ms         int
	tickerSeq              int
	currentTicker          int

	commitState       CommitState
	injectionCompleted bool

	currentGameMode string
	currentMapID    int
	isSwiftplay     bool

	// --- locksMu group: per-cell lock state, processed actions ---
	locksMu sync.Mutex

	locksByCell        map[int]bool
	processedActionIDs map[int]struct{}

	// --- ownedMu group: owned-skin set ---
	ownedMu sync.Mutex

	ownedSkinIDs map[int]struct{}

	// swiftplaySlots is written by the lobby-mode detector and read when
	// syncing player-slots (supplemented feature, see SPEC_FULL.md).
	swiftplaySlotsMu sync.Mutex
	swiftplaySlots   []int
}

// New returns an empty State with all maps allocated.
func New() *State {
	return &State{
		locksByCell:        make(map[int]bool),
		processedActionIDs: make(map[int]struct{}),
		ownedSkinIDs:       make(map[int]struct{}),
	}
}

// ── stop flag ────────────────────────────────────────────────────────────

func (s *State) Stop()        { s.stop.Set(true) }
func (s *State) Stopped() bool { return s.stop.Get() }

// ── phase ────────────────────────────────────────────────────────────────

func (s *State) Phase() Phase {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.phase
}

func (s *State) SetPhase(p Phase) {
	s.timerMu.Lock()
	s.phase = p
	s.timerMu.Unlock()
}

// ── champion / skin hover & lock ─────────────────────────────────────────

func (s *State) HoveredChampion() int {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.hoveredChampID
}

func (s *State) SetHoveredChampion(id int) {
	s.timerMu.Lock()
	s.hoveredChampID = id
	s.timerMu.Unlock()
}

func (s *State) LockedChampion() (id int, locked bool) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.lockedChampID, s.ownChampLocked
}

func (s *State) SetLockedChampion(id int) {
	s.timerMu.Lock()
	s.lockedChampID = id
	s.ownChampLocked = id > 0
	s.timerMu.Unlock()
}

func (s *State) SelectedSkinID() int {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.selectedSkinID
}

func (s *State) SetSelectedSkinID(id int) {
	s.timerMu.Lock()
	s.selectedSkinID = id
	s.timerMu.Unlock()
}

func (s *State) LastHoveredSkinID() int {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.lastHoveredSkinID
}

func (s *State) SetLastHoveredSkinID(id int) {
	s.timerMu.Lock()
	s.lastHoveredSkinID = id
	s.timerMu.Unlock()
}

func (s *State) HistoricSkinID() int {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.historicSkinID
}

func (s *State) SetHistoricSkinID(id int) {
	s.timerMu.Lock()
	s.historicSkinID = id
	s.timerMu.Unlock()
}

func (s *State) RandomModeActive() bool {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.randomModeActive
}

func (s *State) SetRandomModeActive(v bool) {
	s.timerMu.Lock()
	s.randomModeActive = v
	s.timerMu.Unlock()
}

// ── loadout countdown / ticker ───────────────────────────────────────────

// LoadoutSnapshot is a consistent read of the countdown fields used by the
// ticker to compute remaining time (spec.md §4.8 TickerState).
type LoadoutSnapshot struct {
	Active   bool
	T0       time.Time
	Left0Ms  int
	TickerID int
}

func (s *State) Loadout() LoadoutSnapshot {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return LoadoutSnapshot{
		Active:   s.loadoutCountdownActive,
		T0:       s.loadoutT0,
		Left0Ms:  s.loadoutLeft0Ms,
		TickerID: s.currentTicker,
	}
}

// StartLoadoutCountdown arms the countdown and allocates a new strictly
// increasing ticker id (spec.md §4.8, §8 property 6). Returns false if a
// countdown is already active (Armed→Armed self-loop, spec.md §4.8).
func (s *State) StartLoadoutCountdown(left0Ms int, now time.Time) (tickerID int, started bool) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.loadoutCountdownActive {
		return s.currentTicker, false
	}
	s.loadoutLeft0Ms = left0Ms
	s.loadoutT0 = now
	s.tickerSeq++
	s.currentTicker = s.tickerSeq
	s.loadoutCountdownActive = true
	s.commitState = Armed
	return s.currentTicker, true
}

// StopLoadoutCountdown disarms the countdown (leaving ChampSelect, or after
// a commit). Does not touch injectionCompleted.
func (s *State) StopLoadoutCountdown() {
	s.timerMu.Lock()
	s.loadoutCountdownActive = false
	s.timerMu.Unlock()
}

// GetCommitState returns the Commit Controller's current state.
func (s *State) GetCommitState() CommitState {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.commitState
}

func (s *State) SetCommitState(cs CommitState) {
	s.timerMu.Lock()
	s.commitState = cs
	s.timerMu.Unlock()
}

// TryFire is the atomic check-and-set for the single-shot commit (spec.md
// §5 "exactly-one commit"). It succeeds only if tickerID matches the
// currently active ticker, the controller is Armed, and the injection has
// not already completed this champion-select. On success it transitions
// Armed→Fired and sets injectionCompleted, atomically with respect to any
// other tick callback.
func (s *State) TryFire(tickerID int) bool {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if tickerID != s.currentTicker {
		return false
	}
	if s.commitState != Armed {
		return false
	}
	if s.injectionCompleted {
		return false
	}
	s.commitState = Fired
	s.injectionCompleted = true
	s.loadoutCountdownActive = false
	return true
}

func (s *State) InjectionCompleted() bool {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.injectionCompleted
}

// ResetForChampSelect clears every field owned by the phase/commit pipeline
// on `* -> ChampSelect` entry (spec.md §4.5). Only the Phase Tracker calls
// this (see DESIGN.md open-question note on processed_action_ids
// ownership).
func (s *State) ResetForChampSelect() {
	s.timerMu.Lock()
	s.hoveredChampID = 0
	s.lockedChampID = 0
	s.ownChampLocked = false
	s.selectedSkinID = 0
	s.lastHoveredSkinID = 0
	s.loadoutCountdownActive = false
	s.commitState = Disarmed
	s.injectionCompleted = false
	s.timerMu.Unlock()

	s.locksMu.Lock()
	for k := range s.locksByCell {
		delete(s.locksByCell, k)
	}
	for k := range s.processedActionIDs {
		delete(s.processedActionIDs, k)
	}
	s.locksMu.Unlock()

	s.ownedMu.Lock()
	for k := range s.ownedSkinIDs {
		delete(s.ownedSkinIDs, k)
	}
	s.ownedMu.Unlock()
}

// ResetForChampSelectExit clears the scratch fields on any other terminal
// transition out of ChampSelect (spec.md §4.5 "any other terminal
// transition").
func (s *State) ResetForChampSelectExit() {
	s.timerMu.Lock()
	s.hoveredChampID = 0
	s.lockedChampID = 0
	s.ownChampLocked = false
	s.loadoutCountdownActive = false
	s.commitState = Disarmed
	s.timerMu.Unlock()

	s.locksMu.Lock()
	for k := range s.locksByCell {
		delete(s.locksByCell, k)
	}
	s.locksMu.Unlock()
}

// ── per-cell locks / processed actions ───────────────────────────────────

func (s *State) SetCellLocked(cellID int, locked bool) {
	s.locksMu.Lock()
	s.locksByCell[cellID] = locked
	s.locksMu.Unlock()
}

func (s *State) CellLocked(cellID int) bool {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return s.locksByCell[cellID]
}

// MarkActionProcessed records an action id as handled and reports whether
// it was new (i.e. the champion-locked edge should fire). Only the Phase
// Tracker writes processed_action_ids (spec.md §9 open question: "any
// other writer is a latent race"); the Commit Controller receives the
// resulting lock edge as a callback instead of reading session actions
// itself.
func (s *State) MarkActionProcessed(actionID int) (isNew bool) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if _, ok := s.processedActionIDs[actionID]; ok {
		return false
	}
	s.processedActionIDs[actionID] = struct{}{}
	return true
}

// ── owned skins ──────────────────────────────────────────────────────────

func (s *State) SetOwnedSkins(ids []int) {
	s.ownedMu.Lock()
	s.ownedSkinIDs = make(map[int]struct{}, len(ids))
	for _, id := range ids {
		s.ownedSkinIDs[id] = struct{}{}
	}
	s.ownedMu.Unlock()
}

// OwnedSkins returns a snapshot copy, safe for the caller to range over
// without holding the lock.
func (s *State) OwnedSkins() map[int]struct{} {
	s.ownedMu.Lock()
	defer s.ownedMu.Unlock()
	out := make(map[int]struct{}, len(s.ownedSkinIDs))
	for id := range s.ownedSkinIDs {
		out[id] = struct{}{}
	}
	return out
}

// ── swiftplay / game mode ────────────────────────────────────────────────

func (s *State) SetGameMode(mode string, mapID int, isSwiftplay bool) {
	s.timerMu.Lock()
	s.currentGameMode = mode
	s.currentMapID = mapID
	s.isSwiftplay = isSwiftplay
	s.timerMu.Unlock()
}

func (s *State) GameMode() (mode string, mapID int, isSwiftplay bool) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	return s.currentGameMode, s.currentMapID, s.isSwiftplay
}

func (s *State) SetSwiftplaySlots(ids []int) {
	s.swiftplaySlotsMu.Lock()
	s.swiftplaySlots = append([]int(nil), ids...)
	s.swiftplaySlotsMu.Unlock()
}

func (s *State) SwiftplaySlots() []int {
	s.swiftplaySlotsMu.Lock()
	defer s.swiftplaySlotsMu.Unlock()
	return append([]int(nil), s.swiftplaySlots...)
}

// atomicBool is a tiny helper so Stop()/Stopped() don't need their own
// named mutex group (it's orthogonal to the three lock groups above).
type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (a *atomicBool) Set(v bool) {
	a.mu.Lock()
	a.v = v
	a.mu.Unlock()
}

func (a *atomicBool) Get() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}
