// Package phase implements the Phase Tracker (C5, spec.md §4.5): a
// one-writer gameflow state machine that treats gameflow-phase events as
// authoritative and falls back to polling once a second when the event
// stream goes silent. Grounded on original_source/threads/phase_thread.py.
//
// It also owns the champ-select session snapshot (spec.md §9 open
// question: "convention here is that only the Phase Tracker writes
// [processed_action_ids]; any other writer is a latent race") and forwards
// the hover/lock/timer facts it extracts to the Commit Controller via the
// SessionHandler interface below, so the two components never race on the
// same dedup set.
package phase

import (
	"context"
	"log"
	"time"

	"github.com/aaronlol/chromabind/internal/lcu"
	"github.com/aaronlol/chromabind/internal/state"
)

// PhasePoller is the minimal surface the Tracker needs from the API
// Client to poll gameflow-phase when the event stream is silent.
type PhasePoller interface {
	GameflowPhase(ctx context.Context) (string, error)
}

// OverlayStopper is implemented by the Overlay Runner (C9).
type OverlayStopper interface {
	StopOverlayProcess()
}

// PrebuildCanceller is implemented by the Pre-Builder (C7).
type PrebuildCanceller interface {
	CancelCurrentBuild()
}

// SessionHandler receives the facts the Phase Tracker extracts from each
// champ-select session snapshot. The Commit Controller implements this.
type SessionHandler interface {
	OnHover(championID, skinID int)
	OnChampionLocked(championID int)
	OnSessionTimer(phase string, adjustedTimeLeftMs int)
}

// StaleProcessKiller kills any runoverlay process left by a prior crashed
// session (spec.md §4.5 "* -> ChampSelect" diagnostic recovery).
type StaleProcessKiller func()

const pollInterval = 1 * time.Second

// Tracker is the Phase Tracker (C5). It is the sole writer of state.Phase
// and of processed_action_ids (spec.md §9 open question).
type Tracker struct {
	st       *state.State
	poller   PhasePoller
	overlay  OverlayStopper
	prebuild PrebuildCanceller
	killStale StaleProcessKiller
	session  SessionHandler

	lastPhase   state.Phase
	lastEventAt time.Time
}

// New builds a Tracker. overlay/prebuild/killStale/session may be nil in
// tests that don't exercise those paths.
func New(st *state.State, poller PhasePoller, overlay OverlayStopper, prebuild PrebuildCanceller, killStale StaleProcessKiller, session SessionHandler) *Tracker {
	return &Tracker{st: st, poller: poller, overlay: overlay, prebuild: prebuild, killStale: killStale, session: session}
}

// OnGameflowPhaseEvent is wired as the lcu.Handlers.OnGameflowPhase
// callback -- the authoritative source of phase transitions.
func (t *Tracker) OnGameflowPhaseEvent(raw string) {
	t.lastEventAt = time.Now()
	t.transition(state.Phase(raw))
}

// OnChampSelectSession is wired as lcu.Handlers.OnChampSelect. It extracts
// the local player's hover/lock/timer facts and forwards them, deduping
// action ids itself so the Commit Controller never has to (spec.md §9).
func (t *Tracker) OnChampSelectSession(session *lcu.ChampSelectSession) {
	if session == nil {
		return
	}

	localCell := session.LocalPlayerCellID
	for _, member := range session.MyTeam {
		if member.CellID != localCell {
			continue
		}
		if member.ChampionID > 0 {
			t.st.SetHoveredChampion(member.ChampionID)
		}
		if t.session != nil {
			t.session.OnHover(member.ChampionID, member.SelectedSkinID)
		}
	}

	for _, group := range session.Actions {
		for _, action := range group {
			if action.Type != "pick" || !action.Completed || action.ActorCellID != localCell {
				continue
			}
			if !t.st.MarkActionProcessed(action.ID) {
				continue
			}
			t.st.SetLockedChampion(action.ChampionID)
			t.st.SetCellLocked(localCell, true)
			if t.killStale != nil {
				t.killStale()
			}
			if t.session != nil {
				t.session.OnChampionLocked(action.ChampionID)
			}
		}
	}

	if t.session != nil {
		t.session.OnSessionTimer(session.Timer.Phase, session.Timer.AdjustedTimeLeftInPhase)
	}
}

// Run polls gameflow-phase once a second whenever the event stream has
// been silent for longer than the poll interval, so transitions are still
// observed within one poll interval if an event is missed (spec.md §4.5).
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.st.Stopped() {
				return
			}
			if time.Since(t.lastEventAt) < pollInterval {
				continue // event stream is live, skip this poll
			}
			if t.poller == nil {
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			raw, err := t.poller.GameflowPhase(pctx)
			cancel()
			if err != nil || raw == "" {
				continue
			}
			t.transition(state.Phase(raw))
		}
	}
}

func (t *Tracker) transition(next state.Phase) {
	if next == t.lastPhase {
		return
	}
	prev := t.lastPhase
	t.lastPhase = next
	log.Printf("[phase] %s -> %s", prev, next)
	t.st.SetPhase(next)

	switch next {
	case state.PhaseChampSelect:
		t.st.ResetForChampSelect()
		if t.killStale != nil {
			t.killStale()
		}
		if t.overlay != nil {
			t.overlay.StopOverlayProcess()
		}
		if t.prebuild != nil {
			t.prebuild.CancelCurrentBuild()
		}
	case state.PhaseInProgress:
		log.Printf("[phase] last hovered skin id=%d", t.st.LastHoveredSkinID())
	case state.PhaseEndOfGame:
		if t.overlay != nil {
			t.overlay.StopOverlayProcess()
		}
	default:
		if prev == state.PhaseChampSelect {
			t.st.ResetForChampSelectExit()
		}
	}
}
