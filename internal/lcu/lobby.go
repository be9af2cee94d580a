package lcu

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlol/chromabind/internal/state"
)

// swiftplayModes mirrors the original's SWIFTPLAY_MODES constant: lobby
// gameMode strings that indicate the Swiftplay/Brawl format.
var swiftplayModes = map[string]bool{
	"SWIFTPLAY": true,
	"BRAWL":     true,
}

// GameModeDetector is the thin feature layered on the Event Subscriber's
// /lol-lobby/v2/lobby handling (SPEC_FULL.md supplemented feature 1).
// Grounded on original_source/lcu/features/lcu_swiftplay.py.
type GameModeDetector struct {
	st     *state.State
	client *Client

	lastSlotSignature string
}

// NewGameModeDetector builds a detector bound to shared state and an API
// client used for the player-slots PUT.
func NewGameModeDetector(st *state.State, client *Client) *GameModeDetector {
	return &GameModeDetector{st: st, client: client}
}

// OnLobby is wired as Handlers.OnLobby. It records the current game mode
// and, when Swiftplay/Brawl is detected and the locally tracked slots
// changed, pushes the base-skin override via PUT player-slots.
func (d *GameModeDetector) OnLobby(lobby *LobbyData) {
	if lobby == nil {
		return
	}

	mode := strings.ToUpper(lobby.GameConfig.GameMode)
	isSwiftplay := swiftplayModes[mode] || queueIDSuggestsSwiftplay(lobby.GameConfig.QueueID)
	d.st.SetGameMode(lobby.GameConfig.GameMode, lobby.GameConfig.MapID, isSwiftplay)

	if !isSwiftplay {
		return
	}

	ids := make([]int, 0, len(lobby.LocalMember.PlayerSlots))
	for _, slot := range lobby.LocalMember.PlayerSlots {
		ids = append(ids, slot.ChampionID)
	}
	d.st.SetSwiftplaySlots(ids)

	sig := slotSignature(lobby.LocalMember.PlayerSlots, d.st.OwnedSkins())
	if sig == d.lastSlotSignature {
		return
	}
	d.lastSlotSignature = sig

	d.forceBaseSkinSlots(lobby.LocalMember.PlayerSlots)
}

func queueIDSuggestsSwiftplay(queueID int) bool {
	// The original matches substrings like "swift"/"brawl" in the queue id
	// string; League queue ids are opaque integers with no such substrings
	// in practice, so this is kept as a narrow, documented no-op hook for
	// future queue ids that do carry a recognizable tag.
	return false
}

// forceBaseSkinSlots replaces skinId with the champion's base skin
// (championId*1000) for every tracked, unowned slot and PUTs the modified
// slots back (grounded on force_base_skin_slots).
func (d *GameModeDetector) forceBaseSkinSlots(slots []PlayerSlot) {
	owned := d.st.OwnedSkins()
	modified := false
	out := make([]map[string]int, 0, len(slots))
	for _, slot := range slots {
		base := slot.ChampionID * 1000
		skinID := slot.SkinID
		if slot.ChampionID > 0 {
			if _, isOwned := owned[skinID]; !isOwned && skinID != base {
				skinID = base
				modified = true
			}
		}
		out = append(out, map[string]int{"championId": slot.ChampionID, "skinId": skinID})
	}

	if !modified || d.client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := d.client.Put(ctx, "/lol-lobby/v1/lobby/members/localMember/player-slots", out, 5*time.Second)
	if err != nil {
		log.Printf("[lobby] failed to force base skins: %v", err)
		return
	}
	if resp == nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[lobby] player-slots PUT rejected")
		return
	}
	log.Println("[lobby] forced base skins on unowned swiftplay slots")
}

func slotSignature(slots []PlayerSlot, owned map[int]struct{}) string {
	var b strings.Builder
	for _, s := range slots {
		b.WriteString(strconv.Itoa(s.ChampionID))
		b.WriteByte(':')
		_, isOwned := owned[s.SkinID]
		if isOwned {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
		b.WriteByte(',')
	}
	return b.String()
}
