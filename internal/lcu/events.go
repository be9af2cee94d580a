package lcu

import (
	"crypto/tls"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// EventKind tags the event variants by URI prefix (spec.md §9 "Dynamic
// typing of event payloads"). The dispatcher does not build Event values:
// it decodes each frame straight into the typed argument of the matching
// Handlers callback, and discards unknown URIs.
type EventKind int

const (
	EventOther EventKind = iota
	EventGameflowPhase
	EventChampSelectSession
	EventLobby
	EventReadyCheck
)

// Event is a strongly-typed record with one variant per URI prefix in the
// table at spec.md §4.4. Nothing in this package constructs it; handlers
// receive the decoded payloads through Handlers instead.
type Event struct {
	Kind      EventKind
	URI       string
	EventType string // "Create", "Update", "Delete"
	Raw       json.RawMessage

	Phase   string              // EventGameflowPhase
	Session *ChampSelectSession // EventChampSelectSession
	Lobby   *LobbyData          // EventLobby
}

// ChampSelectSession mirrors the client's /lol-champ-select/v1/session
// shape the spec requires (spec.md §3 "ChampSelectSession", §6).
type ChampSelectSession struct {
	Timer struct {
		Phase                   string `json:"phase"`
		AdjustedTimeLeftInPhase int    `json:"adjustedTimeLeftInPhase"`
	} `json:"timer"`
	LocalPlayerCellID int `json:"localPlayerCellId"`
	MyTeam            []struct {
		CellID             int `json:"cellId"`
		ChampionID         int `json:"championId"`
		SelectedSkinID     int `json:"selectedSkinId"`
		ChampionPickIntent int `json:"championPickIntent"`
	} `json:"myTeam"`
	Actions [][]struct {
		ID          int    `json:"id"`
		ActorCellID int    `json:"actorCellId"`
		Type        string `json:"type"`
		ChampionID  int    `json:"championId"`
		Completed   bool   `json:"completed"`
	} `json:"actions"`
}

// LobbyData mirrors the subset of /lol-lobby/v2/lobby this module cares
// about for Swiftplay/Brawl detection (spec.md §4.4 "Game-mode detector",
// SPEC_FULL.md supplemented feature 1, grounded on
// original_source/lcu/features/lcu_swiftplay.py).
type LobbyData struct {
	GameConfig struct {
		GameMode string `json:"gameMode"`
		MapID    int    `json:"mapId"`
		QueueID  int    `json:"queueId"`
	} `json:"gameConfig"`
	LocalMember struct {
		PlayerSlots []PlayerSlot `json:"playerSlots"`
	} `json:"localMember"`
}

// PlayerSlot is one entry of localMember.playerSlots, the unit the
// Swiftplay player-slot sync PUT operates on (spec.md §6).
type PlayerSlot struct {
	ChampionID int `json:"championId"`
	SkinID     int `json:"skinId"`
}

// Handlers groups the per-URI-prefix callbacks from the table in spec.md
// §4.4. Any nil handler simply drops events of that kind.
type Handlers struct {
	OnGameflowPhase func(phase string)
	OnChampSelect   func(session *ChampSelectSession)
	OnLobby         func(lobby *LobbyData)
	OnReadyCheck    func(raw json.RawMessage)
	OnDelete        func(uri string)
}

const wsReconnectDelay = 3 * time.Second

// Subscriber opens a WebSocket on the connection's port, subscribes to all
// JSON-API events, and dispatches them by URI prefix (spec.md §4.4).
// Grounded on the teacher's companion/lcu.go connectToLCU/handleEvent pair
// and on original_source/threads/websocket_connection.py's reconnect loop.
type Subscriber struct {
	conn     *Connection
	handlers Handlers
	stopCh   chan struct{}
}

// NewSubscriber builds a Subscriber bound to conn with the given handlers.
func NewSubscriber(conn *Connection, handlers Handlers) *Subscriber {
	return &Subscriber{conn: conn, handlers: handlers, stopCh: make(chan struct{})}
}

// Run blocks, dialing and redialing until Stop is called. Must terminate
// promptly when the stop flag is set (spec.md §4.4).
func (s *Subscriber) Run() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.conn.RefreshIfNeeded(false)
		if !s.conn.OK() {
			if s.sleepOrStop(wsReconnectDelay) {
				return
			}
			continue
		}

		s.runOnce()

		if s.sleepOrStop(wsReconnectDelay) {
			return
		}
	}
}

func (s *Subscriber) sleepOrStop(d time.Duration) (stopped bool) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.stopCh:
		return true
	case <-t.C:
		return false
	}
}

func (s *Subscriber) runOnce() {
	port, ok := s.conn.Port()
	if !ok {
		return
	}

	dialer := websocket.Dialer{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // LCU self-signed loopback cert
		Subprotocols:    []string{"wamp"},
	}

	url := wsURL(port)
	headers := map[string][]string{"Authorization": {s.conn.AuthHeader()}}

	conn, _, err := dialer.Dial(url, headers)
	if err != nil {
		log.Printf("[lcu] ws dial error: %v", err)
		return
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`[5,"OnJsonApiEvent"]`)); err != nil {
		log.Printf("[lcu] ws subscribe error: %v", err)
		return
	}

	// Close the socket promptly if Stop() fires while we're blocked in
	// ReadMessage.
	closeOnStop := make(chan struct{})
	defer close(closeOnStop)
	go func() {
		select {
		case <-s.stopCh:
			conn.Close()
		case <-closeOnStop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[lcu] ws closed: %v", err)
			return
		}
		s.handleFrame(raw)
	}
}

func wsURL(port int) string {
	return "wss://127.0.0.1:" + strconv.Itoa(port) + "/"
}

// handleFrame decodes a WAMP frame. The meaningful shape is
// [8, "OnJsonApiEvent", {uri, eventType, data}] (spec.md §4.4).
func (s *Subscriber) handleFrame(raw []byte) {
	var msg []json.RawMessage
	if err := json.Unmarshal(raw, &msg); err != nil || len(msg) < 3 {
		return
	}

	var opcode int
	if err := json.Unmarshal(msg[0], &opcode); err != nil || opcode != 8 {
		return
	}

	var payload struct {
		URI       string          `json:"uri"`
		EventType string          `json:"eventType"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg[2], &payload); err != nil {
		return
	}

	s.dispatch(payload.URI, payload.EventType, payload.Data)
}

func (s *Subscriber) dispatch(uri, eventType string, data json.RawMessage) {
	if eventType == "Delete" && s.handlers.OnDelete != nil {
		s.handlers.OnDelete(uri)
	}

	switch {
	case hasPrefix(uri, "/lol-gameflow/v1/gameflow-phase"):
		var phase string
		if json.Unmarshal(data, &phase) == nil && s.handlers.OnGameflowPhase != nil {
			s.handlers.OnGameflowPhase(phase)
		}
	case hasPrefix(uri, "/lol-champ-select/v1/session"):
		if eventType == "Delete" {
			return
		}
		var session ChampSelectSession
		if json.Unmarshal(data, &session) == nil && s.handlers.OnChampSelect != nil {
			s.handlers.OnChampSelect(&session)
		}
	case hasPrefix(uri, "/lol-lobby/v2/lobby"):
		if eventType == "Delete" {
			return
		}
		var lobby LobbyData
		if json.Unmarshal(data, &lobby) == nil && s.handlers.OnLobby != nil {
			s.handlers.OnLobby(&lobby)
		}
	case hasPrefix(uri, "/lol-matchmaking/v1/ready-check"):
		if s.handlers.OnReadyCheck != nil {
			s.handlers.OnReadyCheck(data)
		}
	default:
		// EventOther: discarded at the dispatcher (spec.md §9).
	}
}

func hasPrefix(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}

// Stop terminates the subscriber's run loop, closing any live socket.
func (s *Subscriber) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}
