package model

import (
	"maps"
	"slices"
	"time"
)

// -----------------------------------------------------------------------------
// Session Types
// -----------------------------------------------------------------------------

// ConnectionStatus is the connection state reported to observers.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusError        ConnectionStatus = "error"
)

// SessionIdentity identifies the local player within a room.
// Stable across reconnects; only the connection manager mutates it.
type SessionIdentity struct {
	RoomCode   string           // 6 upper-case alphanumerics, empty before joining
	PlayerName string           // Display name as validated at the boundary
	IsHost     bool             // Whether the local player created the room
	Status     ConnectionStatus // Current connection status
}

// InRoom reports whether the identity has joined a room.
func (id SessionIdentity) InRoom() bool {
	return id.RoomCode != "" && id.PlayerName != ""
}

// -----------------------------------------------------------------------------
// Game Types
// -----------------------------------------------------------------------------

// Phase is a game phase.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhaseVoting  Phase = "voting"
	PhaseDrawing Phase = "drawing"
	PhaseJudging Phase = "judging"
	PhaseResults Phase = "results"
)

// phaseOrder holds the forward order of a round.
var phaseOrder = map[Phase]int{
	PhaseLobby:   0,
	PhaseVoting:  1,
	PhaseDrawing: 2,
	PhaseJudging: 3,
	PhaseResults: 4,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// CanTransition reports whether a round may move from one phase to another.
// Staying in the same phase is always allowed. Other than that a phase can
// only be entered from its immediate predecessor, except that results may
// loop back to lobby or voting when a new round is requested.
func CanTransition(from, to Phase) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from == PhaseResults {
		return to == PhaseLobby || to == PhaseVoting
	}
	return phaseOrder[to] == phaseOrder[from]+1
}

// Player is a participant in a room.
type Player struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsHost       bool   `json:"isHost"`
	Connected    bool   `json:"connected"`
	HasVoted     bool   `json:"hasVoted"`
	HasSubmitted bool   `json:"hasSubmitted"`
	Score        int    `json:"score"`
}

// GameResult is one ranked entry of a round's results.
type GameResult struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Rank       int    `json:"rank"`     // 1-based, dense, ties broken by server
	Score      int    `json:"score"`    // 0-100
	Feedback   string `json:"feedback"` // Judge feedback text
	ImageRef   string `json:"imageRef"` // Opaque image payload reference
}

// Tiebreak tracks a server-resolved tie between top-voted words.
type Tiebreak struct {
	TiedWords         []string // Sorted tied set
	AnimationKey      uint64   // Deterministic key of the tied set
	DisplayedWinner   string   // What the local animation currently shows
	AnimationComplete bool     // Animation done and reported to the server
	Resolved          bool     // Server confirmed the winner
	Winner            string   // Server-determined winner, set once Resolved
}

// GameState is the authoritative view of a room's game.
type GameState struct {
	Phase             Phase
	Players           []Player
	WordOptions       []string
	Votes             map[string]int
	ChosenWord        string
	TimeRemaining     time.Duration
	DrawingTimeLimit  time.Duration
	SubmittedDrawings int
	Results           []GameResult
	LastError         string
	Tiebreak          *Tiebreak
}

// NewGameState returns the initial lobby state.
func NewGameState() GameState {
	return GameState{
		Phase: PhaseLobby,
		Votes: map[string]int{},
	}
}

// Clone returns a deep copy.
func (s GameState) Clone() GameState {
	out := s
	out.Players = slices.Clone(s.Players)
	out.WordOptions = slices.Clone(s.WordOptions)
	out.Results = slices.Clone(s.Results)
	if s.Votes != nil {
		out.Votes = maps.Clone(s.Votes)
	}
	if s.Tiebreak != nil {
		tb := *s.Tiebreak
		tb.TiedWords = slices.Clone(s.Tiebreak.TiedWords)
		out.Tiebreak = &tb
	}
	return out
}

// Host returns the host player, if any.
func (s GameState) Host() (Player, bool) {
	for _, p := range s.Players {
		if p.IsHost {
			return p, true
		}
	}
	return Player{}, false
}

// HostCount returns the number of players flagged as host.
func (s GameState) HostCount() int {
	n := 0
	for _, p := range s.Players {
		if p.IsHost {
			n++
		}
	}
	return n
}

// HasWordOption reports whether word is among the offered options.
func (s GameState) HasWordOption(word string) bool {
	return slices.Contains(s.WordOptions, word)
}

// -----------------------------------------------------------------------------
// Diagnostics Types
// -----------------------------------------------------------------------------

// Direction marks where a NetworkMessage came from.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
	DirectionEvent    Direction = "event" // Connection lifecycle event, no payload from the wire
)

// NetworkMessage is a diagnostic record of traffic or a transport event.
// Treat values as immutable; Payload is never shared with the sender.
type NetworkMessage struct {
	Type      string
	Payload   []byte
	Timestamp time.Time
	Direction Direction
}

// NewNetworkMessage copies payload into a new record.
func NewNetworkMessage(typ string, payload []byte, dir Direction, at time.Time) NetworkMessage {
	return NetworkMessage{
		Type:      typ,
		Payload:   slices.Clone(payload),
		Timestamp: at,
		Direction: dir,
	}
}
