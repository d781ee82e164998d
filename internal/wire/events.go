package wire

import (
	"time"

	"github.com/rickgao/sketchduel/internal/model"
)

// Event types sent by the server.
const (
	TypeRoomCreated        = "room-created"
	TypeRoomJoined         = "room-joined"
	TypePlayerJoined       = "player-joined"
	TypePlayerLeft         = "player-left"
	TypeVotingStarted      = "voting-started"
	TypeVoteUpdated        = "vote-updated"
	TypeTiebreakerStarted  = "tiebreaker-started"
	TypeTiebreakerResolved = "tiebreaker-resolved"
	TypeDrawingStarted     = "drawing-started"
	TypeDrawingSubmitted   = "drawing-submitted"
	TypeDrawingTimeExpired = "drawing-time-expired"
	TypeJudgingComplete    = "judging-complete"
	TypeError              = "error"
)

// Transport lifecycle events. These never arrive from the server; the
// connection manager synthesizes them.
const (
	TypeConnect      = "connect"
	TypeDisconnect   = "disconnect"
	TypeConnectError = "connect-error"
)

// Event is an inbound payload.
type Event interface {
	EventType() string
	isEvent()
}

// RoomSnapshot is the full room state delivered on create and join.
type RoomSnapshot struct {
	RoomCode           string             `json:"roomCode"`
	PlayerID           string             `json:"playerId"`
	IsHost             bool               `json:"isHost"`
	Phase              model.Phase        `json:"phase"`
	Players            []model.Player     `json:"players"`
	WordOptions        []string           `json:"wordOptions,omitempty"`
	Votes              map[string]int     `json:"votes,omitempty"`
	ChosenWord         string             `json:"chosenWord,omitempty"`
	TimeRemainingMs    int64              `json:"timeRemainingMs,omitempty"`
	DrawingTimeLimitMs int64              `json:"drawingTimeLimitMs,omitempty"`
	SubmittedDrawings  int                `json:"submittedDrawings,omitempty"`
	Results            []model.GameResult `json:"results,omitempty"`
	TiedWords          []string           `json:"tiedWords,omitempty"`
}

// RoomCreated is the reply to create-room.
type RoomCreated struct {
	RoomSnapshot
}

// RoomJoined is the reply to join-room, including rejoins.
type RoomJoined struct {
	RoomSnapshot
}

type PlayerJoined struct {
	Player  model.Player   `json:"player"`
	Players []model.Player `json:"players"`
}

type PlayerLeft struct {
	PlayerID string         `json:"playerId"`
	Players  []model.Player `json:"players"`
}

type VotingStarted struct {
	WordOptions []string `json:"wordOptions"`
	TimeLimitMs int64    `json:"timeLimitMs,omitempty"`
}

type VoteUpdated struct {
	Votes   map[string]int `json:"votes"`
	Players []model.Player `json:"players,omitempty"`
}

// TiebreakerStarted announces a tie among the top-voted words.
type TiebreakerStarted struct {
	TiedWords []string `json:"tiedWords"`
}

// TiebreakerResolved carries the server-determined winner.
type TiebreakerResolved struct {
	Word string `json:"word"`
}

type DrawingStarted struct {
	Word        string `json:"word"`
	TimeLimitMs int64  `json:"timeLimitMs"`
}

type DrawingSubmitted struct {
	PlayerID       string         `json:"playerId"`
	SubmittedCount int            `json:"submittedCount"`
	Players        []model.Player `json:"players,omitempty"`
}

type DrawingTimeExpired struct{}

type JudgingComplete struct {
	Results []model.GameResult `json:"results"`
	Players []model.Player     `json:"players,omitempty"`
}

// ErrorEvent is a server-reported failure. Code is an errclass kind name.
type ErrorEvent struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Connected is synthesized when the transport opens.
type Connected struct{}

// Disconnected is synthesized when the transport closes.
type Disconnected struct {
	Reason string `json:"reason,omitempty"`
}

// ConnectError is synthesized when a dial fails.
type ConnectError struct {
	Message string `json:"message"`
}

func (RoomCreated) EventType() string        { return TypeRoomCreated }
func (RoomJoined) EventType() string         { return TypeRoomJoined }
func (PlayerJoined) EventType() string       { return TypePlayerJoined }
func (PlayerLeft) EventType() string         { return TypePlayerLeft }
func (VotingStarted) EventType() string      { return TypeVotingStarted }
func (VoteUpdated) EventType() string        { return TypeVoteUpdated }
func (TiebreakerStarted) EventType() string  { return TypeTiebreakerStarted }
func (TiebreakerResolved) EventType() string { return TypeTiebreakerResolved }
func (DrawingStarted) EventType() string     { return TypeDrawingStarted }
func (DrawingSubmitted) EventType() string   { return TypeDrawingSubmitted }
func (DrawingTimeExpired) EventType() string { return TypeDrawingTimeExpired }
func (JudgingComplete) EventType() string    { return TypeJudgingComplete }
func (ErrorEvent) EventType() string         { return TypeError }
func (Connected) EventType() string          { return TypeConnect }
func (Disconnected) EventType() string       { return TypeDisconnect }
func (ConnectError) EventType() string       { return TypeConnectError }

func (RoomCreated) isEvent()        {}
func (RoomJoined) isEvent()         {}
func (PlayerJoined) isEvent()       {}
func (PlayerLeft) isEvent()         {}
func (VotingStarted) isEvent()      {}
func (VoteUpdated) isEvent()        {}
func (TiebreakerStarted) isEvent()  {}
func (TiebreakerResolved) isEvent() {}
func (DrawingStarted) isEvent()     {}
func (DrawingSubmitted) isEvent()   {}
func (DrawingTimeExpired) isEvent() {}
func (JudgingComplete) isEvent()    {}
func (ErrorEvent) isEvent()         {}
func (Connected) isEvent()          {}
func (Disconnected) isEvent()       {}
func (ConnectError) isEvent()       {}

// EncodeEvent wraps ev in an envelope. Used by servers and test fakes.
func EncodeEvent(id string, ev Event, now time.Time) (Envelope, error) {
	return encode(ev.EventType(), id, ev, now)
}

// DecodeEvent parses an inbound envelope into its Event.
func DecodeEvent(env Envelope) (Event, error) {
	switch env.Type {
	case TypeRoomCreated:
		return decode[RoomCreated](env)
	case TypeRoomJoined:
		return decode[RoomJoined](env)
	case TypePlayerJoined:
		return decode[PlayerJoined](env)
	case TypePlayerLeft:
		return decode[PlayerLeft](env)
	case TypeVotingStarted:
		return decode[VotingStarted](env)
	case TypeVoteUpdated:
		return decode[VoteUpdated](env)
	case TypeTiebreakerStarted:
		return decode[TiebreakerStarted](env)
	case TypeTiebreakerResolved:
		return decode[TiebreakerResolved](env)
	case TypeDrawingStarted:
		return decode[DrawingStarted](env)
	case TypeDrawingSubmitted:
		return decode[DrawingSubmitted](env)
	case TypeDrawingTimeExpired:
		return decode[DrawingTimeExpired](env)
	case TypeJudgingComplete:
		return decode[JudgingComplete](env)
	case TypeError:
		return decode[ErrorEvent](env)
	default:
		return nil, ErrUnknownType
	}
}

// IsReply reports whether an event type may be a direct reply to a request.
func IsReply(typ string) bool {
	switch typ {
	case TypeRoomCreated, TypeRoomJoined, TypeError:
		return true
	}
	return false
}
