package wire

import "time"

// Request types.
const (
	TypeCreateRoom                  = "create-room"
	TypeJoinRoom                    = "join-room"
	TypeStartVoting                 = "start-voting"
	TypeVoteWord                    = "vote-word"
	TypeSubmitDrawing               = "submit-drawing"
	TypeDrawingProgress             = "drawing-progress"
	TypeFinishDrawing               = "finish-drawing"
	TypePlayAgain                   = "play-again"
	TypeTiebreakerAnimationComplete = "tiebreaker-animation-complete"
)

// Request is an outbound payload.
type Request interface {
	RequestType() string
	isRequest()
}

// CreateRoom asks the server for a new room hosted by the sender.
type CreateRoom struct {
	PlayerName string `json:"playerName"`
}

// JoinRoom joins an existing room. Rejoin marks an automatic rejoin after a
// reconnect, replaying the stored identity.
type JoinRoom struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
	Rejoin     bool   `json:"rejoin,omitempty"`
	IsHost     bool   `json:"isHost,omitempty"`
}

type StartVoting struct{}

type VoteWord struct {
	Word string `json:"word"`
}

// SubmitDrawing carries the finished image as a data URL.
type SubmitDrawing struct {
	Image string `json:"image"`
}

// DrawingProgress is a live-preview stroke segment. High frequency; batched.
type DrawingProgress struct {
	Seq    int     `json:"seq"`
	Color  string  `json:"color,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Points []Point `json:"points"`
}

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type FinishDrawing struct{}

type PlayAgain struct{}

// TiebreakerAnimationComplete reports that the tiebreak animation finished.
// DisplayedWinner is informational; the server decides the winner.
type TiebreakerAnimationComplete struct {
	DisplayedWinner string `json:"displayedWinner,omitempty"`
}

func (CreateRoom) RequestType() string      { return TypeCreateRoom }
func (JoinRoom) RequestType() string        { return TypeJoinRoom }
func (StartVoting) RequestType() string     { return TypeStartVoting }
func (VoteWord) RequestType() string        { return TypeVoteWord }
func (SubmitDrawing) RequestType() string   { return TypeSubmitDrawing }
func (DrawingProgress) RequestType() string { return TypeDrawingProgress }
func (FinishDrawing) RequestType() string   { return TypeFinishDrawing }
func (PlayAgain) RequestType() string       { return TypePlayAgain }
func (TiebreakerAnimationComplete) RequestType() string {
	return TypeTiebreakerAnimationComplete
}

func (CreateRoom) isRequest()                  {}
func (JoinRoom) isRequest()                    {}
func (StartVoting) isRequest()                 {}
func (VoteWord) isRequest()                    {}
func (SubmitDrawing) isRequest()               {}
func (DrawingProgress) isRequest()             {}
func (FinishDrawing) isRequest()               {}
func (PlayAgain) isRequest()                   {}
func (TiebreakerAnimationComplete) isRequest() {}

// EncodeRequest wraps req in an envelope.
func EncodeRequest(id string, req Request, now time.Time) (Envelope, error) {
	return encode(req.RequestType(), id, req, now)
}

// DecodeRequest parses an outbound envelope. Used by servers and test fakes.
func DecodeRequest(env Envelope) (Request, error) {
	switch env.Type {
	case TypeCreateRoom:
		return decode[CreateRoom](env)
	case TypeJoinRoom:
		return decode[JoinRoom](env)
	case TypeStartVoting:
		return decode[StartVoting](env)
	case TypeVoteWord:
		return decode[VoteWord](env)
	case TypeSubmitDrawing:
		return decode[SubmitDrawing](env)
	case TypeDrawingProgress:
		return decode[DrawingProgress](env)
	case TypeFinishDrawing:
		return decode[FinishDrawing](env)
	case TypePlayAgain:
		return decode[PlayAgain](env)
	case TypeTiebreakerAnimationComplete:
		return decode[TiebreakerAnimationComplete](env)
	default:
		return nil, ErrUnknownType
	}
}
