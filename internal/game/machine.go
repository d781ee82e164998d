package game

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/sketchduel/internal/errclass"
	"github.com/rickgao/sketchduel/internal/metrics"
	"github.com/rickgao/sketchduel/internal/model"
	"github.com/rickgao/sketchduel/internal/wire"
)

// Errors
var (
	ErrNoTiebreak = errors.New("no tiebreak in progress")
	ErrNotTied    = errors.New("word is not part of the tie")
)

// Sender writes a request to the server without waiting for a reply.
type Sender interface {
	Send(req wire.Request) error
}

// StateMachine owns the GameState of one session.
//
// Apply is expected to be called from a single goroutine in arrival order;
// observers are then notified in that same order. Other methods are safe for
// concurrent use, including from inside an observer.
type StateMachine struct {
	sender  Sender
	metrics *metrics.Metrics
	logger  *slog.Logger

	applyMu sync.Mutex // Serializes state computation; acquired before mu

	mu         sync.Mutex
	state      model.GameState
	resync     bool
	playerID   string // Local player, from the last snapshot
	reporting  bool   // Tiebreak completion is being sent
	pending    []model.GameState
	emitting   bool // A goroutine is delivering pending
	nextID     int
	observers  map[int]func(model.GameState)
	autoSubmit map[int]func()
}

// NewStateMachine creates a machine in the lobby phase. sender is used to
// report tiebreak animation completion.
func NewStateMachine(sender Sender, m *metrics.Metrics, logger *slog.Logger) *StateMachine {
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StateMachine{
		sender:     sender,
		metrics:    m,
		logger:     logger.With("component", "game"),
		state:      model.NewGameState(),
		observers:  make(map[int]func(model.GameState)),
		autoSubmit: make(map[int]func()),
	}
}

// State returns a copy of the current state.
func (s *StateMachine) State() model.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// PlayerID returns the local player's id, once a room snapshot arrived.
func (s *StateMachine) PlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

// Subscribe registers fn for state updates and returns its unsubscribe func.
// Observers see every state in commit order, one at a time. An observer may
// call back into the machine; the resulting state is delivered after the
// current one has reached every observer.
func (s *StateMachine) Subscribe(fn func(model.GameState)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// OnAutoSubmit registers fn to run when the drawing time expires before the
// local player submitted. Returns the unregister func.
func (s *StateMachine) OnAutoSubmit(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.autoSubmit[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.autoSubmit, id)
	}
}

// ArmResync makes the next room snapshot replace the state wholesale,
// regardless of phase order. Used when joining or rejoining.
func (s *StateMachine) ArmResync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resync = true
}

// Resyncing reports whether a resync is armed.
func (s *StateMachine) Resyncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resync
}

// Reset returns to a fresh lobby state and drops the local player.
func (s *StateMachine) Reset() {
	s.update(func(model.GameState) (model.GameState, error) {
		s.mu.Lock()
		s.resync = false
		s.playerID = ""
		s.reporting = false
		s.mu.Unlock()
		return model.NewGameState(), nil
	})
}

// RecordError stores err as the state's last error.
func (s *StateMachine) RecordError(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	var cerr *errclass.Error
	if errors.As(err, &cerr) && cerr.Message != "" {
		msg = cerr.Message
	}
	s.update(func(st model.GameState) (model.GameState, error) {
		st.LastError = msg
		return st, nil
	})
}

// Apply folds ev into the state. An update that violates phase order or the
// host invariant is rejected with an invalid_game_state error and the state
// is left unchanged. Lifecycle events are ignored.
func (s *StateMachine) Apply(ev wire.Event) error {
	var expired bool
	err := s.update(func(st model.GameState) (model.GameState, error) {
		next, err := s.reduce(st, ev)
		if err == nil {
			expired = ev.EventType() == wire.TypeDrawingTimeExpired && st.Phase == model.PhaseDrawing
		}
		return next, err
	})
	if err != nil {
		s.metrics.InvalidTransitions.Inc()
		s.logger.Warn("rejected inconsistent update", "event", ev.EventType(), "error", err)
		return err
	}
	if expired {
		s.fireAutoSubmit()
	}
	return nil
}

// SetDisplayedWinner updates what the local tiebreak animation shows. It
// never decides the chosen word.
func (s *StateMachine) SetDisplayedWinner(word string) error {
	return s.update(func(st model.GameState) (model.GameState, error) {
		if st.Tiebreak == nil {
			return st, ErrNoTiebreak
		}
		if !slices.Contains(st.Tiebreak.TiedWords, word) {
			return st, fmt.Errorf("%w: %q", ErrNotTied, word)
		}
		st.Tiebreak.DisplayedWinner = word
		return st, nil
	})
}

// CompleteTiebreakAnimation reports to the server that the animation
// finished. Reporting twice is a no-op.
func (s *StateMachine) CompleteTiebreakAnimation() error {
	s.mu.Lock()
	tb := s.state.Tiebreak
	if tb == nil {
		s.mu.Unlock()
		return ErrNoTiebreak
	}
	if tb.AnimationComplete || s.reporting {
		s.mu.Unlock()
		return nil
	}
	s.reporting = true
	displayed := tb.DisplayedWinner
	s.mu.Unlock()

	if s.sender != nil {
		if err := s.sender.Send(wire.TiebreakerAnimationComplete{DisplayedWinner: displayed}); err != nil {
			s.mu.Lock()
			s.reporting = false
			s.mu.Unlock()
			return fmt.Errorf("report tiebreak animation: %w", err)
		}
	}
	return s.update(func(st model.GameState) (model.GameState, error) {
		if st.Tiebreak != nil {
			st.Tiebreak.AnimationComplete = true
		}
		s.mu.Lock()
		s.reporting = false
		s.mu.Unlock()
		return st, nil
	})
}

// update computes the next state from a clone, commits it and queues it
// for observers. fn's error aborts the update.
func (s *StateMachine) update(fn func(model.GameState) (model.GameState, error)) error {
	s.applyMu.Lock()
	next, err := fn(s.State())
	if err != nil {
		s.applyMu.Unlock()
		return err
	}
	s.mu.Lock()
	s.state = next
	s.pending = append(s.pending, next)
	s.mu.Unlock()
	s.applyMu.Unlock()

	s.broadcast()
	return nil
}

// broadcast delivers pending states in commit order. Only one goroutine
// delivers at a time; a caller that finds delivery in progress, such as an
// observer updating the state, leaves its state to that goroutine.
func (s *StateMachine) broadcast() {
	s.mu.Lock()
	if s.emitting {
		s.mu.Unlock()
		return
	}
	s.emitting = true
	done := false
	defer func() {
		// An observer panicked; let the next update deliver again.
		if !done {
			s.mu.Lock()
			s.emitting = false
			s.mu.Unlock()
		}
	}()

	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		observers := make([]func(model.GameState), 0, len(s.observers))
		for _, id := range slices.Sorted(maps.Keys(s.observers)) {
			observers = append(observers, s.observers[id])
		}
		s.mu.Unlock()

		for _, fn := range observers {
			fn(next.Clone())
		}
		s.mu.Lock()
	}
	s.pending = nil
	s.emitting = false
	done = true
	s.mu.Unlock()
}

func (s *StateMachine) fireAutoSubmit() {
	s.mu.Lock()
	if p, ok := s.localPlayerLocked(); ok && p.HasSubmitted {
		s.mu.Unlock()
		return
	}
	fns := make([]func(), 0, len(s.autoSubmit))
	for _, id := range slices.Sorted(maps.Keys(s.autoSubmit)) {
		fns = append(fns, s.autoSubmit[id])
	}
	s.mu.Unlock()

	s.logger.Info("drawing time expired, auto-submitting", "callbacks", len(fns))
	for _, fn := range fns {
		fn()
	}
}

func (s *StateMachine) localPlayerLocked() (model.Player, bool) {
	if s.playerID == "" {
		return model.Player{}, false
	}
	for _, p := range s.state.Players {
		if p.ID == s.playerID {
			return p, true
		}
	}
	return model.Player{}, false
}

// -----------------------------------------------------------------------------
// Reducer
// -----------------------------------------------------------------------------

func invalid(format string, args ...any) error {
	return errclass.Newf(errclass.KindInvalidGameState, format, args...)
}

// transition moves st to phase, rejecting out-of-order moves.
func transition(st *model.GameState, to model.Phase) error {
	if !model.CanTransition(st.Phase, to) {
		return invalid("cannot move from %s to %s", st.Phase, to)
	}
	st.Phase = to
	return nil
}

func requirePhase(st model.GameState, want model.Phase, event string) error {
	if st.Phase != want {
		return invalid("%s received in %s phase", event, st.Phase)
	}
	return nil
}

// setPlayers replaces the player list. A nil list leaves it unchanged.
func setPlayers(st *model.GameState, players []model.Player) error {
	if players == nil {
		return nil
	}
	next := *st
	next.Players = slices.Clone(players)
	if len(next.Players) > 0 && next.HostCount() != 1 {
		return invalid("player list has %d hosts", next.HostCount())
	}
	st.Players = next.Players
	return nil
}

func ms(n int64) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func (s *StateMachine) reduce(st model.GameState, ev wire.Event) (model.GameState, error) {
	switch e := ev.(type) {
	case wire.RoomCreated:
		return s.applySnapshot(st, e.RoomSnapshot, true)
	case wire.RoomJoined:
		s.mu.Lock()
		armed := s.resync
		s.mu.Unlock()
		return s.applySnapshot(st, e.RoomSnapshot, armed)

	case wire.PlayerJoined:
		players := e.Players
		if players == nil {
			players = append(slices.Clone(st.Players), e.Player)
		}
		return st, setPlayers(&st, players)

	case wire.PlayerLeft:
		players := e.Players
		if players == nil {
			players = slices.DeleteFunc(slices.Clone(st.Players), func(p model.Player) bool {
				return p.ID == e.PlayerID
			})
			if players == nil {
				players = []model.Player{}
			}
		}
		return st, setPlayers(&st, players)

	case wire.VotingStarted:
		if err := transition(&st, model.PhaseVoting); err != nil {
			return st, err
		}
		st.WordOptions = slices.Clone(e.WordOptions)
		st.Votes = map[string]int{}
		st.ChosenWord = ""
		st.Tiebreak = nil
		st.Results = nil
		st.SubmittedDrawings = 0
		st.TimeRemaining = ms(e.TimeLimitMs)
		for i := range st.Players {
			st.Players[i].HasVoted = false
			st.Players[i].HasSubmitted = false
		}
		return st, nil

	case wire.VoteUpdated:
		if err := requirePhase(st, model.PhaseVoting, e.EventType()); err != nil {
			return st, err
		}
		st.Votes = maps.Clone(e.Votes)
		if st.Votes == nil {
			st.Votes = map[string]int{}
		}
		return st, setPlayers(&st, e.Players)

	case wire.TiebreakerStarted:
		if err := requirePhase(st, model.PhaseVoting, e.EventType()); err != nil {
			return st, err
		}
		if len(e.TiedWords) < 2 {
			return st, invalid("tiebreak needs at least two words, got %d", len(e.TiedWords))
		}
		st.Tiebreak = newTiebreak(e.TiedWords)
		return st, nil

	case wire.TiebreakerResolved:
		if err := requirePhase(st, model.PhaseVoting, e.EventType()); err != nil {
			return st, err
		}
		if st.Tiebreak == nil {
			st.Tiebreak = newTiebreak([]string{e.Word})
		} else if !slices.Contains(st.Tiebreak.TiedWords, e.Word) {
			return st, invalid("tiebreak winner %q is not among %v", e.Word, st.Tiebreak.TiedWords)
		}
		st.Tiebreak.Resolved = true
		st.Tiebreak.Winner = e.Word
		st.ChosenWord = e.Word
		return st, nil

	case wire.DrawingStarted:
		if err := transition(&st, model.PhaseDrawing); err != nil {
			return st, err
		}
		if st.Tiebreak != nil && !st.Tiebreak.Resolved {
			st.Tiebreak.Resolved = true
			st.Tiebreak.Winner = e.Word
		}
		st.ChosenWord = e.Word
		st.DrawingTimeLimit = ms(e.TimeLimitMs)
		st.TimeRemaining = ms(e.TimeLimitMs)
		st.SubmittedDrawings = 0
		for i := range st.Players {
			st.Players[i].HasSubmitted = false
		}
		return st, nil

	case wire.DrawingSubmitted:
		if err := requirePhase(st, model.PhaseDrawing, e.EventType()); err != nil {
			return st, err
		}
		st.SubmittedDrawings = e.SubmittedCount
		if e.Players == nil {
			for i := range st.Players {
				if st.Players[i].ID == e.PlayerID {
					st.Players[i].HasSubmitted = true
				}
			}
			return st, nil
		}
		return st, setPlayers(&st, e.Players)

	case wire.DrawingTimeExpired:
		if err := transition(&st, model.PhaseJudging); err != nil {
			return st, err
		}
		st.TimeRemaining = 0
		return st, nil

	case wire.JudgingComplete:
		if err := transition(&st, model.PhaseResults); err != nil {
			return st, err
		}
		st.Results = slices.Clone(e.Results)
		return st, setPlayers(&st, e.Players)

	case wire.ErrorEvent:
		st.LastError = e.Message
		return st, nil

	case wire.Connected, wire.Disconnected, wire.ConnectError:
		return st, nil

	default:
		return st, invalid("unhandled event %s", ev.EventType())
	}
}

// applySnapshot replaces the state with snap. Without resync the snapshot
// must still respect phase order.
func (s *StateMachine) applySnapshot(st model.GameState, snap wire.RoomSnapshot, resync bool) (model.GameState, error) {
	if !snap.Phase.Valid() {
		return st, invalid("snapshot has unknown phase %q", snap.Phase)
	}
	if !resync && !model.CanTransition(st.Phase, snap.Phase) {
		return st, invalid("snapshot moves from %s to %s", st.Phase, snap.Phase)
	}

	next := model.NewGameState()
	next.Phase = snap.Phase
	if err := setPlayers(&next, snap.Players); err != nil {
		return st, err
	}
	next.WordOptions = slices.Clone(snap.WordOptions)
	if snap.Votes != nil {
		next.Votes = maps.Clone(snap.Votes)
	}
	next.ChosenWord = snap.ChosenWord
	next.TimeRemaining = ms(snap.TimeRemainingMs)
	next.DrawingTimeLimit = ms(snap.DrawingTimeLimitMs)
	next.SubmittedDrawings = snap.SubmittedDrawings
	next.Results = slices.Clone(snap.Results)
	if len(snap.TiedWords) > 0 {
		next.Tiebreak = newTiebreak(snap.TiedWords)
		if snap.ChosenWord != "" {
			next.Tiebreak.Resolved = true
			next.Tiebreak.Winner = snap.ChosenWord
		}
	}

	s.mu.Lock()
	s.resync = false
	if snap.PlayerID != "" {
		s.playerID = snap.PlayerID
	}
	s.mu.Unlock()
	return next, nil
}
