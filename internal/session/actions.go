package session

import (
	"context"
	"errors"

	"github.com/rickgao/sketchduel/internal/connection"
	"github.com/rickgao/sketchduel/internal/errclass"
	"github.com/rickgao/sketchduel/internal/model"
	"github.com/rickgao/sketchduel/internal/validation"
	"github.com/rickgao/sketchduel/internal/wire"
)

// Create connects if needed and creates a room hosted by name.
func (s *Session) Create(ctx context.Context, name string) (model.GameState, error) {
	name, err := validation.PlayerName(name)
	if err != nil {
		return s.State(), err
	}
	if err := s.Connect(ctx); err != nil {
		return s.State(), err
	}

	s.begin()
	ev, err := s.request(ctx, wire.CreateRoom{PlayerName: name})
	if err != nil {
		return s.State(), err
	}
	created, ok := ev.(wire.RoomCreated)
	if !ok {
		return s.State(), errclass.Newf(errclass.KindUnknown, "unexpected reply %s to create-room", ev.EventType())
	}

	s.conn.SetIdentity(model.SessionIdentity{
		RoomCode:   created.RoomCode,
		PlayerName: name,
		IsHost:     true,
	})
	st := s.State()
	s.persist(st.Phase)
	s.logger.Info("room created", "room", created.RoomCode, "player", name)
	return st, nil
}

// Join connects if needed and joins room code as name.
func (s *Session) Join(ctx context.Context, code, name string) (model.GameState, error) {
	name, err := validation.PlayerName(name)
	if err != nil {
		return s.State(), err
	}
	code, err = validation.RoomCode(code)
	if err != nil {
		return s.State(), err
	}
	if err := s.Connect(ctx); err != nil {
		return s.State(), err
	}

	s.begin()
	s.game.ArmResync()
	ev, err := s.request(ctx, wire.JoinRoom{RoomCode: code, PlayerName: name})
	if err != nil {
		return s.State(), err
	}
	joined, ok := ev.(wire.RoomJoined)
	if !ok {
		return s.State(), errclass.Newf(errclass.KindUnknown, "unexpected reply %s to join-room", ev.EventType())
	}

	s.conn.SetIdentity(model.SessionIdentity{
		RoomCode:   joined.RoomCode,
		PlayerName: name,
		IsHost:     joined.IsHost,
	})
	st := s.State()
	s.persist(st.Phase)
	s.logger.Info("room joined", "room", joined.RoomCode, "player", name, "host", joined.IsHost)
	return st, nil
}

// Resume restores the session persisted by a previous run. It fails with
// recovery.ErrNoSnapshot or recovery.ErrStaleSnapshot when there is nothing
// to resume. A room that no longer accepts the player is terminal: the
// session is cleared and a blocking notice raised.
func (s *Session) Resume(ctx context.Context) (model.GameState, error) {
	snap, err := s.recovery.LoadSnapshot(ctx)
	if err != nil {
		return s.State(), err
	}
	if err := s.Connect(ctx); err != nil {
		return s.State(), err
	}

	s.begin()
	s.conn.SetIdentity(snap.Identity())
	s.game.ArmResync()
	if err := s.conn.Rejoin(ctx); err != nil {
		cerr := errclass.From(err)
		if !errclass.IsRetryable(cerr) {
			cerr = &errclass.Error{
				Kind:      cerr.Kind,
				Message:   cerr.Message,
				RequestID: cerr.RequestID,
				Terminal:  true,
				Err:       cerr,
			}
		}
		s.handleError(cerr)
		return s.State(), cerr
	}

	st := s.State()
	s.persist(st.Phase)
	s.logger.Info("session resumed", "room", snap.RoomCode, "player", snap.PlayerName, "phase", st.Phase)
	return st, nil
}

// Leave disconnects, forgets the room and deletes the snapshot.
func (s *Session) Leave(ctx context.Context) error {
	s.conn.Disconnect()
	s.conn.ClearIdentity()
	s.game.Reset()
	s.mu.Lock()
	s.savedPhase = ""
	s.lastFailed = failedRequest{}
	s.mu.Unlock()
	return s.recovery.ClearSnapshot(ctx)
}

// StartVoting starts a round. Host only.
func (s *Session) StartVoting(ctx context.Context) error {
	if err := s.requireHost("start voting"); err != nil {
		return err
	}
	_, err := s.request(ctx, wire.StartVoting{})
	return err
}

// FinishDrawing ends the drawing phase early. Host only.
func (s *Session) FinishDrawing(ctx context.Context) error {
	if err := s.requireHost("finish drawing"); err != nil {
		return err
	}
	_, err := s.request(ctx, wire.FinishDrawing{})
	return err
}

// PlayAgain starts another round from the results. Host only.
func (s *Session) PlayAgain(ctx context.Context) error {
	if err := s.requireHost("start another round"); err != nil {
		return err
	}
	_, err := s.request(ctx, wire.PlayAgain{})
	return err
}

// Vote votes for one of the offered words.
func (s *Session) Vote(ctx context.Context, word string) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	if err := validation.Vote(word, s.State().WordOptions); err != nil {
		return err
	}
	_, err := s.request(ctx, wire.VoteWord{Word: word})
	return err
}

// SubmitDrawing submits the finished drawing as an image data URL.
func (s *Session) SubmitDrawing(ctx context.Context, image string) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	if err := validation.Image(image); err != nil {
		return err
	}
	_, err := s.request(ctx, wire.SubmitDrawing{Image: image})
	return err
}

// DrawingProgress streams a live stroke segment. Segments are batched and
// never retried.
func (s *Session) DrawingProgress(p wire.DrawingProgress) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	return s.conn.Send(p)
}

// SetDisplayedWinner updates the word the tiebreak animation shows.
func (s *Session) SetDisplayedWinner(word string) error {
	return s.game.SetDisplayedWinner(word)
}

// CompleteTiebreakAnimation reports the finished animation to the server,
// which then confirms the winner.
func (s *Session) CompleteTiebreakAnimation() error {
	return s.game.CompleteTiebreakAnimation()
}

// begin resets per-room bookkeeping before a create, join or resume.
func (s *Session) begin() {
	s.game.Reset()
	s.throttler.Reset()
	s.mu.Lock()
	s.terminated = false
	s.savedPhase = ""
	s.lastFailed = failedRequest{}
	s.mu.Unlock()
}

func (s *Session) requireRoom() error {
	if s.isClosed() {
		return ErrDestroyed
	}
	if !s.conn.Identity().InRoom() {
		return ErrNotInRoom
	}
	return nil
}

func (s *Session) requireHost(action string) error {
	if err := s.requireRoom(); err != nil {
		return err
	}
	if !s.conn.Identity().IsHost {
		return errclass.Newf(errclass.KindUnauthorizedAction, "only the host can %s", action)
	}
	return nil
}

// request sends req and routes a failure through the error path before
// returning it.
func (s *Session) request(ctx context.Context, req wire.Request) (wire.Event, error) {
	if s.isClosed() {
		return nil, ErrDestroyed
	}
	ev, err := s.conn.Request(ctx, req)
	if err != nil {
		s.fail(req, err)
		return nil, err
	}
	return ev, nil
}

func (s *Session) fail(req wire.Request, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, connection.ErrDestroyed) {
		return
	}
	cerr := errclass.From(err)
	if cerr.RequestID != "" {
		s.mu.Lock()
		s.lastFailed = failedRequest{id: cerr.RequestID, req: req}
		s.mu.Unlock()
	}
	s.metrics.Errors.WithLabelValues(string(cerr.Kind)).Inc()
	s.logger.Warn("request failed", "type", req.RequestType(), "error", cerr)
	s.handleError(cerr)
}
