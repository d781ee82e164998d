package session

import (
	"context"
	"errors"

	"github.com/rickgao/sketchduel/internal/errclass"
	"github.com/rickgao/sketchduel/internal/recovery"
)

// handleError is the single sink for classified errors.
func (s *Session) handleError(cerr *errclass.Error) {
	if cerr == nil {
		return
	}
	s.game.RecordError(cerr)

	if s.throttler.ShouldThrottle(cerr.Kind, cerr.Message) {
		s.metrics.ThrottledErrors.WithLabelValues(string(cerr.Kind)).Inc()
		s.logger.Debug("error callback throttled", "kind", cerr.Kind, "message", cerr.Message)
	} else {
		for _, fn := range s.errorSubscribers() {
			fn(cerr)
		}
	}

	switch {
	case s.isTerminal(cerr):
		s.terminate(cerr)
	case cerr.Classification().Recoverable():
		s.startRecovery(cerr)
	}
}

// isTerminal reports whether cerr ends the session. A room that vanished
// while we were in it cannot be recovered.
func (s *Session) isTerminal(cerr *errclass.Error) bool {
	if cerr.Terminal {
		return true
	}
	return cerr.Kind == errclass.KindRoomNotFound && s.conn.Identity().InRoom()
}

// terminate clears local session state and raises a blocking notice.
func (s *Session) terminate(cerr *errclass.Error) {
	s.logger.Error("session ended", "kind", cerr.Kind, "error", cerr.Message)
	s.conn.ClearIdentity()
	if err := s.recovery.ClearSnapshot(s.ctx); err != nil {
		s.logger.Warn("failed to clear session snapshot", "error", err)
	}

	s.mu.Lock()
	s.terminated = true
	s.savedPhase = ""
	s.lastFailed = failedRequest{}
	s.mu.Unlock()

	class := cerr.Classification()
	s.notify(Notice{
		Err:         cerr,
		Message:     class.UserMessage,
		Suggestions: class.Suggestions,
		Actions:     []string{NoticeRetry, NoticeReset, NoticeReload},
		Blocking:    true,
		At:          s.now(),
	})
}

func (s *Session) startRecovery(cerr *errclass.Error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.recover(cerr)
	}()
}

func (s *Session) recover(cerr *errclass.Error) {
	sc := recovery.SessionContext{
		Identity:           s.conn.Identity(),
		Phase:              s.game.State().Phase,
		ConnectionAttempts: s.conn.Stats().ReconnectAttempts,
	}
	res, err := s.recovery.InitiateRecovery(s.ctx, cerr, sc)
	switch {
	case errors.Is(err, recovery.ErrRecoveryInProgress):
		s.logger.Debug("recovery already running", "kind", cerr.Kind)
		return
	case err != nil:
		return
	case res.Success:
		return
	}

	s.mu.Lock()
	terminated := s.terminated
	s.mu.Unlock()
	if terminated {
		return
	}
	s.notify(Notice{
		Err:         cerr,
		Message:     res.Message,
		Suggestions: res.Suggestions,
		Actions:     []string{NoticeRetry, NoticeReset, NoticeReload},
		At:          s.now(),
	})
}

// notify queues n. Notices are dropped when nobody drains the channel.
func (s *Session) notify(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.notices <- n:
	default:
		s.logger.Warn("notice dropped", "kind", n.Err.Kind, "blocking", n.Blocking)
	}
}

// -----------------------------------------------------------------------------
// recovery.Session
// -----------------------------------------------------------------------------

// Capabilities implements recovery.Session.
func (s *Session) Capabilities() []recovery.Capability {
	return []recovery.Capability{
		recovery.CapReconnect,
		recovery.CapRestoreState,
		recovery.CapRetry,
		recovery.CapFallback,
	}
}

// Reconnect implements recovery.Session.
func (s *Session) Reconnect(ctx context.Context) error {
	return s.conn.Reconnect(ctx)
}

// RestoreState implements recovery.Session by rejoining the room and
// taking the server's snapshot as-is.
func (s *Session) RestoreState(ctx context.Context) error {
	s.game.ArmResync()
	return s.conn.Rejoin(ctx)
}

// Retry implements recovery.Session. Only the most recent failed request
// can be retried, and only for the error it failed with.
func (s *Session) Retry(ctx context.Context, cerr *errclass.Error) error {
	s.mu.Lock()
	f := s.lastFailed
	s.mu.Unlock()
	if f.req == nil || (cerr != nil && cerr.RequestID != "" && cerr.RequestID != f.id) {
		return ErrNothingToRetry
	}

	if _, err := s.conn.Request(ctx, f.req); err != nil {
		return err
	}
	s.mu.Lock()
	if s.lastFailed.id == f.id {
		s.lastFailed = failedRequest{}
	}
	s.mu.Unlock()
	return nil
}

// EnableFallback implements recovery.Session. Outbound messages stop being
// batched or compressed.
func (s *Session) EnableFallback(context.Context) error {
	s.conn.Optimizer().SetPassThrough(true)
	s.mu.Lock()
	already := s.fallback
	s.fallback = true
	s.mu.Unlock()
	if !already {
		s.logger.Warn("fallback mode enabled")
	}
	return nil
}

var _ recovery.Session = (*Session)(nil)
