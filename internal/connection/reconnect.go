package connection

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/sketchduel/internal/errclass"
	"github.com/rickgao/sketchduel/internal/model"
	"github.com/rickgao/sketchduel/internal/resilience"
	"github.com/rickgao/sketchduel/internal/transport"
	"github.com/rickgao/sketchduel/internal/wire"
)

// reconnectLoop is one running reconnect cycle.
type reconnectLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error // Outcome; read only after done is closed
}

func (l *reconnectLoop) wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconnect starts a reconnect cycle, or joins the running one, and waits
// for its outcome. It returns nil immediately when already connected.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrDestroyed
	}
	if m.conn != nil && m.loop == nil {
		m.mu.Unlock()
		return nil
	}
	l := m.startReconnectLocked()
	m.mu.Unlock()
	return l.wait(ctx)
}

// Retry abandons any running reconnect cycle, resets the attempt counter and
// starts a fresh cycle. Used after the terminal connection failure.
func (m *Manager) Retry() error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrDestroyed
	}
	l := m.loop
	m.mu.Unlock()

	if l != nil {
		l.cancel()
		<-l.done
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return ErrDestroyed
	}
	m.attempts = 0
	if m.conn != nil {
		return nil
	}
	m.logger.Info("manual retry requested")
	m.startReconnectLocked()
	return nil
}

// Rejoin replays the stored identity on the current connection and waits
// for the server to confirm it.
func (m *Manager) Rejoin(ctx context.Context) error {
	id := m.Identity()
	if !id.InRoom() {
		return ErrNoIdentity
	}
	return m.rejoin(ctx, id, resilience.RequestOptions{Name: "rejoin"})
}

// startReconnectLocked returns the running cycle or starts a new one.
// Must be called with mu held.
func (m *Manager) startReconnectLocked() *reconnectLoop {
	if m.loop != nil {
		return m.loop
	}
	ctx, cancel := context.WithCancel(m.ctx)
	l := &reconnectLoop{cancel: cancel, done: make(chan struct{})}
	m.loop = l
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(l.done)
		defer cancel()

		l.err = m.reconnect(ctx)

		m.mu.Lock()
		if m.loop == l {
			m.loop = nil
		}
		m.mu.Unlock()
	}()
	return l
}

// reconnect runs attempts until one connects (and rejoins, when in a room),
// the budget is exhausted or ctx is canceled.
func (m *Manager) reconnect(ctx context.Context) error {
	backoff := m.config.Reconnect.Backoff()
	maxAttempts := m.config.Reconnect.MaxAttempts
	var lastErr error

	for {
		m.mu.Lock()
		if m.attempts >= maxAttempts {
			m.mu.Unlock()
			return m.giveUp(lastErr)
		}
		m.attempts++
		attempt := m.attempts
		m.setStatusLocked(model.StatusReconnecting, attempt, lastErr)
		m.mu.Unlock()

		m.metrics.ReconnectAttempts.Inc()
		delay := backoff.Delay(attempt)
		m.logger.Info("reconnecting",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ErrReconnectCanceled
		case <-timer.C:
		}

		conn, err := m.dial(ctx, resilience.RequestOptions{Name: "reconnect", NoRetry: true})
		if err != nil {
			if ctx.Err() != nil {
				return ErrReconnectCanceled
			}
			m.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}
		if err := m.attach(conn, attempt); err != nil {
			return err
		}

		id := m.Identity()
		if id.InRoom() {
			err := m.rejoin(ctx, id, resilience.RequestOptions{Name: "rejoin", NoRetry: true})
			if err != nil {
				if ctx.Err() != nil {
					return ErrReconnectCanceled
				}
				cerr := errclass.From(err)
				if !errclass.IsRetryable(cerr) {
					// The connection is fine; the room is not.
					m.logger.Warn("rejoin rejected", "room", id.RoomCode, "error", cerr)
					m.mu.Lock()
					m.attempts = 0
					m.mu.Unlock()
					m.publish(cerr)
					return cerr
				}
				m.logger.Warn("rejoin failed", "attempt", attempt, "error", cerr)
				m.drop(conn)
				lastErr = cerr
				continue
			}
		}

		m.mu.Lock()
		m.attempts = 0
		m.reconnects++
		m.mu.Unlock()
		m.logger.Info("reconnected", "attempt", attempt, "rejoined", id.InRoom())
		return nil
	}
}

// giveUp ends a cycle whose attempts are exhausted.
func (m *Manager) giveUp(lastErr error) error {
	msg := "unable to reconnect to the server"
	if lastErr != nil {
		msg = msg + ": " + lastErr.Error()
	}
	cerr := &errclass.Error{
		Kind:     errclass.KindConnectionFailed,
		Message:  msg,
		Terminal: true,
		Err:      lastErr,
	}

	m.mu.Lock()
	m.setStatusLocked(model.StatusError, 0, cerr)
	m.mu.Unlock()

	m.logger.Error("reconnect attempts exhausted",
		"max_attempts", m.config.Reconnect.MaxAttempts,
		"error", lastErr,
	)
	m.publish(cerr)
	return cerr
}

// rejoin sends a rejoin for id and waits for room-joined.
func (m *Manager) rejoin(ctx context.Context, id model.SessionIdentity, opts resilience.RequestOptions) error {
	req := wire.JoinRoom{
		RoomCode:   id.RoomCode,
		PlayerName: id.PlayerName,
		Rejoin:     true,
		IsHost:     id.IsHost,
	}
	_, err := m.execute(ctx, req, opts)
	return err
}

// dial opens a game connection through the executor so dials count toward
// connection health and the breaker.
func (m *Manager) dial(ctx context.Context, opts resilience.RequestOptions) (transport.Transport, error) {
	return resilience.Do(ctx, m.executor, func(ctx context.Context) (transport.Transport, error) {
		conn, err := m.dialer.Dial(ctx)
		if err != nil {
			if errclass.KindOf(err) == errclass.KindUnknown {
				return nil, errclass.Wrap(errclass.KindConnectionFailed, err)
			}
			return nil, err
		}
		if ctx.Err() != nil {
			// Arrived after the attempt gave up.
			_ = conn.Close()
			return nil, ctx.Err()
		}
		return conn, nil
	}, opts)
}

// attach installs conn as the game connection and starts reading from it.
func (m *Manager) attach(conn transport.Transport, attempt int) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		_ = conn.Close()
		return ErrDestroyed
	}
	if m.conn != nil {
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	m.connGen++
	gen := m.connGen
	m.conn = conn
	if attempt == 0 {
		// A fresh connection gets a fresh reconnect budget.
		m.attempts = 0
	}
	m.setStatusLocked(model.StatusConnected, attempt, nil)
	m.wg.Add(1)
	m.mu.Unlock()

	m.record(wire.TypeConnect, nil, model.DirectionEvent)
	m.dispatchEvent(wire.Connected{})
	go m.readLoop(conn, gen)
	return nil
}

// drop detaches and closes conn without treating it as a loss.
func (m *Manager) drop(conn transport.Transport) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		m.connGen++
	}
	m.failPendingLocked(errclass.New(errclass.KindConnectionLost, "connection dropped"))
	m.mu.Unlock()
	_ = conn.Close()
}

// connectionEnded handles the end of conn's message stream. Ends caused by
// Disconnect, Destroy or drop have already bumped the generation and are
// ignored; anything else is an unexpected loss and starts a reconnect cycle.
func (m *Manager) connectionEnded(conn transport.Transport, gen uint64) {
	cause := conn.Err()
	if cause == nil {
		cause = errors.New("connection closed by server")
	}

	m.mu.Lock()
	if m.destroyed || gen != m.connGen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.connGen++
	lost := errclass.Wrap(errclass.KindConnectionLost, cause)
	m.failPendingLocked(lost)
	m.setStatusLocked(model.StatusDisconnected, 0, lost)
	m.mu.Unlock()

	m.logger.Warn("connection lost", "error", cause)
	m.record(wire.TypeDisconnect, []byte(cause.Error()), model.DirectionEvent)
	m.dispatchEvent(wire.Disconnected{Reason: cause.Error()})
	m.publish(lost)

	m.mu.Lock()
	if !m.destroyed {
		m.startReconnectLocked()
	}
	m.mu.Unlock()
}
