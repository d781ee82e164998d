package connection

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/rickgao/sketchduel/internal/errclass"
	"github.com/rickgao/sketchduel/internal/model"
	"github.com/rickgao/sketchduel/internal/optimizer"
	"github.com/rickgao/sketchduel/internal/resilience"
	"github.com/rickgao/sketchduel/internal/transport"
	"github.com/rickgao/sketchduel/internal/wire"
)

// Request types the server answers directly. Other requests are
// acknowledged once written; their effects arrive as broadcast events.
var replyExpected = map[string]bool{
	wire.TypeCreateRoom: true,
	wire.TypeJoinRoom:   true,
}

// Request sends req through the request queue and the executor, retrying
// retryable failures under a single request ID. For create-room and
// join-room it returns the server's reply event, which subscribers have
// already seen by the time Request returns.
func (m *Manager) Request(ctx context.Context, req wire.Request) (wire.Event, error) {
	var ev wire.Event
	err := m.optimizer.Queue().Do(ctx, func(ctx context.Context) error {
		var err error
		ev, err = m.execute(ctx, req, resilience.RequestOptions{Name: req.RequestType()})
		return err
	})
	switch {
	case errors.Is(err, optimizer.ErrQueueFull):
		return nil, errclass.Wrap(errclass.KindTooManyRequests, err)
	case errors.Is(err, optimizer.ErrQueueClosed):
		return nil, ErrDestroyed
	}
	return ev, err
}

// Send writes req without waiting for a reply or retrying. Batchable
// types may be held briefly and coalesced.
func (m *Manager) Send(req wire.Request) error {
	env, err := wire.EncodeRequest(uuid.NewString(), req, m.now())
	if err != nil {
		return err
	}
	return m.optimizer.ProcessOutgoing(env)
}

// execute runs one request through the executor.
func (m *Manager) execute(ctx context.Context, req wire.Request, opts resilience.RequestOptions) (wire.Event, error) {
	id := uuid.NewString()
	opts.RequestID = id
	return resilience.Do(ctx, m.executor, func(ctx context.Context) (wire.Event, error) {
		return m.roundTrip(ctx, id, req)
	}, opts)
}

// roundTrip writes req and, if the type expects one, waits for its reply.
func (m *Manager) roundTrip(ctx context.Context, id string, req wire.Request) (wire.Event, error) {
	env, err := wire.EncodeRequest(id, req, m.now())
	if err != nil {
		return nil, errclass.Wrap(errclass.KindUnknown, err)
	}
	if !replyExpected[env.Type] {
		return nil, m.optimizer.ProcessOutgoing(env)
	}

	ch := make(chan reply, 1)
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return nil, ErrDestroyed
	}
	if m.conn == nil {
		m.mu.Unlock()
		return nil, errclass.New(errclass.KindConnectionLost, "not connected")
	}
	m.pending[id] = ch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.pending[id] == ch {
			delete(m.pending, id)
		}
		m.mu.Unlock()
	}()

	if err := m.optimizer.ProcessOutgoing(env); err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.event, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// write is the optimizer's sink: it puts env on the current connection.
func (m *Manager) write(env wire.Envelope) error {
	frame, err := wire.Marshal(env)
	if err != nil {
		return errclass.Wrap(errclass.KindUnknown, err)
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil || !conn.IsConnected() {
		return errclass.New(errclass.KindConnectionLost, "not connected")
	}
	if err := conn.Send(frame); err != nil {
		return errclass.Wrap(errclass.KindConnectionLost, err)
	}

	m.record(env.Type, frame, model.DirectionSent)
	m.metrics.MessagesSent.WithLabelValues(env.Type).Inc()
	return nil
}

// readLoop consumes conn until its message stream ends.
func (m *Manager) readLoop(conn transport.Transport, gen uint64) {
	defer m.wg.Done()
	for frame := range conn.Messages() {
		m.handleFrame(frame)
	}
	m.connectionEnded(conn, gen)
}

func (m *Manager) handleFrame(frame transport.Frame) {
	envs, err := m.optimizer.ProcessIncoming(frame.Data)
	if err != nil {
		m.logger.Warn("dropping malformed frame", "error", err, "size", len(frame.Data))
		return
	}

	for _, env := range envs {
		m.record(env.Type, env.Data, model.DirectionReceived)
		m.metrics.MessagesReceived.WithLabelValues(env.Type).Inc()

		ev, err := wire.DecodeEvent(env)
		if err != nil {
			if errors.Is(err, wire.ErrUnknownType) {
				m.logger.Debug("ignoring unknown event", "type", env.Type)
			} else {
				m.logger.Warn("dropping undecodable event", "type", env.Type, "error", err)
			}
			continue
		}
		m.route(env.ID, ev)
	}
}

// route hands ev to subscribers and, for replies, to the waiting request.
func (m *Manager) route(id string, ev wire.Event) {
	var ch chan reply
	if id != "" && wire.IsReply(ev.EventType()) {
		m.mu.Lock()
		if c, ok := m.pending[id]; ok {
			ch = c
			delete(m.pending, id)
		}
		m.mu.Unlock()
	}

	if e, ok := ev.(wire.ErrorEvent); ok {
		cerr := &errclass.Error{
			Kind:      errclass.ParseKind(e.Code),
			Message:   e.Message,
			RequestID: id,
		}
		if ch != nil {
			m.dispatch.push(func() { ch <- reply{err: cerr} })
			return
		}
		m.publish(cerr)
		return
	}

	m.dispatch.push(func() {
		for _, fn := range subscribers(m, m.eventSubs) {
			fn(ev)
		}
		if ch != nil {
			ch <- reply{event: ev}
		}
	})
}

// failPendingLocked fails every waiting request. Must be called with mu held.
func (m *Manager) failPendingLocked(err error) {
	for id, ch := range m.pending {
		ch <- reply{err: err}
		delete(m.pending, id)
	}
}

func (m *Manager) record(typ string, payload []byte, dir model.Direction) {
	m.history.Push(model.NewNetworkMessage(typ, payload, dir, m.now()))
}

// -----------------------------------------------------------------------------
// Auxiliary connections
// -----------------------------------------------------------------------------

// Auxiliary returns a pooled side connection for purpose, dialing one if
// needed. Side connections never carry game traffic.
func (m *Manager) Auxiliary(ctx context.Context, purpose string) (transport.Transport, error) {
	conn, err := m.pool.Get(ctx, purpose)
	if err != nil {
		return nil, errclass.Wrap(errclass.KindConnectionFailed, err)
	}
	if !conn.IsConnected() {
		m.pool.Remove(purpose)
		return m.pool.Get(ctx, purpose)
	}
	return conn, nil
}

// Probe checks that the server accepts connections without touching the
// game connection.
func (m *Manager) Probe(ctx context.Context) error {
	_, err := resilience.Do(ctx, m.executor, func(ctx context.Context) (transport.Transport, error) {
		return m.Auxiliary(ctx, "probe")
	}, resilience.RequestOptions{Name: "probe", NoRetry: true})
	return err
}
