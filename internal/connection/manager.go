package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/sketchduel/internal/errclass"
	"github.com/rickgao/sketchduel/internal/history"
	"github.com/rickgao/sketchduel/internal/metrics"
	"github.com/rickgao/sketchduel/internal/model"
	"github.com/rickgao/sketchduel/internal/optimizer"
	"github.com/rickgao/sketchduel/internal/resilience"
	"github.com/rickgao/sketchduel/internal/transport"
	"github.com/rickgao/sketchduel/internal/wire"
)

// Manager owns the game connection: its status, automatic reconnection and
// rejoin, request/reply correlation and event fan-out.
//
// Subscribers are called on a single dispatcher goroutine, in the order the
// underlying changes happened. They may call back into the Manager but must
// not block on Request, whose reply is delivered by that same goroutine.
type Manager struct {
	config    Config
	dialer    transport.Dialer
	executor  *resilience.Executor
	optimizer *optimizer.Optimizer
	pool      *optimizer.Pool[transport.Transport]
	history   *history.Ring[model.NetworkMessage]
	metrics   *metrics.Metrics
	logger    *slog.Logger
	dispatch  *dispatchQueue
	now       func() time.Time

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	destroyOnce sync.Once

	mu         sync.Mutex
	status     model.ConnectionStatus
	identity   model.SessionIdentity
	conn       transport.Transport
	connGen    uint64 // Bumped whenever conn changes; stale read loops compare against it
	attempts   int
	reconnects int64
	loop       *reconnectLoop
	pending    map[string]chan reply
	destroyed  bool

	subID     int
	stateSubs map[int]func(StateChange)
	errorSubs map[int]func(*errclass.Error)
	eventSubs map[int]func(wire.Event)
}

// reply is what a pending request receives.
type reply struct {
	event wire.Event
	err   error
}

// NewManager creates a disconnected Manager. Call Connect to dial.
func NewManager(cfg Config, dialer transport.Dialer, m *metrics.Metrics, logger *slog.Logger) (*Manager, error) {
	if dialer == nil {
		return nil, errors.New("connection: dialer is required")
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	logger = logger.With("component", "connection")

	ctx, cancel := context.WithCancel(context.Background())
	mgr := &Manager{
		config:    cfg,
		dialer:    dialer,
		executor:  resilience.NewExecutor(cfg.Executor, m, logger),
		history:   history.NewRing[model.NetworkMessage](cfg.HistorySize),
		metrics:   m,
		logger:    logger,
		dispatch:  newDispatchQueue(64),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		status:    model.StatusDisconnected,
		pending:   make(map[string]chan reply),
		stateSubs: make(map[int]func(StateChange)),
		errorSubs: make(map[int]func(*errclass.Error)),
		eventSubs: make(map[int]func(wire.Event)),
	}
	mgr.identity.Status = model.StatusDisconnected
	mgr.optimizer = optimizer.New(cfg.Optimizer, mgr.write, m, logger)

	pool, err := optimizer.NewPool(cfg.Optimizer.PoolSize, cfg.Optimizer.PoolKeepAlive,
		func(ctx context.Context, purpose string) (transport.Transport, error) {
			return dialer.Dial(ctx)
		}, m, logger)
	if err != nil {
		cancel()
		mgr.optimizer.Destroy()
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	mgr.pool = pool

	m.SetStatus(string(model.StatusDisconnected))
	go mgr.dispatch.run(logger)
	return mgr, nil
}

// Connect dials the server. If a reconnect cycle is running, Connect waits
// for it instead of dialing on its own.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrDestroyed
	}
	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	if l := m.loop; l != nil {
		m.mu.Unlock()
		return l.wait(ctx)
	}
	m.setStatusLocked(model.StatusConnecting, 0, nil)
	m.mu.Unlock()

	conn, err := m.dial(ctx, resilience.RequestOptions{Name: "connect"})
	if err != nil {
		m.logger.Warn("connect failed", "error", err)
		m.mu.Lock()
		m.setStatusLocked(model.StatusError, 0, err)
		m.mu.Unlock()
		m.record(wire.TypeConnectError, []byte(err.Error()), model.DirectionEvent)
		m.dispatchEvent(wire.ConnectError{Message: err.Error()})
		return err
	}
	if err := m.attach(conn, 0); err != nil {
		return err
	}
	m.logger.Info("connected")
	return nil
}

// Disconnect closes the connection and stops any reconnect cycle. The
// identity is kept so a later Connect and Rejoin can resume the session.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	l := m.loop
	m.mu.Unlock()

	if l != nil {
		l.cancel()
		<-l.done
	}
	m.optimizer.Flush()

	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.connGen++
	m.attempts = 0
	m.failPendingLocked(errclass.New(errclass.KindConnectionLost, "disconnected by client"))
	changed := m.setStatusLocked(model.StatusDisconnected, 0, nil)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if conn != nil || changed {
		m.record(wire.TypeDisconnect, nil, model.DirectionEvent)
		m.dispatchEvent(wire.Disconnected{Reason: "client disconnect"})
		m.logger.Info("disconnected")
	}
}

// Destroy releases every resource and removes all subscribers. The Manager
// cannot be used afterwards. Safe to call more than once.
func (m *Manager) Destroy() {
	m.destroyOnce.Do(func() {
		m.mu.Lock()
		m.destroyed = true
		conn := m.conn
		m.conn = nil
		m.connGen++
		m.failPendingLocked(errclass.Wrap(errclass.KindConnectionLost, ErrDestroyed))
		m.setStatusLocked(model.StatusDisconnected, 0, nil)
		m.mu.Unlock()

		m.cancel()
		m.optimizer.Destroy()
		m.pool.Close()
		if conn != nil {
			_ = conn.Close()
		}
		m.wg.Wait()

		// Queued notifications still run; subscribers are dropped after them.
		m.dispatch.push(func() {
			m.mu.Lock()
			clear(m.stateSubs)
			clear(m.errorSubs)
			clear(m.eventSubs)
			m.mu.Unlock()
		})
		m.dispatch.close()
		m.logger.Info("connection manager destroyed")
	})
}

// Done is closed once Destroy has run and all notifications were delivered.
func (m *Manager) Done() <-chan struct{} {
	return m.dispatch.done
}

// Status returns the current connection status.
func (m *Manager) Status() model.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsConnected reports whether a live connection is attached.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil && m.conn.IsConnected()
}

// Identity returns the stored session identity.
func (m *Manager) Identity() model.SessionIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// SetIdentity stores the identity replayed on reconnect. Status is owned by
// the Manager and ignored.
func (m *Manager) SetIdentity(id model.SessionIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id.Status = m.status
	m.identity = id
}

// ClearIdentity forgets the room so reconnects no longer rejoin.
func (m *Manager) ClearIdentity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = model.SessionIdentity{Status: m.status}
}

// History returns recorded traffic, oldest first.
func (m *Manager) History() []model.NetworkMessage {
	return m.history.Snapshot()
}

// Optimizer returns the outbound optimizer.
func (m *Manager) Optimizer() *optimizer.Optimizer {
	return m.optimizer
}

// Executor returns the request executor.
func (m *Manager) Executor() *resilience.Executor {
	return m.executor
}

// Stats returns current connection statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	s := Stats{
		Status:            m.status,
		Connected:         m.conn != nil && m.conn.IsConnected(),
		ReconnectAttempts: m.attempts,
		Reconnects:        m.reconnects,
		PendingRequests:   len(m.pending),
	}
	m.mu.Unlock()

	s.AuxiliaryConns = m.pool.Len()
	s.History = m.history.Stats()
	s.Optimizer = m.optimizer.Stats()
	s.Health = m.executor.Health()
	return s
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

// Subscribe registers fn for status changes and returns its unsubscribe func.
func (m *Manager) Subscribe(fn func(StateChange)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subID++
	id := m.subID
	m.stateSubs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.stateSubs, id)
	}
}

// SubscribeErrors registers fn for classified connection and server errors.
// Errors that answer a pending Request go to its caller instead.
func (m *Manager) SubscribeErrors(fn func(*errclass.Error)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subID++
	id := m.subID
	m.errorSubs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.errorSubs, id)
	}
}

// SubscribeEvents registers fn for server events and the synthesized
// lifecycle events Connected, Disconnected and ConnectError.
func (m *Manager) SubscribeEvents(fn func(wire.Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subID++
	id := m.subID
	m.eventSubs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.eventSubs, id)
	}
}

// setStatusLocked records a status change and queues its notification.
// Reports whether the status changed. Must be called with mu held.
func (m *Manager) setStatusLocked(status model.ConnectionStatus, attempt int, cause error) bool {
	prev := m.status
	if prev == status && attempt == 0 {
		return false
	}
	m.status = status
	m.identity.Status = status
	m.metrics.SetStatus(string(status))

	change := StateChange{
		Previous: prev,
		Status:   status,
		Identity: m.identity,
		Attempt:  attempt,
		Err:      cause,
		At:       m.now(),
	}
	m.dispatch.push(func() {
		for _, fn := range subscribers(m, m.stateSubs) {
			fn(change)
		}
	})
	return true
}

func (m *Manager) dispatchEvent(ev wire.Event) {
	m.dispatch.push(func() {
		for _, fn := range subscribers(m, m.eventSubs) {
			fn(ev)
		}
	})
}

// publish reports err to error subscribers.
func (m *Manager) publish(err *errclass.Error) {
	m.metrics.Errors.WithLabelValues(string(err.Kind)).Inc()
	m.dispatch.push(func() {
		for _, fn := range subscribers(m, m.errorSubs) {
			fn(err)
		}
	})
}

// subscribers copies a subscriber map in registration order.
func subscribers[F any](m *Manager, subs map[int]F) []F {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]F, 0, len(subs))
	for _, id := range slices.Sorted(maps.Keys(subs)) {
		out = append(out, subs[id])
	}
	return out
}
