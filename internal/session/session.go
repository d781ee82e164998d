package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/sketchduel/internal/connection"
	"github.com/rickgao/sketchduel/internal/errclass"
	"github.com/rickgao/sketchduel/internal/game"
	"github.com/rickgao/sketchduel/internal/metrics"
	"github.com/rickgao/sketchduel/internal/model"
	"github.com/rickgao/sketchduel/internal/recovery"
	"github.com/rickgao/sketchduel/internal/transport"
	"github.com/rickgao/sketchduel/internal/wire"
)

// Errors
var (
	ErrDestroyed      = errors.New("session destroyed")
	ErrNotInRoom      = errors.New("not in a room")
	ErrNothingToRetry = errors.New("no failed request to retry")
)

// Config configures a Session.
type Config struct {
	Connection        connection.Config
	Recovery          recovery.Config
	ThrottleThreshold int           // Repeats allowed per window before callbacks are suppressed
	ThrottleWindow    time.Duration // Throttle window
	NoticeBuffer      int           // Buffered notices before new ones are dropped (default: 8)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Connection:        connection.DefaultConfig(),
		Recovery:          recovery.DefaultConfig(),
		ThrottleThreshold: errclass.DefaultThrottleThreshold,
		ThrottleWindow:    errclass.DefaultThrottleWindow,
		NoticeBuffer:      8,
	}
}

// Notice actions offered to the user.
const (
	NoticeRetry  = "retry"
	NoticeReset  = "reset"
	NoticeReload = "reload"
)

// Notice is a user-facing message about a failure recovery could not handle.
// A blocking notice means the session was cleared and the user has to pick
// one of Actions before continuing.
type Notice struct {
	Err         *errclass.Error
	Message     string
	Suggestions []string
	Actions     []string
	Blocking    bool
	At          time.Time
}

// Stats is a diagnostic snapshot of the session.
type Stats struct {
	Connection connection.Stats
	Phase      model.Phase
	Recovering bool
	Fallback   bool
}

// failedRequest is the last request that failed, kept for the retry action.
type failedRequest struct {
	id  string
	req wire.Request
}

// Session is one player's game session.
type Session struct {
	config    Config
	conn      *connection.Manager
	game      *game.StateMachine
	recovery  *recovery.Orchestrator
	throttler *errclass.Throttler
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	destroyOnce sync.Once
	notices     chan Notice

	mu         sync.Mutex
	closed     bool
	fallback   bool
	terminated bool // A blocking notice was raised since the last create/join/resume
	lastFailed failedRequest
	savedPhase model.Phase
	subID      int
	errorSubs  map[int]func(*errclass.Error)
	unsubs     []func()
}

// New creates a Session. A nil store disables snapshots and Resume.
func New(cfg Config, dialer transport.Dialer, store recovery.SnapshotStore, m *metrics.Metrics, logger *slog.Logger) (*Session, error) {
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NoticeBuffer <= 0 {
		cfg.NoticeBuffer = DefaultConfig().NoticeBuffer
	}

	conn, err := connection.NewManager(cfg.Connection, dialer, m, logger)
	if err != nil {
		return nil, fmt.Errorf("create connection manager: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		config:    cfg,
		conn:      conn,
		game:      game.NewStateMachine(conn, m, logger),
		throttler: errclass.NewThrottler(cfg.ThrottleThreshold, cfg.ThrottleWindow),
		metrics:   m,
		logger:    logger.With("component", "session"),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		notices:   make(chan Notice, cfg.NoticeBuffer),
		errorSubs: make(map[int]func(*errclass.Error)),
	}
	s.recovery = recovery.New(s, store, cfg.Recovery, m, logger)

	s.unsubs = append(s.unsubs,
		conn.SubscribeEvents(s.handleEvent),
		conn.SubscribeErrors(s.handleError),
		conn.Subscribe(s.handleStatus),
		s.game.Subscribe(s.handleState),
	)
	return s, nil
}

// Connect opens the game connection.
func (s *Session) Connect(ctx context.Context) error {
	if s.isClosed() {
		return ErrDestroyed
	}
	return s.conn.Connect(ctx)
}

// Disconnect closes the connection but keeps the identity for a later
// Resume or Rejoin.
func (s *Session) Disconnect() {
	s.conn.Disconnect()
}

// RetryConnection is the user-triggered retry after a connection failure.
// It restarts the reconnect cycle with a fresh attempt budget and waits for
// its outcome.
func (s *Session) RetryConnection(ctx context.Context) error {
	if s.isClosed() {
		return ErrDestroyed
	}
	if err := s.conn.Retry(); err != nil {
		return err
	}
	return s.conn.Reconnect(ctx)
}

// Destroy tears the session down: recovery is canceled, the connection is
// destroyed, callbacks are unregistered and the Notices channel is closed.
// Safe to call more than once.
func (s *Session) Destroy() {
	s.destroyOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		unsubs := s.unsubs
		s.unsubs = nil
		s.mu.Unlock()

		s.cancel()
		s.conn.Destroy()
		<-s.conn.Done()
		s.wg.Wait()

		for _, fn := range unsubs {
			fn()
		}

		s.mu.Lock()
		clear(s.errorSubs)
		close(s.notices)
		s.mu.Unlock()
		s.logger.Info("session destroyed")
	})
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// -----------------------------------------------------------------------------
// Observation
// -----------------------------------------------------------------------------

// State returns the current game state.
func (s *Session) State() model.GameState {
	return s.game.State()
}

// Identity returns the session identity.
func (s *Session) Identity() model.SessionIdentity {
	return s.conn.Identity()
}

// Status returns the connection status.
func (s *Session) Status() model.ConnectionStatus {
	return s.conn.Status()
}

// History returns recorded network traffic, oldest first.
func (s *Session) History() []model.NetworkMessage {
	return s.conn.History()
}

// Notices delivers messages that need the user's attention. It is closed
// by Destroy.
func (s *Session) Notices() <-chan Notice {
	return s.notices
}

// Subscribe registers fn for game state updates. fn usually runs on the
// connection's dispatcher goroutine. It may call SetDisplayedWinner and
// CompleteTiebreakAnimation directly, but actions that wait for a server
// reply must be started on another goroutine.
func (s *Session) Subscribe(fn func(model.GameState)) func() {
	return s.track(s.game.Subscribe(fn))
}

// SubscribeStatus registers fn for connection status changes.
func (s *Session) SubscribeStatus(fn func(connection.StateChange)) func() {
	return s.track(s.conn.Subscribe(fn))
}

// SubscribeErrors registers fn for classified errors. Repeats of the same
// error within the throttle window are not delivered; the state's LastError
// is still updated.
func (s *Session) SubscribeErrors(fn func(*errclass.Error)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subID++
	id := s.subID
	s.errorSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.errorSubs, id)
	}
}

// OnAutoSubmit registers fn to run when the drawing time expires before the
// local player submitted. fn runs on the event goroutine and must hand any
// blocking work (such as SubmitDrawing) to another goroutine. It is
// unregistered by Destroy.
func (s *Session) OnAutoSubmit(fn func()) func() {
	return s.track(s.game.OnAutoSubmit(fn))
}

// track keeps unsub so Destroy can call it.
func (s *Session) track(unsub func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubs = append(s.unsubs, unsub)
	return unsub
}

// Stats returns diagnostic statistics.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	fallback := s.fallback
	s.mu.Unlock()
	return Stats{
		Connection: s.conn.Stats(),
		Phase:      s.game.State().Phase,
		Recovering: s.recovery.InProgress(),
		Fallback:   fallback,
	}
}

// Fallback reports whether the session runs in fallback mode.
func (s *Session) Fallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback
}

func (s *Session) errorSubscribers() []func(*errclass.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(*errclass.Error), 0, len(s.errorSubs))
	for _, id := range slices.Sorted(maps.Keys(s.errorSubs)) {
		out = append(out, s.errorSubs[id])
	}
	return out
}

// -----------------------------------------------------------------------------
// Event plumbing
// -----------------------------------------------------------------------------

// handleEvent folds server events into the game state. A rejected update
// is a game-logic error and goes through the normal error path.
func (s *Session) handleEvent(ev wire.Event) {
	if err := s.game.Apply(ev); err != nil {
		cerr := errclass.From(err)
		s.metrics.Errors.WithLabelValues(string(cerr.Kind)).Inc()
		s.handleError(cerr)
	}
}

// handleStatus arms a resync whenever a reconnect starts, so the rejoin
// snapshot replaces whatever state was held before the loss.
func (s *Session) handleStatus(c connection.StateChange) {
	if c.Status == model.StatusReconnecting {
		s.game.ArmResync()
	}
}

// handleState keeps the persisted snapshot's phase current.
func (s *Session) handleState(st model.GameState) {
	s.mu.Lock()
	changed := st.Phase != s.savedPhase
	s.mu.Unlock()
	if changed && s.conn.Identity().InRoom() {
		s.persist(st.Phase)
	}
}

// persist writes the resume snapshot for the current identity.
func (s *Session) persist(phase model.Phase) {
	id := s.conn.Identity()
	if !id.InRoom() {
		return
	}
	snap := recovery.Snapshot{
		PlayerName:         id.PlayerName,
		RoomCode:           id.RoomCode,
		IsHost:             id.IsHost,
		GamePhase:          phase,
		Timestamp:          s.now().UnixMilli(),
		ConnectionAttempts: s.conn.Stats().ReconnectAttempts,
	}
	if err := s.recovery.SaveSnapshot(s.ctx, snap); err != nil {
		s.logger.Warn("failed to save session snapshot", "error", err)
		return
	}
	s.mu.Lock()
	s.savedPhase = phase
	s.mu.Unlock()
}
