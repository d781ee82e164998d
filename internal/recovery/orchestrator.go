package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rickgao/sketchduel/internal/errclass"
	"github.com/rickgao/sketchduel/internal/metrics"
	"github.com/rickgao/sketchduel/internal/model"
)

// Errors
var (
	ErrRecoveryInProgress = errors.New("recovery already in progress")
	ErrUnsupported        = errors.New("session does not support this action")
	ErrUserIntervention   = errors.New("user intervention required")
)

// Action is one recovery step.
type Action string

const (
	ActionReconnect        Action = "reconnect"
	ActionRestoreState     Action = "restore-state"
	ActionRetry            Action = "retry"
	ActionUserIntervention Action = "user-intervention"
	ActionFallbackMode     Action = "fallback-mode"
)

// Suggestions offered when every action failed.
const (
	SuggestResetSession = "reset-session"
	SuggestRefresh      = "refresh"
)

// chains maps a strategy to its ordered actions.
var chains = map[errclass.Strategy][]Action{
	errclass.StrategyReconnect:    {ActionReconnect, ActionRestoreState, ActionRetry},
	errclass.StrategyRetry:        {ActionRetry, ActionReconnect, ActionRestoreState},
	errclass.StrategyRestoreState: {ActionRestoreState, ActionReconnect},
	errclass.StrategyUserAction:   {ActionUserIntervention},
	errclass.StrategyFallback:     {ActionReconnect, ActionRestoreState, ActionFallbackMode},
}

// Chain returns the actions tried for strategy. Unknown strategies use the
// fallback chain.
func Chain(strategy errclass.Strategy) []Action {
	chain, ok := chains[strategy]
	if !ok {
		chain = chains[errclass.StrategyFallback]
	}
	return slices.Clone(chain)
}

// Capability is something a Session can do for recovery.
type Capability string

const (
	CapReconnect    Capability = "reconnect"
	CapRestoreState Capability = "restore-state"
	CapRetry        Capability = "retry"
	CapFallback     Capability = "fallback"
)

var required = map[Action]Capability{
	ActionReconnect:    CapReconnect,
	ActionRestoreState: CapRestoreState,
	ActionRetry:        CapRetry,
	ActionFallbackMode: CapFallback,
}

// Session is the recovery target. Actions whose Capability the session does
// not list fail with ErrUnsupported without being called.
type Session interface {
	Capabilities() []Capability

	// Reconnect re-establishes the connection, rejoining the room if any.
	Reconnect(ctx context.Context) error
	// RestoreState re-synchronizes game state from the server.
	RestoreState(ctx context.Context) error
	// Retry re-sends the request that failed with err.
	Retry(ctx context.Context, err *errclass.Error) error
	// EnableFallback switches to a degraded but simpler mode of operation.
	EnableFallback(ctx context.Context) error
	// State returns the current game state.
	State() model.GameState
}

// SessionContext describes the session at the time of the error.
type SessionContext struct {
	Identity           model.SessionIdentity
	Phase              model.Phase
	ConnectionAttempts int
}

// RecoveryContext tracks one recovery run.
type RecoveryContext struct {
	Err         *errclass.Error
	Attempt     int
	MaxAttempts int
	Queue       []Action // Remaining actions
	LastAttempt time.Time
}

// Result is the outcome of a recovery run.
type Result struct {
	Success                  bool
	Action                   Action // Action that succeeded
	Attempts                 int
	State                    model.GameState
	RequiresUserIntervention bool
	Message                  string
	Suggestions              []string
	Err                      error // Last action failure
}

// Config configures an Orchestrator.
type Config struct {
	ActionDelay time.Duration // Pause between actions (default: 1s)
	Staleness   time.Duration // Snapshot staleness window (default: 1h)
	SnapshotKey string        // Snapshot record key
}

// DefaultConfig returns the default recovery settings.
func DefaultConfig() Config {
	return Config{
		ActionDelay: time.Second,
		Staleness:   DefaultStaleness,
		SnapshotKey: DefaultSnapshotKey,
	}
}

// Orchestrator runs recovery chains against a Session, one at a time.
type Orchestrator struct {
	session Session
	store   SnapshotStore
	config  Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	running atomic.Bool
}

// New creates an Orchestrator. A nil store disables snapshots.
func New(session Session, store SnapshotStore, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.ActionDelay < 0 {
		cfg.ActionDelay = 0
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = def.Staleness
	}
	if cfg.SnapshotKey == "" {
		cfg.SnapshotKey = def.SnapshotKey
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		session: session,
		store:   store,
		config:  cfg,
		metrics: m,
		logger:  logger.With("component", "recovery"),
		now:     time.Now,
	}
}

// InProgress reports whether a recovery is running.
func (o *Orchestrator) InProgress() bool {
	return o.running.Load()
}

// InitiateRecovery persists a snapshot and runs the action chain for err's
// strategy until an action succeeds. It fails with ErrRecoveryInProgress if
// another recovery is running and with ctx's error if canceled.
func (o *Orchestrator) InitiateRecovery(ctx context.Context, err error, sc SessionContext) (Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return Result{}, ErrRecoveryInProgress
	}
	defer o.running.Store(false)

	cerr := errclass.From(err)
	if cerr == nil {
		return Result{}, errors.New("recovery: nil error")
	}
	class := cerr.Classification()
	chain := Chain(class.Strategy)
	rc := &RecoveryContext{
		Err:         cerr,
		MaxAttempts: len(chain),
		Queue:       chain,
	}

	o.persist(ctx, sc, cerr)

	logger := o.logger.With("kind", cerr.Kind, "strategy", class.Strategy)
	logger.Info("recovery started", "actions", chain)

	var lastErr error
	for len(rc.Queue) > 0 {
		if rc.Attempt > 0 && o.config.ActionDelay > 0 {
			timer := time.NewTimer(o.config.ActionDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				o.metrics.RecoveryOutcomes.WithLabelValues(string(class.Strategy), "canceled").Inc()
				return Result{Attempts: rc.Attempt, Err: ctx.Err()}, ctx.Err()
			case <-timer.C:
			}
		}

		action := rc.Queue[0]
		rc.Queue = rc.Queue[1:]
		rc.Attempt++
		rc.LastAttempt = o.now()

		if action == ActionUserIntervention {
			lastErr = ErrUserIntervention
			break
		}

		err := o.run(ctx, action, cerr)
		if err == nil {
			logger.Info("recovery succeeded", "action", action, "attempt", rc.Attempt)
			o.metrics.RecoveryOutcomes.WithLabelValues(string(class.Strategy), "success").Inc()
			return Result{
				Success:  true,
				Action:   action,
				Attempts: rc.Attempt,
				State:    o.session.State(),
			}, nil
		}
		if ctx.Err() != nil {
			o.metrics.RecoveryOutcomes.WithLabelValues(string(class.Strategy), "canceled").Inc()
			return Result{Attempts: rc.Attempt, Err: ctx.Err()}, ctx.Err()
		}
		lastErr = err
		logger.Warn("recovery action failed",
			"action", action,
			"attempt", rc.Attempt,
			"max_attempts", rc.MaxAttempts,
			"error", err,
		)
	}

	logger.Warn("recovery exhausted", "attempts", rc.Attempt, "error", lastErr)
	o.metrics.RecoveryOutcomes.WithLabelValues(string(class.Strategy), "user_intervention").Inc()
	return Result{
		Attempts:                 rc.Attempt,
		State:                    o.session.State(),
		RequiresUserIntervention: true,
		Message:                  class.UserMessage,
		Suggestions:              []string{SuggestResetSession, SuggestRefresh},
		Err:                      lastErr,
	}, nil
}

func (o *Orchestrator) run(ctx context.Context, action Action, cerr *errclass.Error) error {
	if need, ok := required[action]; ok && !slices.Contains(o.session.Capabilities(), need) {
		return fmt.Errorf("%s: %w", action, ErrUnsupported)
	}
	switch action {
	case ActionReconnect:
		return o.session.Reconnect(ctx)
	case ActionRestoreState:
		return o.session.RestoreState(ctx)
	case ActionRetry:
		return o.session.Retry(ctx, cerr)
	case ActionFallbackMode:
		return o.session.EnableFallback(ctx)
	default:
		return fmt.Errorf("unknown recovery action %q", action)
	}
}

// persist writes the pre-recovery snapshot. Failures are logged only.
func (o *Orchestrator) persist(ctx context.Context, sc SessionContext, cerr *errclass.Error) {
	if o.store == nil || !sc.Identity.InRoom() {
		return
	}
	snap := Snapshot{
		PlayerName:         sc.Identity.PlayerName,
		RoomCode:           sc.Identity.RoomCode,
		IsHost:             sc.Identity.IsHost,
		GamePhase:          sc.Phase,
		Timestamp:          o.now().UnixMilli(),
		ConnectionAttempts: sc.ConnectionAttempts,
		LastError:          cerr.Error(),
	}
	if err := SaveSnapshot(ctx, o.store, o.config.SnapshotKey, snap); err != nil {
		o.logger.Warn("failed to persist recovery snapshot", "error", err)
	}
}

// SaveSnapshot persists snap under the configured key.
func (o *Orchestrator) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if o.store == nil {
		return nil
	}
	if snap.Timestamp == 0 {
		snap.Timestamp = o.now().UnixMilli()
	}
	return SaveSnapshot(ctx, o.store, o.config.SnapshotKey, snap)
}

// LoadSnapshot returns the persisted snapshot, discarding a stale one.
func (o *Orchestrator) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	if o.store == nil {
		return Snapshot{}, ErrNoSnapshot
	}
	return LoadSnapshot(ctx, o.store, o.config.SnapshotKey, o.config.Staleness, o.now())
}

// ClearSnapshot deletes the persisted snapshot.
func (o *Orchestrator) ClearSnapshot(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	return o.store.Delete(ctx, o.config.SnapshotKey)
}
