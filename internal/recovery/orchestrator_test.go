package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/sketchduel/internal/errclass"
	"github.com/rickgao/sketchduel/internal/model"
)

// fakeSession records actions and fails those listed in fail.
type fakeSession struct {
	mu    sync.Mutex
	caps  []Capability
	fail  map[Action]error
	calls []Action
	block chan struct{} // When set, Reconnect waits on it
	state model.GameState
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		caps:  []Capability{CapReconnect, CapRestoreState, CapRetry, CapFallback},
		fail:  map[Action]error{},
		state: model.GameState{Phase: model.PhaseVoting},
	}
}

func (f *fakeSession) do(a Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, a)
	return f.fail[a]
}

func (f *fakeSession) Capabilities() []Capability { return f.caps }

func (f *fakeSession) Reconnect(ctx context.Context) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.do(ActionReconnect)
}

func (f *fakeSession) RestoreState(context.Context) error { return f.do(ActionRestoreState) }

func (f *fakeSession) Retry(context.Context, *errclass.Error) error { return f.do(ActionRetry) }

func (f *fakeSession) EnableFallback(context.Context) error { return f.do(ActionFallbackMode) }

func (f *fakeSession) State() model.GameState { return f.state }

func (f *fakeSession) actions() []Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Action(nil), f.calls...)
}

func newTestOrchestrator(s Session, store SnapshotStore) *Orchestrator {
	return New(s, store, Config{ActionDelay: time.Millisecond}, nil, nil)
}

var errBoom = errors.New("boom")

func inRoom() SessionContext {
	return SessionContext{
		Identity:           model.SessionIdentity{RoomCode: "AB12CD", PlayerName: "Ann", IsHost: true},
		Phase:              model.PhaseDrawing,
		ConnectionAttempts: 2,
	}
}

func TestChain(t *testing.T) {
	tests := []struct {
		strategy errclass.Strategy
		want     []Action
	}{
		{errclass.StrategyReconnect, []Action{ActionReconnect, ActionRestoreState, ActionRetry}},
		{errclass.StrategyRetry, []Action{ActionRetry, ActionReconnect, ActionRestoreState}},
		{errclass.StrategyRestoreState, []Action{ActionRestoreState, ActionReconnect}},
		{errclass.StrategyUserAction, []Action{ActionUserIntervention}},
		{errclass.StrategyFallback, []Action{ActionReconnect, ActionRestoreState, ActionFallbackMode}},
		{"mystery", []Action{ActionReconnect, ActionRestoreState, ActionFallbackMode}},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			assert.Equal(t, tt.want, Chain(tt.strategy))
		})
	}
}

func TestInitiateRecovery_FirstActionSucceeds(t *testing.T) {
	s := newFakeSession()
	o := newTestOrchestrator(s, nil)

	res, err := o.InitiateRecovery(context.Background(), errclass.New(errclass.KindConnectionLost, "gone"), inRoom())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, ActionReconnect, res.Action)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, model.PhaseVoting, res.State.Phase)
	assert.Equal(t, []Action{ActionReconnect}, s.actions())
}

func TestInitiateRecovery_FallsThroughChain(t *testing.T) {
	s := newFakeSession()
	s.fail[ActionReconnect] = errBoom
	o := newTestOrchestrator(s, nil)

	res, err := o.InitiateRecovery(context.Background(), errclass.New(errclass.KindConnectionLost, "gone"), inRoom())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, ActionRestoreState, res.Action)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []Action{ActionReconnect, ActionRestoreState}, s.actions())
}

func TestInitiateRecovery_AllFail(t *testing.T) {
	s := newFakeSession()
	s.fail[ActionReconnect] = errBoom
	s.fail[ActionRestoreState] = errBoom
	s.fail[ActionFallbackMode] = errBoom
	o := newTestOrchestrator(s, nil)

	res, err := o.InitiateRecovery(context.Background(), errors.New("weird"), inRoom())
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, res.RequiresUserIntervention)
	assert.Equal(t, []string{SuggestResetSession, SuggestRefresh}, res.Suggestions)
	assert.Equal(t, 3, res.Attempts)
	assert.ErrorIs(t, res.Err, errBoom)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, []Action{ActionReconnect, ActionRestoreState, ActionFallbackMode}, s.actions())
}

func TestInitiateRecovery_UserAction(t *testing.T) {
	s := newFakeSession()
	o := newTestOrchestrator(s, nil)

	res, err := o.InitiateRecovery(context.Background(), errclass.New(errclass.KindRoomFull, "full"), inRoom())
	require.NoError(t, err)

	assert.True(t, res.RequiresUserIntervention)
	assert.ErrorIs(t, res.Err, ErrUserIntervention)
	assert.Empty(t, s.actions(), "no automated action for user errors")
}

func TestInitiateRecovery_MissingCapability(t *testing.T) {
	s := newFakeSession()
	s.caps = []Capability{CapRestoreState}
	o := newTestOrchestrator(s, nil)

	res, err := o.InitiateRecovery(context.Background(), errclass.New(errclass.KindConnectionLost, "gone"), inRoom())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, ActionRestoreState, res.Action)
	assert.Equal(t, []Action{ActionRestoreState}, s.actions(), "reconnect skipped without being called")
}

func TestInitiateRecovery_InProgressGuard(t *testing.T) {
	s := newFakeSession()
	s.block = make(chan struct{})
	o := newTestOrchestrator(s, nil)

	done := make(chan Result)
	go func() {
		res, _ := o.InitiateRecovery(context.Background(), errclass.New(errclass.KindConnectionLost, "gone"), inRoom())
		done <- res
	}()
	require.Eventually(t, o.InProgress, time.Second, time.Millisecond)

	_, err := o.InitiateRecovery(context.Background(), errclass.New(errclass.KindConnectionLost, "again"), inRoom())
	assert.ErrorIs(t, err, ErrRecoveryInProgress)

	close(s.block)
	res := <-done
	assert.True(t, res.Success)
	assert.False(t, o.InProgress())
}

func TestInitiateRecovery_Canceled(t *testing.T) {
	s := newFakeSession()
	s.fail[ActionReconnect] = errBoom
	o := New(s, nil, Config{ActionDelay: time.Hour}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := o.InitiateRecovery(ctx, errclass.New(errclass.KindConnectionLost, "gone"), inRoom())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []Action{ActionReconnect}, s.actions())
}

func TestInitiateRecovery_PersistsSnapshot(t *testing.T) {
	store := NewMemoryStore()
	o := newTestOrchestrator(newFakeSession(), store)
	now := time.UnixMilli(1_700_000_000_000)
	o.now = func() time.Time { return now }

	_, err := o.InitiateRecovery(context.Background(), errclass.New(errclass.KindConnectionLost, "gone"), inRoom())
	require.NoError(t, err)

	snap, err := o.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Snapshot{
		PlayerName:         "Ann",
		RoomCode:           "AB12CD",
		IsHost:             true,
		GamePhase:          model.PhaseDrawing,
		Timestamp:          now.UnixMilli(),
		ConnectionAttempts: 2,
		LastError:          "connection_lost: gone",
	}, snap)
}

func TestInitiateRecovery_NoSnapshotOutsideRoom(t *testing.T) {
	store := NewMemoryStore()
	o := newTestOrchestrator(newFakeSession(), store)

	_, err := o.InitiateRecovery(context.Background(), errclass.New(errclass.KindConnectionLost, "gone"), SessionContext{})
	require.NoError(t, err)

	_, err = o.LoadSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}
