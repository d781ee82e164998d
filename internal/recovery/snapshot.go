package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rickgao/sketchduel/internal/model"
)

// DefaultSnapshotKey is the record key sessions persist under.
const DefaultSnapshotKey = "sketchduel.session"

// DefaultStaleness is how long a snapshot stays usable.
const DefaultStaleness = time.Hour

// Errors
var (
	ErrNoSnapshot    = errors.New("no session snapshot")
	ErrStaleSnapshot = errors.New("session snapshot is stale")
)

// Snapshot is the minimal session record needed to resume after a restart.
type Snapshot struct {
	PlayerName         string      `json:"playerName"`
	RoomCode           string      `json:"roomCode"`
	IsHost             bool        `json:"isHost"`
	GamePhase          model.Phase `json:"gamePhase"`
	Timestamp          int64       `json:"timestamp"` // Unix milliseconds
	ConnectionAttempts int         `json:"connectionAttempts"`
	LastError          string      `json:"lastError,omitempty"`
}

// Time returns the snapshot timestamp.
func (s Snapshot) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Identity returns the identity the snapshot describes.
func (s Snapshot) Identity() model.SessionIdentity {
	return model.SessionIdentity{
		RoomCode:   s.RoomCode,
		PlayerName: s.PlayerName,
		IsHost:     s.IsHost,
	}
}

// SnapshotStore persists snapshot records by key. Load returns ErrNoSnapshot
// when the key is absent; Delete of a missing key is not an error.
type SnapshotStore interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// SaveSnapshot serializes snap under key.
func SaveSnapshot(ctx context.Context, store SnapshotStore, key string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := store.Save(ctx, key, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the snapshot under key. A record older than staleness
// is deleted and reported as ErrStaleSnapshot; an unreadable record is
// deleted and reported as ErrNoSnapshot.
func LoadSnapshot(ctx context.Context, store SnapshotStore, key string, staleness time.Duration, now time.Time) (Snapshot, error) {
	data, err := store.Load(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		_ = store.Delete(ctx, key)
		return Snapshot{}, fmt.Errorf("%w: corrupt record: %v", ErrNoSnapshot, err)
	}
	if staleness > 0 && now.Sub(snap.Time()) > staleness {
		if err := store.Delete(ctx, key); err != nil {
			return Snapshot{}, fmt.Errorf("clear stale snapshot: %w", err)
		}
		return Snapshot{}, ErrStaleSnapshot
	}
	return snap, nil
}

// MemoryStore is an in-process SnapshotStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (m *MemoryStore) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.records[key]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

var _ SnapshotStore = (*MemoryStore)(nil)
