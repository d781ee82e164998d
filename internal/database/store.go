package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/sketchduel/internal/config"
	"github.com/rickgao/sketchduel/internal/recovery"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS session_snapshots (
	key        TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	upsertSQL = `INSERT INTO session_snapshots (key, data, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`

	selectSQL = `SELECT data FROM session_snapshots WHERE key = $1`
	deleteSQL = `DELETE FROM session_snapshots WHERE key = $1`
)

// DB is the subset of pgxpool.Pool used by Store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store keeps snapshots in PostgreSQL.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore wraps an existing pool or connection.
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger.With("component", "database")}
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the snapshot table if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create session_snapshots: %w", err)
	}
	return nil
}

// Save implements recovery.SnapshotStore.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if _, err := s.db.Exec(ctx, upsertSQL, key, data); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

// Load implements recovery.SnapshotStore.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(ctx, selectSQL, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, recovery.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return data, nil
}

// Delete implements recovery.SnapshotStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	tag, err := s.db.Exec(ctx, deleteSQL, key)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	s.logger.Debug("snapshot deleted", "key", key, "rows", tag.RowsAffected())
	return nil
}

var _ recovery.SnapshotStore = (*Store)(nil)
