// Package database provides a PostgreSQL-backed recovery.SnapshotStore.
//
// Headless clients (bots, load generators) that share a host keep their
// session snapshots in one table keyed by snapshot key:
//
//	CREATE TABLE session_snapshots (
//	    key        TEXT PRIMARY KEY,
//	    data       JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
// EnsureSchema creates the table when it does not exist.
package database
