// Package storage provides a badger-backed recovery.SnapshotStore for
// persisting session snapshots on the local disk.
package storage
