package dbftstore

import (
	"context"
	"errors"
)

// SnapshotStore holds the most recent encoded consensus snapshot.
// Only the latest snapshot is retained.
type SnapshotStore interface {
	// SaveSnapshot replaces the stored snapshot.
	// The store retains its own copy of b.
	SaveSnapshot(ctx context.Context, height uint64, b []byte) error

	// LoadSnapshot returns the latest snapshot and the height it was saved for,
	// or [ErrSnapshotNotFound].
	LoadSnapshot(ctx context.Context) (height uint64, b []byte, err error)
}

// ErrSnapshotNotFound is returned from [SnapshotStore.LoadSnapshot]
// when nothing has been saved.
var ErrSnapshotNotFound = errors.New("snapshot not found")
