package dbftmemstore

import (
	"context"
	"slices"
	"sync"

	"github.com/r3e-network/neodbft/dbft/dbftstore"
)

// SnapshotStore is an in-memory [dbftstore.SnapshotStore].
type SnapshotStore struct {
	mu sync.Mutex

	height uint64
	snap   []byte
}

func NewSnapshotStore() *SnapshotStore {
	return new(SnapshotStore)
}

func (s *SnapshotStore) SaveSnapshot(_ context.Context, height uint64, b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.height = height
	s.snap = slices.Clone(b)
	if s.snap == nil {
		s.snap = []byte{}
	}
	return nil
}

func (s *SnapshotStore) LoadSnapshot(_ context.Context) (uint64, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		return 0, nil, dbftstore.ErrSnapshotNotFound
	}
	return s.height, slices.Clone(s.snap), nil
}
