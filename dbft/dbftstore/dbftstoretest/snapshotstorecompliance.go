package dbftstoretest

import (
	"context"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftstore"
	"github.com/stretchr/testify/require"
)

// SnapshotStoreFactory returns a fresh, empty SnapshotStore.
type SnapshotStoreFactory func(ctx context.Context, cleanup func(func())) (dbftstore.SnapshotStore, error)

// TestSnapshotStoreCompliance runs the snapshot store compliance suite
// against stores produced by f.
func TestSnapshotStoreCompliance(t *testing.T, f SnapshotStoreFactory) {
	t.Run("empty store", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(ctx, t.Cleanup)
		require.NoError(t, err)

		_, _, err = s.LoadSnapshot(ctx)
		require.ErrorIs(t, err, dbftstore.ErrSnapshotNotFound)
	})

	t.Run("latest snapshot wins", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(ctx, t.Cleanup)
		require.NoError(t, err)

		require.NoError(t, s.SaveSnapshot(ctx, 3, []byte("first")))

		h, b, err := s.LoadSnapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(3), h)
		require.Equal(t, []byte("first"), b)

		require.NoError(t, s.SaveSnapshot(ctx, 4, []byte("second snapshot")))
		require.NoError(t, s.SaveSnapshot(ctx, 4, []byte("third")))

		h, b, err = s.LoadSnapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(4), h)
		require.Equal(t, []byte("third"), b)
	})

	t.Run("store keeps its own copy", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(ctx, t.Cleanup)
		require.NoError(t, err)

		buf := []byte{1, 2, 3}
		require.NoError(t, s.SaveSnapshot(ctx, 1, buf))
		buf[0] = 0xff

		_, b, err := s.LoadSnapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, []byte{1, 2, 3}, b)

		b[1] = 0xff
		_, b, err = s.LoadSnapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, []byte{1, 2, 3}, b)
	})
}
