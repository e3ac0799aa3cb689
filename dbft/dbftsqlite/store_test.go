package dbftsqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"
	"github.com/r3e-network/neodbft/dbft/dbftsqlite"
	"github.com/r3e-network/neodbft/dbft/dbftstore"
	"github.com/r3e-network/neodbft/dbft/dbftstore/dbftstoretest"
	"github.com/r3e-network/neodbft/internal/dtest"
	"github.com/stretchr/testify/require"
)

func TestBlockStoreCompliance(t *testing.T) {
	t.Parallel()

	log := dtest.NewLogger(t)
	dbftstoretest.TestBlockStoreCompliance(
		t,
		func(ctx context.Context, cleanup func(func())) (dbftstore.BlockStore, error) {
			s, err := dbftsqlite.NewInMemStore(ctx, log)
			if err != nil {
				return nil, err
			}
			cleanup(func() { _ = s.Close() })
			return s, nil
		},
		dbftconsensustest.NewEd25519Fixture,
	)
}

func TestSnapshotStoreCompliance(t *testing.T) {
	t.Parallel()

	log := dtest.NewLogger(t)
	dbftstoretest.TestSnapshotStoreCompliance(
		t,
		func(ctx context.Context, cleanup func(func())) (dbftstore.SnapshotStore, error) {
			s, err := dbftsqlite.NewInMemStore(ctx, log)
			if err != nil {
				return nil, err
			}
			cleanup(func() { _ = s.Close() })
			return s, nil
		},
	)
}

func TestOnDiskStore_reopen(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "dbft.sqlite")
	log := dtest.NewLogger(t)

	fx := dbftconsensustest.NewEd25519Fixture(4)
	chain := fx.BlockChain(ctx, 1, dbftconsensus.Hash{1}, 3)

	s, err := dbftsqlite.NewOnDiskStore(ctx, log, path)
	require.NoError(t, err)
	for _, blk := range chain {
		require.NoError(t, s.CommitBlock(ctx, blk))
	}
	require.NoError(t, s.SaveSnapshot(ctx, 4, []byte("snap")))
	require.NoError(t, s.Close())

	s, err = dbftsqlite.NewOnDiskStore(ctx, log, path)
	require.NoError(t, err)
	defer s.Close()

	last, err := s.LastBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, chain[2], last)

	got, err := s.LoadBlock(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, chain[1], got)

	h, b, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(4), h)
	require.Equal(t, []byte("snap"), b)

	// The chain continues where it left off.
	next := fx.FinalizedBlock(ctx, 4, 0, chain[2].Hash(), nil)
	require.NoError(t, s.CommitBlock(ctx, next))
}
