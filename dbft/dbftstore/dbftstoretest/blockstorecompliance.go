// Package dbftstoretest contains compliance suites
// that every [dbftstore] implementation should pass.
package dbftstoretest

import (
	"context"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftstore"
	"github.com/stretchr/testify/require"
)

// BlockStoreFactory returns a fresh, empty BlockStore.
// Cleanup functions registered through cleanup run when the subtest ends.
type BlockStoreFactory func(ctx context.Context, cleanup func(func())) (dbftstore.BlockStore, error)

var genesisHash = dbftconsensus.Hash{0x6e, 0x65, 0x6f}

// TestBlockStoreCompliance runs the block store compliance suite
// against stores produced by f.
func TestBlockStoreCompliance(t *testing.T, f BlockStoreFactory, ff FixtureFactory) {
	t.Run("empty store", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(ctx, t.Cleanup)
		require.NoError(t, err)

		_, err = s.LastBlock(ctx)
		require.ErrorIs(t, err, dbftstore.ErrNoBlocks)

		_, err = s.LoadBlock(ctx, 5)
		require.ErrorIs(t, err, dbftstore.BlockNotFoundError{Height: 5})
	})

	t.Run("commit and load", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(ctx, t.Cleanup)
		require.NoError(t, err)

		fx := ff(4)
		chain := fx.BlockChain(ctx, 5, genesisHash, 4)

		for i, blk := range chain {
			require.NoError(t, s.CommitBlock(ctx, blk))

			last, err := s.LastBlock(ctx)
			require.NoError(t, err)
			require.Equal(t, chain[i], last)
		}

		for _, blk := range chain {
			got, err := s.LoadBlock(ctx, blk.Height())
			require.NoError(t, err)
			require.Equal(t, blk, got)
			require.Equal(t, blk.Hash(), got.Hash())
		}

		_, err = s.LoadBlock(ctx, 4)
		require.ErrorIs(t, err, dbftstore.BlockNotFoundError{Height: 4})
		_, err = s.LoadBlock(ctx, 9)
		require.ErrorIs(t, err, dbftstore.BlockNotFoundError{Height: 9})
	})

	t.Run("retried commit is accepted", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(ctx, t.Cleanup)
		require.NoError(t, err)

		chain := ff(4).BlockChain(ctx, 1, genesisHash, 2)
		require.NoError(t, s.CommitBlock(ctx, chain[0]))
		require.NoError(t, s.CommitBlock(ctx, chain[1]))
		require.NoError(t, s.CommitBlock(ctx, chain[0]))
		require.NoError(t, s.CommitBlock(ctx, chain[1]))

		last, err := s.LastBlock(ctx)
		require.NoError(t, err)
		require.Equal(t, chain[1], last)
	})

	t.Run("conflicting block rejected", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(ctx, t.Cleanup)
		require.NoError(t, err)

		fx := ff(4)
		blk := fx.FinalizedBlock(ctx, 1, 0, genesisHash, nil)
		other := fx.FinalizedBlock(ctx, 1, 1, genesisHash, nil)
		require.NotEqual(t, blk.Hash(), other.Hash())

		require.NoError(t, s.CommitBlock(ctx, blk))
		err = s.CommitBlock(ctx, other)
		require.ErrorIs(t, err, dbftstore.BlockConflictError{
			Height:    1,
			Existing:  blk.Hash(),
			Attempted: other.Hash(),
		})

		got, err := s.LoadBlock(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, blk, got)
	})

	t.Run("gaps rejected", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(ctx, t.Cleanup)
		require.NoError(t, err)

		chain := ff(4).BlockChain(ctx, 7, genesisHash, 4)
		require.NoError(t, s.CommitBlock(ctx, chain[0]))

		err = s.CommitBlock(ctx, chain[2])
		require.ErrorIs(t, err, dbftstore.NonContiguousHeightError{Last: 7, Attempted: 9})

		err = s.CommitBlock(ctx, ff(4).FinalizedBlock(ctx, 6, 0, genesisHash, nil))
		require.ErrorIs(t, err, dbftstore.NonContiguousHeightError{Last: 7, Attempted: 6})

		last, err := s.LastBlock(ctx)
		require.NoError(t, err)
		require.Equal(t, chain[0], last)
	})
}
