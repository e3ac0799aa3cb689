package dbftstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// BlockStore stores finalized blocks.
type BlockStore interface {
	// CommitBlock durably stores blk.
	//
	// The first block may be at any height.
	// Every later block must be at the height after the last stored block;
	// otherwise a [NonContiguousHeightError] is returned.
	// Committing a block identical to the one already stored at its height
	// succeeds without effect, so a commit may be safely retried.
	// A different block at an occupied height yields [BlockConflictError].
	CommitBlock(ctx context.Context, blk dbftconsensus.Block) error

	// LoadBlock returns the block at the given height,
	// or a [BlockNotFoundError].
	LoadBlock(ctx context.Context, height uint64) (dbftconsensus.Block, error)

	// LastBlock returns the highest stored block,
	// or [ErrNoBlocks] if the store is empty.
	LastBlock(ctx context.Context) (dbftconsensus.Block, error)
}

// ErrNoBlocks is returned from [BlockStore.LastBlock] on an empty store.
var ErrNoBlocks = errors.New("no blocks stored")

// BlockNotFoundError is returned from [BlockStore.LoadBlock]
// when no block exists at the requested height.
type BlockNotFoundError struct {
	Height uint64
}

func (e BlockNotFoundError) Error() string {
	return fmt.Sprintf("no block at height %d", e.Height)
}

// NonContiguousHeightError is returned from [BlockStore.CommitBlock]
// when the block would leave a gap after the last stored height.
type NonContiguousHeightError struct {
	Last, Attempted uint64
}

func (e NonContiguousHeightError) Error() string {
	return fmt.Sprintf(
		"cannot commit block at height %d: last committed height is %d",
		e.Attempted, e.Last,
	)
}

// BlockConflictError is returned from [BlockStore.CommitBlock]
// when a different block is already stored at the same height.
type BlockConflictError struct {
	Height uint64

	Existing, Attempted dbftconsensus.Hash
}

func (e BlockConflictError) Error() string {
	return fmt.Sprintf(
		"conflicting block at height %d: have %s, attempted %s",
		e.Height, e.Existing, e.Attempted,
	)
}
