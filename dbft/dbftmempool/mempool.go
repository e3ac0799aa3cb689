// Package dbftmempool contains the [Mempool] collaborator interface
// through which the primary obtains transactions for a proposal,
// and [Pool], an in-memory implementation ordered by priority.
package dbftmempool

import (
	"context"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// Mempool supplies transaction hashes to a primary building a proposal.
type Mempool interface {
	// RequestTransactions returns at most max transaction hashes
	// to include in the block at the given height.
	// An empty result is valid and produces an empty block.
	RequestTransactions(ctx context.Context, height uint64, max int) ([]dbftconsensus.Hash, error)
}

// Committer is implemented by mempools that drop transactions
// once they have been included in a committed block.
type Committer interface {
	MarkCommitted(ctx context.Context, blk dbftconsensus.Block)
}
