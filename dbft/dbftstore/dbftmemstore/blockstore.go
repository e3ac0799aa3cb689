// Package dbftmemstore contains in-memory implementations
// of the [dbftstore] interfaces, for tests and simulations.
package dbftmemstore

import (
	"context"
	"slices"
	"sync"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftstore"
)

// BlockStore is an in-memory [dbftstore.BlockStore].
type BlockStore struct {
	mu sync.RWMutex

	first  uint64
	blocks []dbftconsensus.Block
}

func NewBlockStore() *BlockStore {
	return new(BlockStore)
}

func (s *BlockStore) CommitBlock(_ context.Context, blk dbftconsensus.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := blk.Height()
	if len(s.blocks) == 0 {
		s.first = h
		s.blocks = append(s.blocks, cloneBlock(blk))
		return nil
	}

	last := s.first + uint64(len(s.blocks)) - 1
	if h >= s.first && h <= last {
		have := s.blocks[h-s.first].Hash()
		if have != blk.Hash() {
			return dbftstore.BlockConflictError{Height: h, Existing: have, Attempted: blk.Hash()}
		}
		return nil
	}
	if h != last+1 {
		return dbftstore.NonContiguousHeightError{Last: last, Attempted: h}
	}

	s.blocks = append(s.blocks, cloneBlock(blk))
	return nil
}

func (s *BlockStore) LoadBlock(_ context.Context, height uint64) (dbftconsensus.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.blocks) == 0 || height < s.first || height-s.first >= uint64(len(s.blocks)) {
		return dbftconsensus.Block{}, dbftstore.BlockNotFoundError{Height: height}
	}
	return cloneBlock(s.blocks[height-s.first]), nil
}

func (s *BlockStore) LastBlock(_ context.Context) (dbftconsensus.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.blocks) == 0 {
		return dbftconsensus.Block{}, dbftstore.ErrNoBlocks
	}
	return cloneBlock(s.blocks[len(s.blocks)-1]), nil
}

func cloneBlock(b dbftconsensus.Block) dbftconsensus.Block {
	b.TxHashes = slices.Clone(b.TxHashes)
	if b.Witnesses != nil {
		ws := make([]dbftconsensus.Witness, len(b.Witnesses))
		for i, w := range b.Witnesses {
			ws[i] = dbftconsensus.Witness{
				Validator: w.Validator,
				Signature: slices.Clone(w.Signature),
			}
		}
		b.Witnesses = ws
	}
	return b
}
