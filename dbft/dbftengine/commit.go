package dbftengine

import (
	"context"
	"fmt"
	"math"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftstate"
	"github.com/r3e-network/neodbft/dcrypto"
)

// finalizedBlock assembles the block for the bound proposal
// once a quorum has committed to it.
//
// The witnesses are the quorum commit signatures
// from the lowest validator positions.
func (e *Engine) finalizedBlock() (dbftconsensus.Block, bool) {
	pr, ok := e.state.PrepareRequest()
	if !ok {
		return dbftconsensus.Block{}, false
	}

	commits := e.state.Commits(pr.ProposalHash)
	quorum := e.vals.Quorum()
	if len(commits) < quorum {
		return dbftconsensus.Block{}, false
	}

	// Every Commit for the proposal signs the same bytes,
	// so they collect into a single witness proof.
	proof := dcrypto.NewWitnessProof(
		e.scheme.SignBytes(e.state.Height(), e.state.View(), dbftconsensus.Commit{ProposalHash: pr.ProposalHash}),
		e.vals.PubKeys(),
	)
	for _, sm := range commits {
		idx, _ := e.vals.IndexOf(sm.Validator)
		if err := proof.AddSignature(idx, sm.Signature); err != nil {
			// Signatures were verified on delivery.
			panic(fmt.Errorf("BUG: recorded commit from %d failed verification: %w", sm.Validator, err))
		}
	}

	sigs := proof.Signatures(quorum)
	witnesses := make([]dbftconsensus.Witness, len(sigs))
	for i, s := range sigs {
		witnesses[i] = dbftconsensus.Witness{
			Validator: e.vals.At(int(s.Index)).ID,
			Signature: s.Sig,
		}
	}

	return dbftconsensus.Block{
		Header:    pr.Header(e.vals, e.state.View()),
		TxHashes:  pr.TxHashes,
		Witnesses: witnesses,
	}, true
}

// HandleBlockCommitted is the ledger's acknowledgement of a [CommitBlockAction].
//
// On success the engine moves to the next height at view zero,
// building on the committed block, and starts the new round.
// On failure the block remains pending and the CommitBlockAction is emitted again.
func (e *Engine) HandleBlockCommitted(ctx context.Context, height uint64, commitErr error) error {
	if e.pending == nil || e.pending.Height() != height {
		return fmt.Errorf("no pending block at height %d", height)
	}

	if commitErr != nil {
		e.log.Warn("Ledger failed to commit block; retrying", "h", height, "err", commitErr)
		e.emit(CommitBlockAction{Block: *e.pending})
		return nil
	}

	next := height + 1
	if next > math.MaxUint32 {
		return fmt.Errorf("height %d exceeds the maximum block index", next)
	}

	e.prevHash = e.pending.Hash()
	e.prevTimestampMS = e.pending.Header.TimestampMS
	e.pending = nil
	e.requestedTxs = false
	e.viewChangeProofs = nil
	e.state = dbftstate.New(next, 0, e.vals)

	e.log.Debug("Advanced height", "h", next)

	e.Start()
	return e.advance(ctx)
}
