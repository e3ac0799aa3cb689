package dbftengine

import (
	"context"
	"math/rand/v2"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// HandleTransactions is the mempool's answer to a [RequestTransactionsAction].
//
// If the engine is still the primary at height and view
// and has not yet proposed, it builds the block header over txHashes,
// signs a PrepareRequest, delivers it locally, and broadcasts it.
// Answers for a stale height or view are ignored.
// At most the configured maximum number of transactions are proposed.
func (e *Engine) HandleTransactions(
	ctx context.Context,
	height uint64,
	view dbftconsensus.ViewNumber,
	txHashes []dbftconsensus.Hash,
) error {
	if height != e.state.Height() || view != e.state.View() {
		e.log.Debug(
			"Ignoring transactions for stale round",
			"h", height, "v", view, "cur_h", e.state.Height(), "cur_v", e.state.View(),
		)
		return nil
	}
	if !e.isPrimary() || e.pending != nil {
		return nil
	}
	if _, ok := e.state.PrepareRequest(); ok {
		return nil
	}

	txHashes = dedupHashes(txHashes)
	if len(txHashes) > e.maxTxs {
		txHashes = txHashes[:e.maxTxs]
	}

	ts := e.nowMS()
	if ts <= e.prevTimestampMS {
		ts = e.prevTimestampMS + 1
	}

	pr := dbftconsensus.PrepareRequest{
		Version:     e.version,
		PrevHash:    e.prevHash,
		TimestampMS: ts,
		Nonce:       rand.Uint64(),
		Height:      height,
		TxHashes:    txHashes,
	}
	pr.ProposalHash = pr.Header(e.vals, view).Hash()

	e.log.Info(
		"Proposing block",
		"h", height, "v", view, "hash", pr.ProposalHash, "txs", len(txHashes),
	)

	if err := e.send(ctx, pr); err != nil {
		return err
	}
	return e.advance(ctx)
}

// checkProposal rebuilds the header described by pr
// and rejects the request if it does not match the claimed proposal hash
// or does not extend the local chain.
func (e *Engine) checkProposal(pr dbftconsensus.PrepareRequest) error {
	invalid := func(reason string) error {
		return dbftconsensus.InvalidProposalError{ProposalHash: pr.ProposalHash, Reason: reason}
	}

	switch {
	case pr.Height != e.state.Height():
		return invalid("height does not match the round")
	case pr.Version != e.version:
		return invalid("unexpected block version")
	case pr.PrevHash != e.prevHash:
		return invalid("previous hash does not match the local chain")
	case pr.TimestampMS <= e.prevTimestampMS:
		return invalid("timestamp not after the previous block")
	case len(pr.TxHashes) > e.maxTxs:
		return invalid("too many transactions")
	case len(dedupHashes(pr.TxHashes)) != len(pr.TxHashes):
		return invalid("duplicate transaction")
	}

	if pr.Header(e.vals, e.state.View()).Hash() != pr.ProposalHash {
		return invalid("header hash mismatch")
	}

	return nil
}

// dedupHashes returns hs without repeated entries, preserving first occurrence order.
// The input slice is not modified.
func dedupHashes(hs []dbftconsensus.Hash) []dbftconsensus.Hash {
	if len(hs) < 2 {
		return hs
	}

	seen := make(map[dbftconsensus.Hash]struct{}, len(hs))
	out := make([]dbftconsensus.Hash, 0, len(hs))
	for _, h := range hs {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
