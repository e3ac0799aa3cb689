package dbftengine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"
	"github.com/r3e-network/neodbft/dbft/dbftengine"
	"github.com/r3e-network/neodbft/internal/dtest"
	"github.com/stretchr/testify/require"
)

const observer = -1

var genesisHash = dbftconsensus.Hash{0x9e, 0x0e}

func fixedClock() time.Time {
	return time.UnixMilli(1_800_000_000_000)
}

// newEngine returns an engine at the given height and view 0,
// signing as the validator at index val, or as an observer.
func newEngine(t *testing.T, fx *dbftconsensustest.Fixture, val int, height uint64) *dbftengine.Engine {
	t.Helper()

	cfg := dbftengine.Config{
		Validators: fx.Vals,
		Height:     height,
		PrevHash:   genesisHash,
		Clock:      fixedClock,
	}
	if val != observer {
		cfg.Signer = fx.PrivVals[val].Signer
	}

	e, err := dbftengine.New(dtest.NewLogger(t), cfg)
	require.NoError(t, err)
	return e
}

func broadcasts(actions []dbftengine.Action) []dbftconsensus.SignedMessage {
	var out []dbftconsensus.SignedMessage
	for _, a := range actions {
		if b, ok := a.(dbftengine.BroadcastAction); ok {
			out = append(out, b.Message)
		}
	}
	return out
}

func commitBlocks(actions []dbftengine.Action) []dbftconsensus.Block {
	var out []dbftconsensus.Block
	for _, a := range actions {
		if c, ok := a.(dbftengine.CommitBlockAction); ok {
			out = append(out, c.Block)
		}
	}
	return out
}

func TestEngine_endToEnd(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	const height = 10

	// Validator 3 is a backup; height 10 on 4 validators has primary 2.
	e := newEngine(t, fx, 3, height)
	e.Start()
	require.Empty(t, e.TakeActions())

	txs := dbftconsensustest.TxHashes(height, 5)
	prMsg := fx.SignedPrepareRequest(ctx, height, 0, genesisHash, txs)
	h := prMsg.Message.(dbftconsensus.PrepareRequest).ProposalHash

	require.NoError(t, e.Deliver(ctx, prMsg))

	// The backup responds to the proposal.
	out := broadcasts(e.TakeActions())
	require.Len(t, out, 1)
	require.Equal(t, dbftconsensus.ValidatorID(3), out[0].Validator)
	require.Equal(t, dbftconsensus.PrepareResponse{ProposalHash: h}, out[0].Message)
	require.NoError(t, dbftconsensus.VerifySignature(fx.Vals, fx.SignatureScheme, out[0]))
	require.Equal(t, dbftengine.PhasePrepared, e.Status().Phase)
	require.Equal(t, 2, e.Status().Prepared)

	// Second response: two responses plus the implicit primary prepare reach quorum.
	require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, 0, height, 0, dbftconsensus.PrepareResponse{ProposalHash: h})))
	out = broadcasts(e.TakeActions())
	require.Len(t, out, 1)
	require.Equal(t, dbftconsensus.Commit{ProposalHash: h}, out[0].Message)
	require.Equal(t, dbftengine.PhaseCommitted, e.Status().Phase)

	// A late third response changes nothing.
	require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, 1, height, 0, dbftconsensus.PrepareResponse{ProposalHash: h})))
	require.Empty(t, e.TakeActions())

	require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, 0, height, 0, dbftconsensus.Commit{ProposalHash: h})))
	require.Empty(t, e.TakeActions())

	// Third commit, counting our own, finalizes.
	require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, 1, height, 0, dbftconsensus.Commit{ProposalHash: h})))
	actions := e.TakeActions()
	blocks := commitBlocks(actions)
	require.Len(t, blocks, 1)
	require.Empty(t, broadcasts(actions))
	require.Equal(t, dbftengine.PhaseFinalized, e.Status().Phase)

	blk := blocks[0]
	require.Equal(t, h, blk.Hash())
	require.Equal(t, txs, blk.TxHashes)
	require.Equal(t, genesisHash, blk.Header.PrevHash)
	require.Len(t, blk.Witnesses, 3)
	signBytes := fx.SignatureScheme.SignBytes(height, 0, dbftconsensus.Commit{ProposalHash: h})
	for i, w := range blk.Witnesses {
		require.Equal(t, []dbftconsensus.ValidatorID{0, 1, 3}[i], w.Validator)
		require.True(t, fx.PrivVals[w.Validator].Val.PubKey.Verify(signBytes, w.Signature))
	}

	// The fourth commit is recorded, but the block is emitted only once.
	require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, 2, height, 0, dbftconsensus.Commit{ProposalHash: h})))
	require.Empty(t, e.TakeActions())

	// Ledger acknowledgement moves to the next height, where validator 3 is primary.
	require.NoError(t, e.HandleBlockCommitted(ctx, height, nil))
	require.Equal(t, uint64(height+1), e.Height())
	require.Equal(t, dbftconsensus.ViewNumber(0), e.View())
	require.Equal(t, []dbftengine.Action{
		dbftengine.RequestTransactionsAction{Height: height + 1, View: 0, MaxCount: 512},
	}, e.TakeActions())

	require.NoError(t, e.HandleTransactions(ctx, height+1, 0, nil))
	out = broadcasts(e.TakeActions())
	require.Len(t, out, 1)
	pr := out[0].Message.(dbftconsensus.PrepareRequest)
	require.Equal(t, blk.Hash(), pr.PrevHash)
	require.Equal(t, uint64(height+1), pr.Height)
	require.Equal(t, pr.ProposalHash, pr.Header(fx.Vals, 0).Hash())
}

func TestEngine_primaryProposes(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	e := newEngine(t, fx, 2, 10)

	e.Start()
	require.Equal(t, []dbftengine.Action{
		dbftengine.RequestTransactionsAction{Height: 10, View: 0, MaxCount: 512},
	}, e.TakeActions())

	// Start is idempotent within a view.
	e.Start()
	require.Empty(t, e.TakeActions())

	// A stale answer is ignored.
	require.NoError(t, e.HandleTransactions(ctx, 9, 0, nil))
	require.Empty(t, e.TakeActions())

	txs := dbftconsensustest.TxHashes(1, 2)
	require.NoError(t, e.HandleTransactions(ctx, 10, 0, append(txs, txs[0])))

	out := broadcasts(e.TakeActions())
	require.Len(t, out, 1)
	pr := out[0].Message.(dbftconsensus.PrepareRequest)
	require.Equal(t, txs, pr.TxHashes, "duplicates removed")
	require.Equal(t, uint64(1_800_000_000_000), pr.TimestampMS)
	require.Equal(t, pr.ProposalHash, pr.Header(fx.Vals, 0).Hash())

	// A second answer does not produce a second proposal.
	require.NoError(t, e.HandleTransactions(ctx, 10, 0, txs))
	require.Empty(t, e.TakeActions())

	// The primary does not respond to its own proposal,
	// but commits once two backups respond.
	require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, 0, 10, 0, dbftconsensus.PrepareResponse{ProposalHash: pr.ProposalHash})))
	require.Empty(t, e.TakeActions())
	require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, 1, 10, 0, dbftconsensus.PrepareResponse{ProposalHash: pr.ProposalHash})))

	out = broadcasts(e.TakeActions())
	require.Len(t, out, 1)
	require.Equal(t, dbftconsensus.Commit{ProposalHash: pr.ProposalHash}, out[0].Message)
}

func TestEngine_singleValidator(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(1)
	e := newEngine(t, fx, 0, 1)

	e.Start()
	require.Len(t, e.TakeActions(), 1)

	require.NoError(t, e.HandleTransactions(ctx, 1, 0, dbftconsensustest.TxHashes(1, 1)))
	actions := e.TakeActions()

	out := broadcasts(actions)
	require.Len(t, out, 2)
	require.Equal(t, dbftconsensus.MessageKindPrepareRequest, out[0].Kind())
	require.Equal(t, dbftconsensus.MessageKindCommit, out[1].Kind())

	blocks := commitBlocks(actions)
	require.Len(t, blocks, 1)
	require.Equal(t, uint32(1), blocks[0].Header.Index)
	require.Len(t, blocks[0].Witnesses, 1)
}

func TestEngine_rejectsInvalidSignature(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	e := newEngine(t, fx, 0, 10)

	sm := fx.SignedPrepareRequest(ctx, 10, 0, genesisHash, nil)
	sm.Signature = append([]byte(nil), sm.Signature...)
	sm.Signature[0] ^= 0xff

	err := e.Deliver(ctx, sm)
	require.ErrorIs(t, err, dbftconsensus.InvalidSignatureError{Validator: 2})
	require.Empty(t, e.TakeActions())
	require.Equal(t, dbftengine.PhaseAwaitingProposal, e.Status().Phase)

	// Unknown validators are reported before any signature check.
	sm.Validator = 7
	require.ErrorIs(t, e.Deliver(ctx, sm), dbftconsensus.UnknownValidatorError{Validator: 7})
}

func TestEngine_rejectsInvalidProposal(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	e := newEngine(t, fx, 0, 10)

	t.Run("wrong previous hash", func(t *testing.T) {
		sm := fx.SignedPrepareRequest(ctx, 10, 0, dbftconsensus.Hash{1}, nil)
		err := e.Deliver(ctx, sm)
		require.ErrorAs(t, err, new(dbftconsensus.InvalidProposalError))
	})

	t.Run("hash does not match header", func(t *testing.T) {
		pr := fx.PrepareRequest(10, 0, genesisHash, nil)
		pr.ProposalHash[0] ^= 1
		err := e.Deliver(ctx, fx.Sign(ctx, 2, 10, 0, pr))
		require.ErrorAs(t, err, new(dbftconsensus.InvalidProposalError))
	})

	t.Run("duplicate transactions", func(t *testing.T) {
		txs := dbftconsensustest.TxHashes(3, 1)
		sm := fx.SignedPrepareRequest(ctx, 10, 0, genesisHash, append(txs, txs[0]))
		err := e.Deliver(ctx, sm)
		require.ErrorAs(t, err, new(dbftconsensus.InvalidProposalError))
	})

	require.Empty(t, e.TakeActions())
	require.Equal(t, dbftengine.PhaseAwaitingProposal, e.Status().Phase)

	// The valid proposal is still accepted afterwards.
	require.NoError(t, e.Deliver(ctx, fx.SignedPrepareRequest(ctx, 10, 0, genesisHash, nil)))
	require.Len(t, broadcasts(e.TakeActions()), 1)
}

func TestEngine_observer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	e := newEngine(t, fx, observer, 10)
	require.False(t, e.IsValidator())

	e.Start()
	require.NoError(t, e.HandleTimeout(ctx, 10, 0))
	require.Empty(t, e.TakeActions())

	prMsg := fx.SignedPrepareRequest(ctx, 10, 0, genesisHash, nil)
	h := prMsg.Message.(dbftconsensus.PrepareRequest).ProposalHash
	require.NoError(t, e.Deliver(ctx, prMsg))

	for _, id := range []dbftconsensus.ValidatorID{0, 1, 3} {
		require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, id, 10, 0, dbftconsensus.PrepareResponse{ProposalHash: h})))
	}
	require.Equal(t, dbftengine.PhaseCommitted, e.Status().Phase)

	for _, id := range []dbftconsensus.ValidatorID{0, 1, 3} {
		require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, id, 10, 0, dbftconsensus.Commit{ProposalHash: h})))
	}

	actions := e.TakeActions()
	require.Empty(t, broadcasts(actions))
	require.Len(t, commitBlocks(actions), 1)
}

func TestEngine_ledgerFailureRetries(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(1)
	e := newEngine(t, fx, 0, 1)
	e.Start()
	require.NoError(t, e.HandleTransactions(ctx, 1, 0, nil))

	blocks := commitBlocks(e.TakeActions())
	require.Len(t, blocks, 1)

	require.Error(t, e.HandleBlockCommitted(ctx, 2, nil), "no block pending at height 2")

	require.NoError(t, e.HandleBlockCommitted(ctx, 1, errors.New("disk full")))
	require.Equal(t, []dbftengine.Action{dbftengine.CommitBlockAction{Block: blocks[0]}}, e.TakeActions())
	require.Equal(t, uint64(1), e.Height())

	require.NoError(t, e.HandleBlockCommitted(ctx, 1, nil))
	require.Equal(t, uint64(2), e.Height())
}

func TestNew_invalidConfig(t *testing.T) {
	t.Parallel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	other := dbftconsensustest.NewEd25519Fixture(5)

	_, err := dbftengine.New(dtest.NewLogger(t), dbftengine.Config{})
	require.Error(t, err)

	_, err = dbftengine.New(dtest.NewLogger(t), dbftengine.Config{
		Validators: fx.Vals,
		Signer:     other.PrivVals[4].Signer,
	})
	require.Error(t, err)

	_, err = dbftengine.New(dtest.NewLogger(t), dbftengine.Config{
		Validators: fx.Vals,
		Height:     1 << 32,
	})
	require.Error(t, err)

	_, err = dbftengine.New(dtest.NewLogger(t), dbftengine.Config{
		Validators:      fx.Vals,
		MaxTransactions: 513,
	})
	require.Error(t, err)
}
