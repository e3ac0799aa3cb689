package dbftengine_test

import (
	"context"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"
	"github.com/r3e-network/neodbft/dbft/dbftengine"
	"github.com/stretchr/testify/require"
)

func TestEngine_SnapshotRestore(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	e := newEngine(t, fx, 0, 10)

	prMsg := fx.SignedPrepareRequest(ctx, 10, 0, genesisHash, nil)
	h := prMsg.Message.(dbftconsensus.PrepareRequest).ProposalHash
	require.NoError(t, e.Deliver(ctx, prMsg))
	require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, 3, 10, 0, dbftconsensus.ChangeView{NewView: 1})))
	_ = e.TakeActions()

	before := e.Status()
	snap := e.Snapshot()

	// A fresh engine for the same validator, as after a restart.
	restarted := newEngine(t, fx, 0, 10)
	require.NoError(t, restarted.Restore(ctx, snap))
	require.Equal(t, before, restarted.Status())
	require.Equal(t, snap, restarted.Snapshot())

	// The restored response is not sent again.
	require.Empty(t, restarted.TakeActions())

	// Progress continues from the restored state.
	require.NoError(t, restarted.Deliver(ctx, fx.Sign(ctx, 1, 10, 0, dbftconsensus.PrepareResponse{ProposalHash: h})))
	out := broadcasts(restarted.TakeActions())
	require.Len(t, out, 1)
	require.Equal(t, dbftconsensus.Commit{ProposalHash: h}, out[0].Message)
}

func TestEngine_Restore_rejects(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	e := newEngine(t, fx, 0, 10)
	require.NoError(t, e.Deliver(ctx, fx.SignedPrepareRequest(ctx, 10, 0, genesisHash, nil)))

	t.Run("other height", func(t *testing.T) {
		other := newEngine(t, fx, 0, 11)
		err := other.Restore(ctx, e.Snapshot())
		require.ErrorAs(t, err, new(dbftconsensus.InvalidHeightError))
	})

	t.Run("garbage", func(t *testing.T) {
		other := newEngine(t, fx, 0, 10)
		require.Error(t, other.Restore(ctx, []byte{1, 2, 3}))
		require.Equal(t, dbftengine.PhaseAwaitingProposal, other.Status().Phase)
	})
}

func TestEngine_Recover(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)

	// The helper moved to view 1 and received the new proposal.
	helper := newEngine(t, fx, 0, 10)
	for _, id := range []dbftconsensus.ValidatorID{1, 2, 3} {
		require.NoError(t, helper.Deliver(ctx, fx.Sign(ctx, id, 10, 0, dbftconsensus.ChangeView{NewView: 1})))
	}
	require.Equal(t, dbftconsensus.ViewNumber(1), helper.View())
	prMsg := fx.SignedPrepareRequest(ctx, 10, 1, genesisHash, nil)
	require.NoError(t, helper.Deliver(ctx, prMsg))
	_ = helper.TakeActions()

	rec := helper.RecoveryData()
	require.Len(t, rec.ViewChanges, 3)

	// The lagging node missed every ChangeView and is still in view 0.
	lagging := newEngine(t, fx, 2, 10)
	n, err := lagging.Recover(ctx, rec)
	require.NoError(t, err)

	// Three ChangeViews, one of them its own lost vote,
	// then the proposal and the helper's response.
	require.Equal(t, dbftconsensus.ViewNumber(1), lagging.View())
	require.Equal(t, 5, n)

	st := lagging.Status()
	require.True(t, st.HasProposal)
	require.Equal(t, 3, st.Prepared)

	// Having caught up, the lagging node responds and commits.
	out := broadcasts(lagging.TakeActions())
	require.Len(t, out, 2)
	require.Equal(t, dbftconsensus.MessageKindPrepareResponse, out[0].Kind())
	require.Equal(t, dbftconsensus.MessageKindCommit, out[1].Kind())

	// Recovering from another height fails.
	other := newEngine(t, fx, 2, 11)
	_, err = other.Recover(ctx, rec)
	require.ErrorAs(t, err, new(dbftconsensus.InvalidHeightError))
}
