package dbftengine_test

import (
	"context"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"
	"github.com/r3e-network/neodbft/dbft/dbftengine"
	"github.com/stretchr/testify/require"
)

func TestEngine_timeoutChangesView(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	e := newEngine(t, fx, 0, 10)

	// Stale timeouts are ignored.
	require.NoError(t, e.HandleTimeout(ctx, 9, 0))
	require.NoError(t, e.HandleTimeout(ctx, 10, 1))
	require.Empty(t, e.TakeActions())

	require.NoError(t, e.HandleTimeout(ctx, 10, 0))
	out := broadcasts(e.TakeActions())
	require.Len(t, out, 1)
	require.Equal(t, dbftconsensus.ChangeView{
		NewView:     1,
		Reason:      dbftconsensus.ChangeViewReasonTimeout,
		TimestampMS: 1_800_000_000_000,
	}, out[0].Message)
	require.True(t, e.Status().ViewChanging)

	// A second timeout in the same view rebroadcasts the same request.
	require.NoError(t, e.HandleTimeout(ctx, 10, 0))
	require.Equal(t, out, broadcasts(e.TakeActions()))

	require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, 1, 10, 0, dbftconsensus.ChangeView{NewView: 1})))
	require.Equal(t, dbftconsensus.ViewNumber(0), e.View())

	require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, 3, 10, 0, dbftconsensus.ChangeView{NewView: 1})))
	require.Equal(t, dbftconsensus.ViewNumber(1), e.View())

	st := e.Status()
	require.Equal(t, dbftconsensus.ValidatorID(3), st.Primary)
	require.False(t, st.ViewChanging)
	require.Zero(t, st.ChangeViews)
	require.Equal(t, dbftengine.PhaseAwaitingProposal, st.Phase)

	// Validator 0 is not the new primary, so nothing is requested.
	require.Empty(t, e.TakeActions())

	// Messages for the abandoned view are now rejected.
	err := e.Deliver(ctx, fx.SignedPrepareRequest(ctx, 10, 0, genesisHash, nil))
	require.ErrorIs(t, err, dbftconsensus.InvalidViewError{Expected: 1, Received: 0})

	// The new primary's proposal is answered.
	require.NoError(t, e.Deliver(ctx, fx.SignedPrepareRequest(ctx, 10, 1, genesisHash, nil)))
	out = broadcasts(e.TakeActions())
	require.Len(t, out, 1)
	require.Equal(t, dbftconsensus.ViewNumber(1), out[0].View)
	require.Equal(t, dbftconsensus.MessageKindPrepareResponse, out[0].Kind())
}

func TestEngine_viewChangeRestartsNewPrimary(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)

	// Validator 3 becomes primary at height 10, view 1.
	e := newEngine(t, fx, 3, 10)

	require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, 0, 10, 0, dbftconsensus.ChangeView{NewView: 1})))
	require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, 1, 10, 0, dbftconsensus.ChangeView{NewView: 1})))
	require.Empty(t, e.TakeActions())

	// Joining the round with an explicit request completes the quorum.
	require.NoError(t, e.RequestChangeView(ctx, dbftconsensus.ChangeViewReasonTxNotFound))

	actions := e.TakeActions()
	require.Len(t, actions, 2)
	cv := actions[0].(dbftengine.BroadcastAction).Message.Message.(dbftconsensus.ChangeView)
	require.Equal(t, dbftconsensus.ViewNumber(1), cv.NewView)
	require.Equal(t, dbftconsensus.ChangeViewReasonTxNotFound, cv.Reason)
	require.Equal(t, dbftengine.RequestTransactionsAction{Height: 10, View: 1, MaxCount: 512}, actions[1])
}

func TestEngine_timeoutAfterCommit(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	e := newEngine(t, fx, 0, 10)

	prMsg := fx.SignedPrepareRequest(ctx, 10, 0, genesisHash, nil)
	h := prMsg.Message.(dbftconsensus.PrepareRequest).ProposalHash
	require.NoError(t, e.Deliver(ctx, prMsg))
	require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, 1, 10, 0, dbftconsensus.PrepareResponse{ProposalHash: h})))

	out := broadcasts(e.TakeActions())
	require.Len(t, out, 2)
	commit := out[1]
	require.Equal(t, dbftconsensus.MessageKindCommit, commit.Kind())

	// Once committed, the validator never votes to change view.
	require.NoError(t, e.HandleTimeout(ctx, 10, 0))
	require.Equal(t, []dbftconsensus.SignedMessage{commit}, broadcasts(e.TakeActions()))

	require.NoError(t, e.RequestChangeView(ctx, dbftconsensus.ChangeViewReasonTxInvalid))
	require.Empty(t, e.TakeActions())
	require.False(t, e.Status().ViewChanging)
}

func TestEngine_RequestChangeView_invalidReason(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	e := newEngine(t, fx, 0, 10)

	require.Error(t, e.RequestChangeView(ctx, dbftconsensus.ChangeViewReason(42)))
	require.Empty(t, e.TakeActions())
}

func TestEngine_joinsExistingChangeViewTarget(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(7)
	e := newEngine(t, fx, 0, 10)

	// Another validator already asked for view 3.
	require.NoError(t, e.Deliver(ctx, fx.Sign(ctx, 4, 10, 0, dbftconsensus.ChangeView{NewView: 3})))

	require.NoError(t, e.HandleTimeout(ctx, 10, 0))
	out := broadcasts(e.TakeActions())
	require.Len(t, out, 1)
	require.Equal(t, dbftconsensus.ViewNumber(3), out[0].Message.(dbftconsensus.ChangeView).NewView)
}
