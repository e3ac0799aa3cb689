package dbftdriver

import (
	"context"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"
	"github.com/stretchr/testify/require"
)

func TestBacklog_Ready(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	b := newBacklog(8)

	prev := dbftconsensus.Hash{1}
	h := dbftconsensus.Hash{2}
	stale := fx.Sign(ctx, 1, 9, 3, dbftconsensus.PrepareResponse{ProposalHash: h})
	cv := fx.Sign(ctx, 1, 10, 1, dbftconsensus.ChangeView{NewView: 2})
	resp := fx.Sign(ctx, 0, 10, 1, dbftconsensus.PrepareResponse{ProposalHash: h})
	pr := fx.SignedPrepareRequest(ctx, 10, 1, prev, nil)
	later := fx.Sign(ctx, 1, 11, 0, dbftconsensus.Commit{ProposalHash: h})

	for _, sm := range []dbftconsensus.SignedMessage{later, resp, stale, cv, pr} {
		require.True(t, b.Add(sm))
	}
	require.Equal(t, 5, b.Len())

	require.Empty(t, b.Ready(10, 0))
	require.Equal(t, 4, b.Len(), "stale message not discarded")

	got := b.Ready(10, 1)
	require.Equal(t, []dbftconsensus.SignedMessage{cv, pr, resp}, got)
	require.Equal(t, 1, b.Len())

	require.Equal(t, []dbftconsensus.SignedMessage{later}, b.Ready(11, 0))
	require.Zero(t, b.Len())
}

func TestBacklog_limit(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	b := newBacklog(2)

	h := dbftconsensus.Hash{3}
	at := func(height uint64) dbftconsensus.SignedMessage {
		return fx.Sign(ctx, 1, height, 0, dbftconsensus.Commit{ProposalHash: h})
	}

	require.True(t, b.Add(at(20)))
	require.True(t, b.Add(at(22)))

	// Full: a message further out is refused,
	// a nearer one displaces the furthest.
	require.False(t, b.Add(at(23)))
	require.True(t, b.Add(at(21)))
	require.False(t, b.Add(at(21)), "duplicate accepted")

	// Other validators have their own queues.
	require.True(t, b.Add(fx.Sign(ctx, 2, 30, 0, dbftconsensus.Commit{ProposalHash: h})))

	require.Equal(t, 3, b.Len())
	require.Equal(t, []dbftconsensus.SignedMessage{at(20)}, b.Ready(20, 0))
	require.Equal(t, []dbftconsensus.SignedMessage{at(21)}, b.Ready(21, 0))
	require.Empty(t, b.Ready(22, 0))
}
