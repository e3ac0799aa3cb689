package dbftp2ptest_test

import (
	"context"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftp2p"
	"github.com/r3e-network/neodbft/dbft/dbftp2p/dbftp2ptest"
	"github.com/r3e-network/neodbft/internal/dtest"
	"github.com/stretchr/testify/require"
)

func TestLoopbackNetwork_Compliance(t *testing.T) {
	t.Parallel()

	dbftp2ptest.TestNetworkCompliance(
		t,
		func(t *testing.T, ctx context.Context) (dbftp2ptest.Network, error) {
			n := dbftp2ptest.NewLoopbackNetwork(ctx, dtest.NewLogger(t))
			return &dbftp2ptest.GenericNetwork[*dbftp2ptest.LoopbackConnection]{
				Network: n,
			}, nil
		},
	)
}

func TestLoopbackNetwork_filter(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := dbftp2ptest.NewLoopbackNetwork(ctx, dtest.NewLogger(t))
	defer n.Wait()
	defer cancel()

	conns := make([]*dbftp2ptest.LoopbackConnection, 3)
	for i := range conns {
		c, err := n.Connect(ctx)
		require.NoError(t, err)
		require.Equal(t, i, c.Index())
		conns[i] = c
	}

	// Isolate connection 2.
	n.SetFilter(func(from, to int, _ dbftp2p.Envelope) bool {
		return from != 2 && to != 2
	})

	env := dbftp2p.RecoveryRequestEnvelope(dbftp2p.RecoveryRequest{Height: 9})
	require.NoError(t, conns[0].Broadcast(ctx, env))
	require.Equal(t, env, dtest.ReceiveSoon(t, conns[1].Incoming()))
	require.NoError(t, conns[2].Broadcast(ctx, env))

	n.SetFilter(nil)
	env2 := dbftp2p.RecoveryRequestEnvelope(dbftp2p.RecoveryRequest{Height: 10})
	require.NoError(t, conns[1].Broadcast(ctx, env2))

	// Connection 2 never saw the first envelope.
	require.Equal(t, env2, dtest.ReceiveSoon(t, conns[2].Incoming()))
	require.Equal(t, env2, dtest.ReceiveSoon(t, conns[0].Incoming()))
	dtest.NotSending(t, conns[1].Incoming())
}

func TestLoopbackNetwork_slowReceiverDoesNotBlock(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := dbftp2ptest.NewLoopbackNetwork(ctx, dtest.NewLogger(t))
	defer n.Wait()
	defer cancel()

	sender, err := n.Connect(ctx)
	require.NoError(t, err)
	receiver, err := n.Connect(ctx)
	require.NoError(t, err)

	const count = 200
	for i := range count {
		env := dbftp2p.RecoveryRequestEnvelope(dbftp2p.RecoveryRequest{Height: uint64(i)})
		require.NoError(t, sender.Broadcast(ctx, env))
	}

	for i := range count {
		got := dtest.ReceiveSoon(t, receiver.Incoming())
		require.Equal(t, uint64(i), got.Request.Height)
	}
}
