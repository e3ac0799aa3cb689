package dbftp2ptest

import (
	"context"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"
	"github.com/r3e-network/neodbft/dbft/dbftp2p"
	"github.com/r3e-network/neodbft/internal/dtest"
	"github.com/stretchr/testify/require"
)

// NetworkConstructor returns a new, empty network
// whose background work stops when ctx is canceled.
type NetworkConstructor func(t *testing.T, ctx context.Context) (Network, error)

// TestNetworkCompliance runs the transport compliance suite
// against networks returned by newNet.
func TestNetworkCompliance(t *testing.T, newNet NetworkConstructor) {
	t.Run("broadcast reaches peers but not sender", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		net, err := newNet(t, ctx)
		require.NoError(t, err)
		defer net.Wait()
		defer cancel()

		conn1, err := net.Connect(ctx)
		require.NoError(t, err)
		defer conn1.Disconnect()

		conn2, err := net.Connect(ctx)
		require.NoError(t, err)
		defer conn2.Disconnect()

		require.NoError(t, net.Stabilize(ctx))

		fx := dbftconsensustest.NewEd25519Fixture(4)
		env := dbftp2p.ConsensusEnvelope(fx.SignedPrepareRequest(ctx, 3, 0, dbftconsensus.Hash{3}, nil))

		require.NoError(t, conn1.Broadcast(ctx, env))
		got := dtest.ReceiveOrTimeout(t, conn2.Incoming(), dtest.ScaleMs(2000))
		require.Equal(t, env, got)

		// Reply the other way to be sure the sender's channel stayed quiet.
		reply := dbftp2p.ConsensusEnvelope(fx.Sign(ctx, 0, 3, 0, dbftconsensus.PrepareResponse{
			ProposalHash: env.Message.Message.(dbftconsensus.PrepareRequest).ProposalHash,
		}))
		require.NoError(t, conn2.Broadcast(ctx, reply))
		got = dtest.ReceiveOrTimeout(t, conn1.Incoming(), dtest.ScaleMs(2000))
		require.Equal(t, reply, got)

		dtest.NotSending(t, conn1.Incoming())
		dtest.NotSending(t, conn2.Incoming())
	})

	t.Run("every envelope type reaches every peer", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		net, err := newNet(t, ctx)
		require.NoError(t, err)
		defer net.Wait()
		defer cancel()

		conns := make([]dbftp2p.Connection, 3)
		for i := range conns {
			conns[i], err = net.Connect(ctx)
			require.NoError(t, err)
			defer conns[i].Disconnect()
		}

		require.NoError(t, net.Stabilize(ctx))

		fx := dbftconsensustest.NewEd25519Fixture(4)
		envs := []dbftp2p.Envelope{
			dbftp2p.ConsensusEnvelope(fx.Sign(ctx, 1, 5, 0, dbftconsensus.ChangeView{NewView: 1})),
			dbftp2p.RecoveryRequestEnvelope(dbftp2p.RecoveryRequest{Height: 5, View: 1, Validator: 2}),
			dbftp2p.RecoveryResponseEnvelope(dbftp2p.RecoveryResponse{
				Height:   5,
				From:     1,
				Snapshot: []byte{5, 0, 0, 0, 0, 0, 0, 0, 1, 0},
			}),
		}

		for i, env := range envs {
			require.NoError(t, conns[i].Broadcast(ctx, env))

			for j, c := range conns {
				if i == j {
					continue
				}
				got := dtest.ReceiveOrTimeout(t, c.Incoming(), dtest.ScaleMs(2000))
				require.Equalf(t, env, got, "envelope %d at connection %d", i, j)
			}
		}
	})

	t.Run("disconnect", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		net, err := newNet(t, ctx)
		require.NoError(t, err)
		defer net.Wait()
		defer cancel()

		conn, err := net.Connect(ctx)
		require.NoError(t, err)

		conn.Disconnect()
		_ = dtest.ReceiveSoon(t, conn.Disconnected())

		// Safe to call again.
		conn.Disconnect()

		err = conn.Broadcast(ctx, dbftp2p.RecoveryRequestEnvelope(dbftp2p.RecoveryRequest{Height: 1}))
		require.Error(t, err)
	})
}
