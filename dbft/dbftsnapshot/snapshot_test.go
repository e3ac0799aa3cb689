package dbftsnapshot_test

import (
	"context"
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftcodec"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"
	"github.com/r3e-network/neodbft/dbft/dbftsnapshot"
	"github.com/r3e-network/neodbft/dbft/dbftstate"
	"github.com/stretchr/testify/require"
)

// fullState returns a state holding at least one record of every kind.
func fullState(t *testing.T) (*dbftstate.ConsensusState, *dbftconsensustest.Fixture) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	s := dbftstate.New(10, 0, fx.Vals)

	pr := fx.SignedPrepareRequest(ctx, 10, 0, dbftconsensus.Hash{0x01}, dbftconsensustest.TxHashes(10, 2))
	h := pr.Message.(dbftconsensus.PrepareRequest).ProposalHash

	require.NoError(t, s.Add(pr))
	require.NoError(t, s.Add(fx.Sign(ctx, 0, 10, 0, dbftconsensus.PrepareResponse{ProposalHash: h})))
	require.NoError(t, s.Add(fx.Sign(ctx, 1, 10, 0, dbftconsensus.PrepareResponse{ProposalHash: h})))
	require.NoError(t, s.Add(fx.Sign(ctx, 0, 10, 0, dbftconsensus.Commit{ProposalHash: h})))
	require.NoError(t, s.Add(fx.Sign(ctx, 3, 10, 0, dbftconsensus.ChangeView{
		NewView:     1,
		Reason:      dbftconsensus.ChangeViewReasonTxRejectedByPolicy,
		TimestampMS: 1234,
	})))

	return s, fx
}

func TestSnapshot_RoundTrip(t *testing.T) {
	t.Parallel()

	s, fx := fullState(t)
	snap := s.Snapshot()

	got, err := dbftsnapshot.Decode(dbftsnapshot.Encode(snap))
	require.NoError(t, err)
	require.Equal(t, snap, got)

	restored, err := dbftstate.FromSnapshot(fx.Vals, got)
	require.NoError(t, err)

	for _, k := range dbftconsensus.MessageKinds() {
		require.Equal(t, s.Records(k), restored.Records(k), k.String())

		want, wantOK := s.ExpectedParticipants(k)
		have, haveOK := restored.ExpectedParticipants(k)
		require.Equal(t, wantOK, haveOK, k.String())
		require.Equal(t, want, have, k.String())
	}
	require.Equal(t, s.ChangeViewReasons(), restored.ChangeViewReasons())
	require.Equal(t, s.ChangeViewReasonCounts(), restored.ChangeViewReasonCounts())
	require.Equal(t, s.ChangeViewTotal(), restored.ChangeViewTotal())
}

func TestSnapshot_Deterministic(t *testing.T) {
	t.Parallel()

	s, _ := fullState(t)
	snap := s.Snapshot()

	b := dbftsnapshot.Encode(snap)
	for range 10 {
		require.Equal(t, b, dbftsnapshot.Encode(snap))
	}
}

func TestSnapshot_OptionalTail(t *testing.T) {
	t.Parallel()

	s, _ := fullState(t)
	snap := s.Snapshot()

	// Encoding only the leading sections mimics an older writer.
	short := snap
	short.Expected = nil
	short.ChangeViewReasons = nil
	short.ChangeViewReasonCounts = nil
	short.ChangeViewTotal = 0
	full := dbftsnapshot.Encode(short)

	// Expected count, reasons count, counts count: one zero byte each,
	// then four bytes of total.
	head := full[:len(full)-3-4]

	got, err := dbftsnapshot.Decode(head)
	require.NoError(t, err)
	require.Equal(t, short, got)

	// Cutting after the expected section also decodes.
	withExpected := snap
	withExpected.ChangeViewReasons = nil
	withExpected.ChangeViewReasonCounts = nil
	withExpected.ChangeViewTotal = 0
	b := dbftsnapshot.Encode(withExpected)

	got, err = dbftsnapshot.Decode(b[:len(b)-2-4])
	require.NoError(t, err)
	require.Equal(t, withExpected, got)
}

func TestSnapshot_Malformed(t *testing.T) {
	t.Parallel()

	s, _ := fullState(t)
	b := dbftsnapshot.Encode(s.Snapshot())

	t.Run("truncated header", func(t *testing.T) {
		t.Parallel()

		for n := 0; n < 10; n++ {
			_, err := dbftsnapshot.Decode(b[:n])
			require.ErrorAs(t, err, new(*dbftcodec.DecodeError))
		}
	})

	t.Run("truncated record", func(t *testing.T) {
		t.Parallel()

		// Height, view, flag, proposal, record kind count, first kind, first count,
		// then part of the first signed message.
		_, err := dbftsnapshot.Decode(b[:8+1+1+32+1+1+1+5])
		require.ErrorAs(t, err, new(*dbftcodec.DecodeError))
	})

	t.Run("bad proposal flag", func(t *testing.T) {
		t.Parallel()

		bad := append([]byte(nil), b...)
		bad[9] = 2
		_, err := dbftsnapshot.Decode(bad)

		var de *dbftcodec.DecodeError
		require.ErrorAs(t, err, &de)
		require.Equal(t, dbftcodec.ReasonOutOfRange, de.Reason)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		t.Parallel()

		bad := append(append([]byte(nil), b...), 0)
		_, err := dbftsnapshot.Decode(bad)

		var de *dbftcodec.DecodeError
		require.ErrorAs(t, err, &de)
		require.Equal(t, dbftcodec.ReasonTrailingBytes, de.Reason)
	})
}
