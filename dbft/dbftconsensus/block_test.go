package dbftconsensus_test

import (
	"testing"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dbft/dbftconsensus/dbftconsensustest"
	"github.com/r3e-network/neodbft/dmerkle"
	"github.com/stretchr/testify/require"
)

func TestHeader_AppendUnsigned(t *testing.T) {
	t.Parallel()

	h := dbftconsensus.Header{
		Version:      1,
		PrevHash:     dbftconsensus.Hash{1},
		MerkleRoot:   dbftconsensus.Hash{2},
		TimestampMS:  3,
		Nonce:        4,
		Index:        5,
		PrimaryIndex: 6,
	}
	h.NextConsensus[0] = 7

	b := h.AppendUnsigned(nil)
	require.Len(t, b, dbftconsensus.HeaderSize)

	require.Equal(t, []byte{1, 0, 0, 0}, b[:4])
	require.Equal(t, byte(1), b[4])
	require.Equal(t, byte(2), b[36])
	require.Equal(t, byte(3), b[68])
	require.Equal(t, byte(4), b[76])
	require.Equal(t, []byte{5, 0, 0, 0}, b[84:88])
	require.Equal(t, byte(6), b[88])
	require.Equal(t, byte(7), b[89])
}

func TestHeader_Hash_fieldSensitive(t *testing.T) {
	t.Parallel()

	base := dbftconsensus.Header{Index: 10}
	baseHash := base.Hash()

	changed := base
	changed.Nonce = 1
	require.NotEqual(t, baseHash, changed.Hash())

	changed = base
	changed.PrimaryIndex = 1
	require.NotEqual(t, baseHash, changed.Hash())

	require.Equal(t, baseHash, base.Hash())
}

func TestPrepareRequest_Header(t *testing.T) {
	t.Parallel()

	fx := dbftconsensustest.NewEd25519Fixture(4)
	txs := dbftconsensustest.TxHashes(1, 3)
	pr := fx.PrepareRequest(10, 1, dbftconsensus.Hash{0xab}, txs)

	h := pr.Header(fx.Vals, 1)
	require.Equal(t, pr.ProposalHash, h.Hash())

	require.Equal(t, uint32(10), h.Index)
	require.Equal(t, uint8(3), h.PrimaryIndex) // (10%4 + 1) % 4
	require.Equal(t, dbftconsensus.Hash{0xab}, h.PrevHash)
	require.Equal(t, fx.Vals.NextConsensus(), h.NextConsensus)

	leaves := make([][32]byte, len(txs))
	for i := range txs {
		leaves[i] = txs[i]
	}
	require.Equal(t, dbftconsensus.Hash(dmerkle.Root(leaves)), h.MerkleRoot)

	// The same request rebuilt at a different view names a different primary.
	require.NotEqual(t, pr.ProposalHash, pr.Header(fx.Vals, 0).Hash())
}
