package dcrypto_test

import (
	"context"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/r3e-network/neodbft/dcrypto"
	"github.com/r3e-network/neodbft/dcrypto/dcryptotest"
	"github.com/stretchr/testify/require"
)

func TestWitnessProof(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	signers := dcryptotest.DeterministicEd25519Signers(4)
	keys := dcryptotest.DeterministicPubKeys(4)

	msg := []byte("commit")
	sigs := make([][]byte, len(signers))
	for i, s := range signers {
		sig, err := s.Sign(ctx, msg)
		require.NoError(t, err)
		sigs[i] = sig
	}

	t.Run("accepts valid signatures", func(t *testing.T) {
		t.Parallel()

		p := dcrypto.NewWitnessProof(msg, keys)
		require.NoError(t, p.AddSignature(2, sigs[2]))
		require.NoError(t, p.AddSignature(0, sigs[0]))

		require.Equal(t, 2, p.Count())
		require.True(t, p.Has(0))
		require.False(t, p.Has(1))
		require.True(t, p.Has(2))

		var bs bitset.BitSet
		p.SignatureBitSet(&bs)
		require.Equal(t, uint(2), bs.Count())
		require.True(t, bs.Test(2))
	})

	t.Run("rejects signature from wrong key", func(t *testing.T) {
		t.Parallel()

		p := dcrypto.NewWitnessProof(msg, keys)
		require.ErrorIs(t, p.AddSignature(1, sigs[0]), dcrypto.ErrInvalidSignature)
		require.Zero(t, p.Count())
	})

	t.Run("rejects out of range index", func(t *testing.T) {
		t.Parallel()

		p := dcrypto.NewWitnessProof(msg, keys)
		require.ErrorIs(t, p.AddSignature(4, sigs[0]), dcrypto.ErrUnknownKey)
		require.ErrorIs(t, p.AddSignature(-1, sigs[0]), dcrypto.ErrUnknownKey)
	})

	t.Run("signatures are ordered and limited", func(t *testing.T) {
		t.Parallel()

		p := dcrypto.NewWitnessProof(msg, keys)
		for _, i := range []int{3, 1, 2} {
			require.NoError(t, p.AddSignature(i, sigs[i]))
		}

		got := p.Signatures(2)
		require.Len(t, got, 2)
		require.Equal(t, uint16(1), got[0].Index)
		require.Equal(t, uint16(2), got[1].Index)
		require.Equal(t, sigs[1], got[0].Sig)

		require.Len(t, p.Signatures(0), 3)
	})

	t.Run("VerifyWitnesses", func(t *testing.T) {
		t.Parallel()

		good := []dcrypto.IndexedSignature{
			{Index: 0, Sig: sigs[0]},
			{Index: 2, Sig: sigs[2]},
		}
		bs, err := dcrypto.VerifyWitnesses(msg, keys, good)
		require.NoError(t, err)
		require.Equal(t, uint(2), bs.Count())

		unsorted := []dcrypto.IndexedSignature{good[1], good[0]}
		_, err = dcrypto.VerifyWitnesses(msg, keys, unsorted)
		require.Error(t, err)

		dup := []dcrypto.IndexedSignature{good[0], good[0]}
		_, err = dcrypto.VerifyWitnesses(msg, keys, dup)
		require.Error(t, err)

		bad := []dcrypto.IndexedSignature{{Index: 1, Sig: sigs[0]}}
		_, err = dcrypto.VerifyWitnesses(msg, keys, bad)
		require.ErrorIs(t, err, dcrypto.ErrInvalidSignature)
	})
}

func TestMultiSigScript(t *testing.T) {
	t.Parallel()

	keys := dcryptotest.DeterministicPubKeys(4)

	script, err := dcrypto.MultiSigScript(3, keys)
	require.NoError(t, err)

	// push 3, four 32-byte pushes, push 4, syscall + 4 byte id.
	require.Len(t, script, 2+4*(2+32)+2+5)
	require.Equal(t, []byte{0x00, 3}, script[:2])

	again, err := dcrypto.MultiSigScript(3, keys)
	require.NoError(t, err)
	require.Equal(t, dcrypto.ScriptHash(script), dcrypto.ScriptHash(again))

	other, err := dcrypto.MultiSigScript(4, keys)
	require.NoError(t, err)
	require.NotEqual(t, dcrypto.ScriptHash(script), dcrypto.ScriptHash(other))

	_, err = dcrypto.MultiSigScript(0, keys)
	require.Error(t, err)
	_, err = dcrypto.MultiSigScript(5, keys)
	require.Error(t, err)
}
