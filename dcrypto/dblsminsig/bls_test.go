package dblsminsig_test

import (
	"context"
	"testing"

	"github.com/r3e-network/neodbft/dcrypto"
	"github.com/r3e-network/neodbft/dcrypto/dblsminsig"
	"github.com/r3e-network/neodbft/dcrypto/dblsminsig/dblsminsigtest"
	"github.com/stretchr/testify/require"
	blst "github.com/supranational/blst/bindings/go"
)

func TestSignAndVerify_single(t *testing.T) {
	t.Parallel()

	ikm := make([]byte, 32)
	for i := range ikm {
		ikm[i] = byte(i)
	}

	s, err := dblsminsig.NewSigner(ikm)
	require.NoError(t, err)

	msg := []byte("hello world")

	sig, err := s.Sign(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, sig, blst.BLST_P1_COMPRESS_BYTES)

	require.True(t, s.PubKey().Verify(msg, sig))

	// Modifying the message fails verification.
	msg[0]++
	require.False(t, s.PubKey().Verify(msg, sig))
	msg[0]--

	// Modifying the signature fails verification too.
	sig[0]++
	require.False(t, s.PubKey().Verify(msg, sig))
}

func TestNewSigner_shortIKM(t *testing.T) {
	t.Parallel()

	_, err := dblsminsig.NewSigner(make([]byte, 31))
	require.Error(t, err)
}

func TestPubKey_registry(t *testing.T) {
	t.Parallel()

	var reg dcrypto.Registry
	dblsminsig.Register(&reg)
	dcrypto.RegisterEd25519(&reg)

	signers := dblsminsigtest.DeterministicSigners(2)
	pk := signers[0].PubKey()

	b := reg.Marshal(pk)
	got, err := reg.Unmarshal(b)
	require.NoError(t, err)
	require.True(t, pk.Equal(got))
	require.False(t, signers[1].PubKey().Equal(got))

	// Truncated key bytes.
	_, err = reg.Unmarshal(b[:len(b)-1])
	require.Error(t, err)
}

func TestDeterministicSigners_stable(t *testing.T) {
	t.Parallel()

	a := dblsminsigtest.DeterministicSigners(3)
	b := dblsminsigtest.DeterministicSigners(5)

	for i := range a {
		require.True(t, a[i].PubKey().Equal(b[i].PubKey()))
	}
	require.False(t, b[3].PubKey().Equal(b[4].PubKey()))
}

func TestWitnessProof_bls(t *testing.T) {
	t.Parallel()

	signers := dblsminsigtest.DeterministicSigners(4)
	keys := make([]dcrypto.PubKey, len(signers))
	for i, s := range signers {
		keys[i] = s.PubKey()
	}

	msg := []byte("commit")
	proof := dcrypto.NewWitnessProof(msg, keys)
	for _, i := range []int{3, 0, 2} {
		sig, err := signers[i].Sign(context.Background(), msg)
		require.NoError(t, err)
		require.NoError(t, proof.AddSignature(i, sig))
	}

	// A signature under the wrong key is rejected.
	sig, err := signers[1].Sign(context.Background(), msg)
	require.NoError(t, err)
	require.ErrorIs(t, proof.AddSignature(0, sig), dcrypto.ErrInvalidSignature)

	sigs := proof.Signatures(3)
	bs, err := dcrypto.VerifyWitnesses(msg, keys, sigs)
	require.NoError(t, err)
	require.Equal(t, uint(3), bs.Count())
}
