package dcrypto_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/r3e-network/neodbft/dcrypto"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RoundTrip(t *testing.T) {
	t.Parallel()

	pubKey, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	origKey := dcrypto.Ed25519PubKey(pubKey)

	reg := new(dcrypto.Registry)
	dcrypto.RegisterEd25519(reg)

	b := reg.Marshal(origKey)

	newKey, err := reg.Unmarshal(b)
	require.NoError(t, err)

	require.True(t, origKey.Equal(newKey))
	require.IsType(t, dcrypto.Ed25519PubKey{}, newKey)
	require.Equal(t, origKey.PubKeyBytes(), newKey.PubKeyBytes())
}

func TestRegistry_Unmarshal_UnknownType(t *testing.T) {
	t.Parallel()

	reg := new(dcrypto.Registry)
	dcrypto.RegisterEd25519(reg)

	_, err := reg.Unmarshal([]byte("abcd\x00\x00\x00\x00111222333"))
	require.ErrorContains(t, err, "no registered public key type for prefix \"abcd\"")
}

func TestRegistry_Unmarshal_BadLength(t *testing.T) {
	t.Parallel()

	reg := new(dcrypto.Registry)
	dcrypto.RegisterEd25519(reg)

	_, err := reg.Unmarshal([]byte("ed25519\x00short"))
	require.Error(t, err)
}
