package dcrypto

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
)

// RegisterEd25519 registers ed25519 with the given Registry.
// There is no global registry; it is the caller's responsibility
// to register as needed.
func RegisterEd25519(reg *Registry) {
	reg.Register("ed25519", Ed25519PubKey{}, NewEd25519PubKey)
}

type Ed25519PubKey ed25519.PublicKey

func NewEd25519PubKey(b []byte) (PubKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf(
			"expected %d bytes for ed25519 public key, got %d",
			ed25519.PublicKeySize, len(b),
		)
	}
	return Ed25519PubKey(bytes.Clone(b)), nil
}

func (k Ed25519PubKey) PubKeyBytes() []byte {
	return []byte(k)
}

func (k Ed25519PubKey) Verify(msg, sig []byte) bool {
	if len(k) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(k), msg, sig)
}

func (k Ed25519PubKey) Equal(other PubKey) bool {
	o, ok := other.(Ed25519PubKey)
	if !ok {
		return false
	}

	return bytes.Equal(k, o)
}

// Ed25519Signer is a [Signer] backed by an in-memory ed25519 private key.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  Ed25519PubKey
}

func NewEd25519Signer(priv ed25519.PrivateKey) Ed25519Signer {
	return Ed25519Signer{
		priv: priv,
		pub:  Ed25519PubKey(priv.Public().(ed25519.PublicKey)),
	}
}

func (s Ed25519Signer) PubKey() PubKey {
	return s.pub
}

func (s Ed25519Signer) Sign(_ context.Context, input []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, input), nil
}
