package dblsminsig

import (
	"context"
	"errors"
	"fmt"

	"github.com/r3e-network/neodbft/dcrypto"
	blst "github.com/supranational/blst/bindings/go"
)

// keyTypeName fits the eight-byte registry prefix.
const keyTypeName = "bls12381"

// DomainSeparationTag is the basic-scheme ciphersuite ID for signatures in G1
// (hash-to-curve suite BLS12381G1_XMD:SHA-256_SSWU_RO_, tag NUL).
// Every validator must sign and verify with the same tag.
var DomainSeparationTag = []byte("BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NUL_")

// keyGenSalt is the KeyGen salt for every [Signer].
var keyGenSalt = []byte("DBFT-BLS-KEYGEN-SALT-")

// Register registers the BLS minimized-signature key type with the given Registry.
func Register(reg *dcrypto.Registry) {
	reg.Register(keyTypeName, PubKey{}, NewPubKey)
}

// PubKey wraps a blst.P2Affine and satisfies [dcrypto.PubKey].
type PubKey blst.P2Affine

// NewPubKey parses the 96-byte compressed form produced by [PubKey.PubKeyBytes].
// Points off the curve or outside the prime-order subgroup are rejected.
func NewPubKey(b []byte) (dcrypto.PubKey, error) {
	if len(b) != blst.BLST_P2_COMPRESS_BYTES {
		return nil, fmt.Errorf("BLS public key has %d bytes; want %d", len(b), blst.BLST_P2_COMPRESS_BYTES)
	}

	pt := new(blst.P2Affine).Uncompress(b)
	if pt == nil {
		return nil, errors.New("invalid compressed G2 point")
	}

	if !pt.KeyValidate() {
		return nil, errors.New("public key not in the G2 subgroup")
	}

	return PubKey(*pt), nil
}

func (k PubKey) Equal(other dcrypto.PubKey) bool {
	o, ok := other.(PubKey)
	if !ok {
		return false
	}

	p2a := blst.P2Affine(k)
	p2o := blst.P2Affine(o)
	return p2a.Equals(&p2o)
}

// PubKeyBytes returns the compressed G2 point.
func (k PubKey) PubKeyBytes() []byte {
	p2a := blst.P2Affine(k)
	return p2a.Compress()
}

// Verify reports whether sig, a compressed P1 point, matches k for msg.
func (k PubKey) Verify(msg, sig []byte) bool {
	s := new(blst.P1Affine).Uncompress(sig)
	if s == nil || !s.SigValidate(false) {
		return false
	}

	pk := blst.P2Affine(k)
	return s.Verify(false, &pk, false, blst.Message(msg), DomainSeparationTag)
}

// Signer satisfies [dcrypto.Signer] for minimized-signature BLS.
type Signer struct {
	secret blst.SecretKey

	// The effective public key.
	point blst.P2Affine
}

// NewSigner derives a secret key from ikm with KeyGen.
// Fewer than 32 bytes of key material is an error.
func NewSigner(ikm []byte) (Signer, error) {
	if len(ikm) < blst.BLST_SCALAR_BYTES {
		return Signer{}, fmt.Errorf(
			"key material has %d bytes; at least %d required",
			len(ikm), blst.BLST_SCALAR_BYTES,
		)
	}
	sk := blst.KeyGenV5(ikm, keyGenSalt)
	return Signer{
		secret: *sk,
		point:  *new(blst.P2Affine).From(sk),
	}, nil
}

func (s Signer) PubKey() dcrypto.PubKey {
	return PubKey(s.point)
}

// Sign returns the compressed signature point for input,
// using [DomainSeparationTag].
func (s Signer) Sign(_ context.Context, input []byte) ([]byte, error) {
	p1 := new(blst.P1Affine).Sign(&s.secret, input, DomainSeparationTag, true)
	if p1 == nil {
		return nil, errors.New("blst rejected signing options")
	}
	return p1.Compress(), nil
}
