package dcrypto

import (
	"context"
	"errors"
)

// PubKey is the public half of a validator key.
type PubKey interface {
	PubKeyBytes() []byte

	Equal(other PubKey) bool

	Verify(msg, sig []byte) bool
}

// Signer produces signatures for a single key.
//
// The engine only ever holds a Signer for the local validator;
// remote validators are represented by their PubKey alone.
type Signer interface {
	PubKey() PubKey

	Sign(ctx context.Context, input []byte) ([]byte, error)
}

var (
	// ErrUnknownKey is returned when a signature is attributed
	// to a key outside the candidate set.
	ErrUnknownKey = errors.New("unknown key")

	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
)
