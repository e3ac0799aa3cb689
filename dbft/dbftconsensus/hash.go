package dbftconsensus

import "encoding/hex"

// HashSize is the width of every hash in the protocol.
const HashSize = 32

// Hash is a 32-byte digest: block header hashes and transaction hashes.
type Hash [HashSize]byte

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}
