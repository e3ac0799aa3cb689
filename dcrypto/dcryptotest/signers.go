package dcryptotest

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/r3e-network/neodbft/dcrypto"
)

var (
	signerMu    sync.Mutex
	signerCache []dcrypto.Ed25519Signer
)

// DeterministicEd25519Signers returns n ed25519 signers
// whose keys are derived from their index.
//
// The keys are cached, so repeated calls across tests are effectively free,
// and logs involving keys stay stable across runs.
func DeterministicEd25519Signers(n int) []dcrypto.Signer {
	signerMu.Lock()
	defer signerMu.Unlock()

	for i := len(signerCache); i < n; i++ {
		var seedInput [len("dcryptotest") + 8]byte
		copy(seedInput[:], "dcryptotest")
		binary.LittleEndian.PutUint64(seedInput[len("dcryptotest"):], uint64(i))
		seed := sha256.Sum256(seedInput[:])

		signerCache = append(signerCache, dcrypto.NewEd25519Signer(ed25519.NewKeyFromSeed(seed[:])))
	}

	out := make([]dcrypto.Signer, n)
	for i := range out {
		out[i] = signerCache[i]
	}
	return out
}

// DeterministicPubKeys returns the public keys of [DeterministicEd25519Signers].
func DeterministicPubKeys(n int) []dcrypto.PubKey {
	signers := DeterministicEd25519Signers(n)
	out := make([]dcrypto.PubKey, n)
	for i, s := range signers {
		out[i] = s.PubKey()
	}
	return out
}
