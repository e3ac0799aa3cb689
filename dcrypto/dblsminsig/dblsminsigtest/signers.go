// Package dblsminsigtest provides deterministic BLS signers for tests.
package dblsminsigtest

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/r3e-network/neodbft/dcrypto/dblsminsig"
)

var (
	muSigners        sync.RWMutex
	generatedSigners []dblsminsig.Signer
)

// DeterministicSigners returns n signers whose key material is derived from their index.
// Signers are cached across calls, since BLS key generation is comparatively slow.
func DeterministicSigners(n int) []dblsminsig.Signer {
	res := optimisticLoadSigners(n)
	if len(res) >= n {
		return res
	}

	muSigners.Lock()
	defer muSigners.Unlock()

	// Another writer may have filled the cache before we acquired the lock.
	if len(generatedSigners) < n {
		sized := make([]dblsminsig.Signer, n)
		copy(sized, generatedSigners)

		var wg sync.WaitGroup
		for i := len(generatedSigners); i < n; i++ {
			wg.Add(1)
			go generateOneSigner(&wg, &sized[i], i)
		}
		wg.Wait()

		generatedSigners = sized
	}

	return append(res, generatedSigners[len(res):n]...)
}

func optimisticLoadSigners(n int) []dblsminsig.Signer {
	muSigners.RLock()
	defer muSigners.RUnlock()

	res := make([]dblsminsig.Signer, 0, n)
	for i, s := range generatedSigners {
		if i >= n {
			break
		}
		res = append(res, s)
	}
	return res
}

func generateOneSigner(wg *sync.WaitGroup, dst *dblsminsig.Signer, i int) {
	defer wg.Done()

	var ikm [32]byte
	copy(ikm[:], "dblsminsigtest")
	binary.BigEndian.PutUint64(ikm[24:32], uint64(i))

	s, err := dblsminsig.NewSigner(ikm[:])
	if err != nil {
		panic(fmt.Errorf("failed to make signer: %w", err))
	}

	*dst = s
}
