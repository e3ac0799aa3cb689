package dbftconsensustest

import (
	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
	"github.com/r3e-network/neodbft/dcrypto"
	"github.com/r3e-network/neodbft/dcrypto/dcryptotest"
)

// PrivVal is the "private" view of a validator for use in the [Fixture] type,
// so that tests have access to the Signer backing the validator too.
type PrivVal struct {
	Val dbftconsensus.Validator

	Signer dcrypto.Signer
}

type PrivVals []PrivVal

// DeterministicValidatorsEd25519 returns n validators with IDs 0 through n-1
// and deterministic, cached ed25519 keys.
func DeterministicValidatorsEd25519(n int) PrivVals {
	res := make(PrivVals, n)
	signers := dcryptotest.DeterministicEd25519Signers(n)

	for i := range res {
		res[i] = PrivVal{
			Val: dbftconsensus.Validator{
				ID:     dbftconsensus.ValidatorID(i),
				PubKey: signers[i].PubKey(),
			},
			Signer: signers[i],
		}
	}

	return res
}

func (vs PrivVals) Vals() []dbftconsensus.Validator {
	out := make([]dbftconsensus.Validator, len(vs))
	for i, v := range vs {
		out[i] = v.Val
	}
	return out
}

func (vs PrivVals) PubKeys() []dcrypto.PubKey {
	out := make([]dcrypto.PubKey, len(vs))
	for i, v := range vs {
		out[i] = v.Signer.PubKey()
	}
	return out
}
