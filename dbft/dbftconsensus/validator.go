package dbftconsensus

import (
	"errors"
	"fmt"
	"slices"

	"github.com/r3e-network/neodbft/dcrypto"
)

// MaxValidators is the largest supported validator set,
// bounded by the one-byte primary index in block headers.
const MaxValidators = 256

// ValidatorID identifies a validator's position within one validator set.
// It is only stable for the lifetime of that set.
type ValidatorID uint16

// Validator is a single member of a [ValidatorSet].
type Validator struct {
	ID     ValidatorID
	PubKey dcrypto.PubKey

	// Optional human-readable name, only used in logs and debug output.
	Alias string
}

// ValidatorSet is an immutable, non-empty roster of validators sorted by ID.
//
// The zero value is not usable; construct with [NewValidatorSet].
type ValidatorSet struct {
	vals []Validator

	nextConsensus [dcrypto.ScriptHashSize]byte
}

// NewValidatorSet validates vals and returns a ValidatorSet.
// The input must be non-empty, sorted by ID without duplicates,
// and every validator must have a public key.
// The input slice is copied.
func NewValidatorSet(vals []Validator) (ValidatorSet, error) {
	if len(vals) == 0 {
		return ValidatorSet{}, errors.New("validator set must not be empty")
	}
	if len(vals) > MaxValidators {
		return ValidatorSet{}, fmt.Errorf("too many validators: %d > %d", len(vals), MaxValidators)
	}

	for i, v := range vals {
		if v.PubKey == nil {
			return ValidatorSet{}, fmt.Errorf("validator %d has no public key", v.ID)
		}
		if i > 0 && vals[i-1].ID >= v.ID {
			return ValidatorSet{}, fmt.Errorf(
				"validators must be sorted by unique ID: %d followed by %d",
				vals[i-1].ID, v.ID,
			)
		}
	}

	vs := ValidatorSet{vals: slices.Clone(vals)}

	script, err := dcrypto.MultiSigScript(vs.Quorum(), vs.PubKeys())
	if err != nil {
		return ValidatorSet{}, fmt.Errorf("failed to build consensus script: %w", err)
	}
	vs.nextConsensus = dcrypto.ScriptHash(script)

	return vs, nil
}

// Len is the number of validators in the set.
func (vs ValidatorSet) Len() int {
	return len(vs.vals)
}

// Quorum is the minimum number of matching votes, floor(2n/3)+1.
func (vs ValidatorSet) Quorum() int {
	return len(vs.vals)*2/3 + 1
}

// MaxFaulty is the number of faulty validators the set tolerates.
func (vs ValidatorSet) MaxFaulty() int {
	return len(vs.vals) - vs.Quorum()
}

// PrimaryFor returns the validator that proposes at the given height and view.
func (vs ValidatorSet) PrimaryFor(height uint64, view ViewNumber) Validator {
	n := uint64(len(vs.vals))
	return vs.vals[(height%n+uint64(view)%n)%n]
}

// Get returns the validator with the given ID.
func (vs ValidatorSet) Get(id ValidatorID) (Validator, bool) {
	idx, ok := vs.IndexOf(id)
	if !ok {
		return Validator{}, false
	}
	return vs.vals[idx], true
}

// IndexOf returns the position of the validator with the given ID.
func (vs ValidatorSet) IndexOf(id ValidatorID) (int, bool) {
	return slices.BinarySearchFunc(vs.vals, id, func(v Validator, id ValidatorID) int {
		return int(v.ID) - int(id)
	})
}

// At returns the validator at position idx.
func (vs ValidatorSet) At(idx int) Validator {
	return vs.vals[idx]
}

// Validators returns a copy of the validators in ID order.
func (vs ValidatorSet) Validators() []Validator {
	return slices.Clone(vs.vals)
}

// IDs returns every validator ID in ascending order.
func (vs ValidatorSet) IDs() []ValidatorID {
	out := make([]ValidatorID, len(vs.vals))
	for i, v := range vs.vals {
		out[i] = v.ID
	}
	return out
}

// PubKeys returns the validators' public keys in ID order.
func (vs ValidatorSet) PubKeys() []dcrypto.PubKey {
	out := make([]dcrypto.PubKey, len(vs.vals))
	for i, v := range vs.vals {
		out[i] = v.PubKey
	}
	return out
}

// IndexOfPubKey returns the position of the validator holding key.
func (vs ValidatorSet) IndexOfPubKey(key dcrypto.PubKey) (int, bool) {
	for i, v := range vs.vals {
		if v.PubKey.Equal(key) {
			return i, true
		}
	}
	return -1, false
}

// NextConsensus is the script hash of the quorum multi-signature script
// over this set, written into block headers.
func (vs ValidatorSet) NextConsensus() [dcrypto.ScriptHashSize]byte {
	return vs.nextConsensus
}
