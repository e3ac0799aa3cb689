package dcrypto

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/bits-and-blooms/bitset"
)

// WitnessProof collects signatures from a fixed candidate key set
// over a single common message.
//
// Each candidate is addressed by its index in the key slice
// passed to [NewWitnessProof], which for consensus is the validator's
// position in the validator set.
// A WitnessProof is not safe for concurrent use.
type WitnessProof struct {
	msg  []byte
	keys []PubKey

	// Indexed identically to keys; nil where no signature is present.
	sigs [][]byte

	bs *bitset.BitSet
}

// IndexedSignature is one signature attributed to a candidate key index.
type IndexedSignature struct {
	Index uint16
	Sig   []byte
}

// NewWitnessProof returns an empty proof for msg over the candidate keys.
func NewWitnessProof(msg []byte, keys []PubKey) *WitnessProof {
	return &WitnessProof{
		msg:  msg,
		keys: keys,
		sigs: make([][]byte, len(keys)),
		bs:   bitset.New(uint(len(keys))),
	}
}

func (p *WitnessProof) Message() []byte {
	return p.msg
}

// AddSignature verifies sig against the key at idx and records it.
// Adding a second valid signature for the same index replaces nothing;
// the first one is kept.
func (p *WitnessProof) AddSignature(idx int, sig []byte) error {
	if idx < 0 || idx >= len(p.keys) {
		return ErrUnknownKey
	}
	if !p.keys[idx].Verify(p.msg, sig) {
		return ErrInvalidSignature
	}

	if p.bs.Test(uint(idx)) {
		return nil
	}

	p.sigs[idx] = bytes.Clone(sig)
	p.bs.Set(uint(idx))
	return nil
}

// Has reports whether a signature is present for the key at idx.
func (p *WitnessProof) Has(idx int) bool {
	if idx < 0 || idx >= len(p.keys) {
		return false
	}
	return p.bs.Test(uint(idx))
}

// Count is the number of distinct keys with a signature.
func (p *WitnessProof) Count() int {
	return int(p.bs.Count())
}

// SignatureBitSet writes the proof's underlying bit set
// to the given destination bit set.
//
// By having the caller provide the bit set,
// the caller controls allocations for the bitset.
func (p *WitnessProof) SignatureBitSet(dst *bitset.BitSet) {
	p.bs.CopyFull(dst)
}

// Signatures returns up to limit signatures in ascending index order.
// A limit less than or equal to zero returns every signature.
func (p *WitnessProof) Signatures(limit int) []IndexedSignature {
	n := p.Count()
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]IndexedSignature, 0, n)
	for i, ok := p.bs.NextSet(0); ok && len(out) < n; i, ok = p.bs.NextSet(i + 1) {
		out = append(out, IndexedSignature{
			Index: uint16(i),
			Sig:   bytes.Clone(p.sigs[i]),
		})
	}
	return out
}

// VerifyWitnesses checks that every signature in sigs is a valid signature
// of msg by the indexed key, that indices are strictly ascending,
// and returns the bit set of signers.
func VerifyWitnesses(msg []byte, keys []PubKey, sigs []IndexedSignature) (*bitset.BitSet, error) {
	if !slices.IsSortedFunc(sigs, func(a, b IndexedSignature) int {
		return int(a.Index) - int(b.Index)
	}) {
		return nil, fmt.Errorf("witness indices not sorted")
	}

	p := NewWitnessProof(msg, keys)
	for _, s := range sigs {
		if p.Has(int(s.Index)) {
			return nil, fmt.Errorf("duplicate witness for index %d", s.Index)
		}
		if err := p.AddSignature(int(s.Index), s.Sig); err != nil {
			return nil, fmt.Errorf("witness for index %d: %w", s.Index, err)
		}
	}

	return p.bs.Clone(), nil
}
