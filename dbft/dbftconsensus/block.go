package dbftconsensus

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/r3e-network/neodbft/dcrypto"
	"github.com/r3e-network/neodbft/dmerkle"
)

// HeaderSize is the length of a header's unsigned serialization.
const HeaderSize = 4 + HashSize + HashSize + 8 + 8 + 4 + 1 + dcrypto.ScriptHashSize

// Header is the unsigned block header.
type Header struct {
	Version     uint32
	PrevHash    Hash
	MerkleRoot  Hash
	TimestampMS uint64
	Nonce       uint64

	// Index is the block height.
	Index uint32

	// Position of the primary that proposed the block.
	PrimaryIndex uint8

	// Script hash of the validators expected to sign the next block.
	NextConsensus [dcrypto.ScriptHashSize]byte
}

// AppendUnsigned appends the canonical unsigned serialization of h to dst.
func (h Header) AppendUnsigned(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, h.Version)
	dst = append(dst, h.PrevHash[:]...)
	dst = append(dst, h.MerkleRoot[:]...)
	dst = binary.LittleEndian.AppendUint64(dst, h.TimestampMS)
	dst = binary.LittleEndian.AppendUint64(dst, h.Nonce)
	dst = binary.LittleEndian.AppendUint32(dst, h.Index)
	dst = append(dst, h.PrimaryIndex)
	return append(dst, h.NextConsensus[:]...)
}

// Hash is the SHA-256 digest of the unsigned serialization.
// It is the proposal hash that validators vote on.
func (h Header) Hash() Hash {
	buf := h.AppendUnsigned(make([]byte, 0, HeaderSize))
	return sha256.Sum256(buf)
}

// Witness is one validator's Commit signature over a finalized block.
type Witness struct {
	Validator ValidatorID
	Signature []byte
}

// Block is a finalized block: the header, its transactions,
// and the quorum of commit signatures that finalized it.
type Block struct {
	Header    Header
	TxHashes  []Hash
	Witnesses []Witness
}

func (b Block) Hash() Hash {
	return b.Header.Hash()
}

func (b Block) Height() uint64 {
	return uint64(b.Header.Index)
}

// Header rebuilds the header proposed by pr at the given view.
//
// The Merkle root is computed over pr.TxHashes,
// the primary index is the position of the round's primary in vs,
// and NextConsensus is taken from vs.
// A backup accepts a PrepareRequest only if the hash of this header
// equals pr.ProposalHash.
func (pr PrepareRequest) Header(vs ValidatorSet, view ViewNumber) Header {
	leaves := make([][HashSize]byte, len(pr.TxHashes))
	for i, h := range pr.TxHashes {
		leaves[i] = h
	}

	primary := vs.PrimaryFor(pr.Height, view)
	primaryIdx, _ := vs.IndexOf(primary.ID)

	return Header{
		Version:       pr.Version,
		PrevHash:      pr.PrevHash,
		MerkleRoot:    dmerkle.Root(leaves),
		TimestampMS:   pr.TimestampMS,
		Nonce:         pr.Nonce,
		Index:         uint32(pr.Height),
		PrimaryIndex:  uint8(primaryIdx),
		NextConsensus: vs.NextConsensus(),
	}
}
