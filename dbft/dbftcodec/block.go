package dbftcodec

import (
	"encoding/binary"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// EncodeBlock returns the storage encoding of b:
// the unsigned header, the transaction hashes, then the witnesses.
func EncodeBlock(b dbftconsensus.Block) []byte {
	out := make([]byte, 0, dbftconsensus.HeaderSize+1+len(b.TxHashes)*dbftconsensus.HashSize+1)
	out = b.Header.AppendUnsigned(out)
	out = appendHashes(out, b.TxHashes)

	out = AppendVarInt(out, uint64(len(b.Witnesses)))
	for _, w := range b.Witnesses {
		out = binary.LittleEndian.AppendUint16(out, uint16(w.Validator))
		out = AppendVarBytes(out, w.Signature)
	}
	return out
}

// DecodeBlock decodes a block produced by [EncodeBlock].
func DecodeBlock(b []byte) (dbftconsensus.Block, error) {
	r := NewReader(b)

	var blk dbftconsensus.Block
	h := &blk.Header
	h.Version = r.Uint32("version")
	r.Fixed(h.PrevHash[:], "prev hash")
	r.Fixed(h.MerkleRoot[:], "merkle root")
	h.TimestampMS = r.Uint64("timestamp")
	h.Nonce = r.Uint64("nonce")
	h.Index = r.Uint32("index")
	h.PrimaryIndex = r.Uint8("primary index")
	r.Fixed(h.NextConsensus[:], "next consensus")

	blk.TxHashes = readHashes(r, MaxTransactions, "tx hashes")

	if n := r.VarInt(MaxWitnesses, "witnesses"); n > 0 {
		blk.Witnesses = make([]dbftconsensus.Witness, 0, n)
		for range n {
			w := dbftconsensus.Witness{
				Validator: dbftconsensus.ValidatorID(r.Uint16("witness validator")),
				Signature: r.VarBytes(MaxSignatureSize, "witness signature"),
			}
			if r.Err() != nil {
				break
			}
			blk.Witnesses = append(blk.Witnesses, w)
		}
	}

	if err := r.Finish("block"); err != nil {
		return dbftconsensus.Block{}, err
	}
	return blk, nil
}
