package dbftcodec

import (
	"encoding/binary"
	"fmt"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

const (
	// MaxTransactions bounds the transaction hashes in a PrepareRequest or Block.
	MaxTransactions = 512

	// MaxSignatureSize bounds any decoded signature.
	MaxSignatureSize = 128

	// MaxWitnesses bounds the witnesses in a decoded Block.
	MaxWitnesses = 1 << 10
)

// EncodeMessage returns the canonical encoding of m.
func EncodeMessage(m dbftconsensus.ConsensusMessage) []byte {
	return AppendMessage(nil, m)
}

// AppendMessage appends the canonical encoding of m to dst.
func AppendMessage(dst []byte, m dbftconsensus.ConsensusMessage) []byte {
	dst = append(dst, byte(m.Kind()))

	switch m := m.(type) {
	case dbftconsensus.PrepareRequest:
		dst = append(dst, m.ProposalHash[:]...)
		dst = binary.LittleEndian.AppendUint64(dst, m.Height)
		dst = appendHashes(dst, m.TxHashes)
		dst = binary.LittleEndian.AppendUint32(dst, m.Version)
		dst = append(dst, m.PrevHash[:]...)
		dst = binary.LittleEndian.AppendUint64(dst, m.TimestampMS)
		dst = binary.LittleEndian.AppendUint64(dst, m.Nonce)
	case dbftconsensus.PrepareResponse:
		dst = append(dst, m.ProposalHash[:]...)
	case dbftconsensus.Commit:
		dst = append(dst, m.ProposalHash[:]...)
	case dbftconsensus.ChangeView:
		dst = append(dst, byte(m.NewView), byte(m.Reason))
		dst = binary.LittleEndian.AppendUint64(dst, m.TimestampMS)
	default:
		panic(fmt.Errorf("BUG: unhandled consensus message type %T", m))
	}

	return dst
}

// DecodeMessage decodes a single message, requiring that b is fully consumed.
func DecodeMessage(b []byte) (dbftconsensus.ConsensusMessage, error) {
	r := NewReader(b)
	m := ReadMessage(r)
	if err := r.Finish("message"); err != nil {
		return nil, err
	}
	return m, nil
}

// ReadMessage reads one message from r.
// On failure it returns nil and r holds the error.
func ReadMessage(r *Reader) dbftconsensus.ConsensusMessage {
	tag := dbftconsensus.MessageKind(r.Uint8("message tag"))
	if r.Err() != nil {
		return nil
	}

	var m dbftconsensus.ConsensusMessage
	switch tag {
	case dbftconsensus.MessageKindPrepareRequest:
		var pr dbftconsensus.PrepareRequest
		r.Fixed(pr.ProposalHash[:], "proposal hash")
		pr.Height = r.Uint64("height")
		pr.TxHashes = readHashes(r, MaxTransactions, "tx hashes")
		pr.Version = r.Uint32("version")
		r.Fixed(pr.PrevHash[:], "prev hash")
		pr.TimestampMS = r.Uint64("timestamp")
		pr.Nonce = r.Uint64("nonce")
		m = pr
	case dbftconsensus.MessageKindPrepareResponse:
		var pr dbftconsensus.PrepareResponse
		r.Fixed(pr.ProposalHash[:], "proposal hash")
		m = pr
	case dbftconsensus.MessageKindCommit:
		var c dbftconsensus.Commit
		r.Fixed(c.ProposalHash[:], "proposal hash")
		m = c
	case dbftconsensus.MessageKindChangeView:
		var cv dbftconsensus.ChangeView
		cv.NewView = dbftconsensus.ViewNumber(r.Uint8("new view"))
		cv.Reason = dbftconsensus.ChangeViewReason(r.Uint8("change view reason"))
		if r.Err() == nil && !cv.Reason.Valid() {
			r.off--
			r.Fail(ReasonOutOfRange, "change view reason")
		}
		cv.TimestampMS = r.Uint64("timestamp")
		m = cv
	default:
		r.off--
		r.Fail(ReasonUnknownTag, "message tag")
	}

	if r.Err() != nil {
		return nil
	}
	return m
}

func appendHashes(dst []byte, hs []dbftconsensus.Hash) []byte {
	dst = AppendVarInt(dst, uint64(len(hs)))
	for _, h := range hs {
		dst = append(dst, h[:]...)
	}
	return dst
}

func readHashes(r *Reader, limit uint64, field string) []dbftconsensus.Hash {
	n := r.VarInt(limit, field)
	if n == 0 {
		return nil
	}
	if uint64(r.Remaining()) < n*dbftconsensus.HashSize {
		r.Fail(ReasonTruncated, field)
		return nil
	}
	out := make([]dbftconsensus.Hash, n)
	for i := range out {
		r.Fixed(out[i][:], field)
	}
	return out
}
