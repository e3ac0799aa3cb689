package dbftcodec

import (
	"encoding/binary"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// signMagic prefixes all sign bytes,
// so that consensus signatures cannot be replayed in another context.
var signMagic = []byte("dBFT")

// SignatureScheme is the [dbftconsensus.SignatureScheme]
// used on the wire.
//
// Sign bytes are the magic "dBFT", the little-endian height,
// the view byte, and the encoded message.
// The validator ID is not included,
// so every validator's Commit for one proposal signs identical bytes.
type SignatureScheme struct{}

var _ dbftconsensus.SignatureScheme = SignatureScheme{}

func (SignatureScheme) SignBytes(
	height uint64, view dbftconsensus.ViewNumber, m dbftconsensus.ConsensusMessage,
) []byte {
	out := make([]byte, 0, len(signMagic)+8+1+1+dbftconsensus.HashSize)
	out = append(out, signMagic...)
	out = binary.LittleEndian.AppendUint64(out, height)
	out = append(out, byte(view))
	return AppendMessage(out, m)
}
