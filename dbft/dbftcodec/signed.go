package dbftcodec

import (
	"encoding/binary"

	"github.com/r3e-network/neodbft/dbft/dbftconsensus"
)

// EncodeSignedMessage returns the canonical encoding of sm:
// validator, height, view, message, then the count-prefixed signature.
func EncodeSignedMessage(sm dbftconsensus.SignedMessage) []byte {
	return AppendSignedMessage(nil, sm)
}

// AppendSignedMessage appends the encoding of sm to dst.
func AppendSignedMessage(dst []byte, sm dbftconsensus.SignedMessage) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(sm.Validator))
	dst = binary.LittleEndian.AppendUint64(dst, sm.Height)
	dst = append(dst, byte(sm.View))
	dst = AppendMessage(dst, sm.Message)
	return AppendVarBytes(dst, sm.Signature)
}

// DecodeSignedMessage decodes a signed message, requiring that b is fully consumed.
func DecodeSignedMessage(b []byte) (dbftconsensus.SignedMessage, error) {
	r := NewReader(b)
	sm := ReadSignedMessage(r)
	if err := r.Finish("signed message"); err != nil {
		return dbftconsensus.SignedMessage{}, err
	}
	return sm, nil
}

// ReadSignedMessage reads one signed message from r.
// On failure r holds the error and the returned value must be discarded.
func ReadSignedMessage(r *Reader) dbftconsensus.SignedMessage {
	var sm dbftconsensus.SignedMessage
	sm.Validator = dbftconsensus.ValidatorID(r.Uint16("validator"))
	sm.Height = r.Uint64("height")
	sm.View = dbftconsensus.ViewNumber(r.Uint8("view"))
	sm.Message = ReadMessage(r)
	sm.Signature = r.VarBytes(MaxSignatureSize, "signature")
	return sm
}
