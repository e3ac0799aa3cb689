package dcrypto

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/ripemd160"
)

// ScriptHashSize is the width of a script hash.
const ScriptHashSize = 20

// Opcodes used by [MultiSigScript].
const (
	opPushData1 = 0x0c
	opPushInt8  = 0x00
	opSyscall   = 0x41
)

// checkMultisigSyscall identifies the multi-signature check interop call.
const checkMultisigSyscall uint32 = 0x9ed0dc3a

// ScriptHash returns RIPEMD160(SHA256(script)).
func ScriptHash(script []byte) [ScriptHashSize]byte {
	sum := sha256.Sum256(script)

	h := ripemd160.New()
	_, _ = h.Write(sum[:])

	var out [ScriptHashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// MultiSigScript builds the m-of-n verification script
// over the given keys, in the given order.
//
// The layout is: push m, push each key, push n, syscall CheckMultisig.
func MultiSigScript(m int, keys []PubKey) ([]byte, error) {
	if m < 1 || m > len(keys) {
		return nil, fmt.Errorf("invalid multisig threshold %d for %d keys", m, len(keys))
	}
	if len(keys) > 1024 {
		return nil, fmt.Errorf("too many keys for multisig script: %d", len(keys))
	}

	var out []byte
	out = appendPushInt(out, m)
	for _, k := range keys {
		kb := k.PubKeyBytes()
		if len(kb) > 0xff {
			return nil, fmt.Errorf("public key too long for script: %d bytes", len(kb))
		}
		out = append(out, opPushData1, byte(len(kb)))
		out = append(out, kb...)
	}
	out = appendPushInt(out, len(keys))
	out = append(out, opSyscall)
	out = binary.LittleEndian.AppendUint32(out, checkMultisigSyscall)
	return out, nil
}

func appendPushInt(dst []byte, n int) []byte {
	// PUSHINT16 for values that do not fit a signed byte.
	if n > 127 {
		dst = append(dst, opPushInt8+1)
		return binary.LittleEndian.AppendUint16(dst, uint16(n))
	}
	return append(dst, opPushInt8, byte(n))
}
