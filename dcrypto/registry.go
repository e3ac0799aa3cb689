package dcrypto

import (
	"bytes"
	"fmt"
	"reflect"
)

// prefixLen is the fixed width of the type name written before key bytes.
const prefixLen = 8

// Registry maps public key types to short names,
// so that a marshaled key carries enough information to be decoded again.
//
// The zero value is ready to use.
type Registry struct {
	byPrefix map[string]func([]byte) (PubKey, error)
	byType   map[reflect.Type]string
}

// Register associates name with the concrete type of inst
// and the constructor used to decode it.
// Names longer than 8 bytes panic, as do repeated registrations.
func (r *Registry) Register(name string, inst PubKey, newFn func([]byte) (PubKey, error)) {
	if len(name) > prefixLen {
		panic(fmt.Errorf("BUG: registry name %q longer than %d bytes", name, prefixLen))
	}

	if r.byPrefix == nil {
		r.byPrefix = make(map[string]func([]byte) (PubKey, error))
		r.byType = make(map[reflect.Type]string)
	}

	if _, ok := r.byPrefix[name]; ok {
		panic(fmt.Errorf("BUG: registry name %q registered twice", name))
	}

	r.byPrefix[name] = newFn
	r.byType[reflect.TypeOf(inst)] = name
}

// Marshal returns the type prefix followed by the key bytes.
// Marshal panics if the key's type was never registered.
func (r *Registry) Marshal(k PubKey) []byte {
	name, ok := r.byType[reflect.TypeOf(k)]
	if !ok {
		panic(fmt.Errorf("BUG: no registered name for public key type %T", k))
	}

	kb := k.PubKeyBytes()
	out := make([]byte, prefixLen, prefixLen+len(kb))
	copy(out, name)
	return append(out, kb...)
}

// Unmarshal decodes a key previously produced by Marshal.
func (r *Registry) Unmarshal(b []byte) (PubKey, error) {
	if len(b) < prefixLen {
		return nil, fmt.Errorf("marshaled key too short: %d bytes", len(b))
	}

	name := string(bytes.TrimRight(b[:prefixLen], "\x00"))
	newFn, ok := r.byPrefix[name]
	if !ok {
		return nil, fmt.Errorf("no registered public key type for prefix %q", name)
	}

	return newFn(b[prefixLen:])
}
