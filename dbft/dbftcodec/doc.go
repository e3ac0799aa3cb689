// Package dbftcodec is the canonical binary encoding of consensus messages,
// signed messages, and blocks.
//
// Every multi-byte integer is fixed-width little-endian.
// Sequences are prefixed with a variable-length count:
// values below 0xfd occupy a single byte,
// otherwise a marker byte (0xfd, 0xfe, or 0xff) is followed by
// a little-endian uint16, uint32, or uint64.
//
// Encoding never fails.
// Decoding returns a [*DecodeError] on malformed input and never panics.
// Counts are checked against fixed bounds before any allocation,
// so a hostile length prefix cannot force a large allocation.
package dbftcodec
