// Package dmerkle computes Merkle roots over fixed-size hashes,
// as used for the transaction root of a block header.
//
// The tree is built bottom-up with SHA-256 over the concatenation of
// each pair of children; an odd node at the end of a layer is paired
// with itself.
package dmerkle
