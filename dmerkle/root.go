package dmerkle

import "crypto/sha256"

// Root returns the Merkle root of leaves.
// The root of zero leaves is the zero hash,
// and the root of one leaf is that leaf.
func Root(leaves [][32]byte) [32]byte {
	if len(leaves) == 0 {
		return [32]byte{}
	}

	layer := make([][32]byte, len(leaves))
	copy(layer, leaves)

	var buf [64]byte
	for len(layer) > 1 {
		next := make([][32]byte, 0, (len(layer)+1)/2)

		for i := 0; i < len(layer); i += 2 {
			left := layer[i]
			right := left
			if i+1 < len(layer) {
				right = layer[i+1]
			}

			copy(buf[:32], left[:])
			copy(buf[32:], right[:])
			next = append(next, sha256.Sum256(buf[:]))
		}

		layer = next
	}

	return layer[0]
}
