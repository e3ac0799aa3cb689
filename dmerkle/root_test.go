package dmerkle_test

import (
	"crypto/sha256"
	"testing"

	"github.com/r3e-network/neodbft/dmerkle"
	"github.com/stretchr/testify/require"
)

func pair(a, b [32]byte) [32]byte {
	return sha256.Sum256(append(a[:], b[:]...))
}

func TestRoot(t *testing.T) {
	t.Parallel()

	a := sha256.Sum256([]byte("a"))
	b := sha256.Sum256([]byte("b"))
	c := sha256.Sum256([]byte("c"))

	t.Run("empty", func(t *testing.T) {
		require.Equal(t, [32]byte{}, dmerkle.Root(nil))
	})

	t.Run("single leaf", func(t *testing.T) {
		require.Equal(t, a, dmerkle.Root([][32]byte{a}))
	})

	t.Run("two leaves", func(t *testing.T) {
		require.Equal(t, pair(a, b), dmerkle.Root([][32]byte{a, b}))
	})

	t.Run("odd leaf is duplicated", func(t *testing.T) {
		want := pair(pair(a, b), pair(c, c))
		require.Equal(t, want, dmerkle.Root([][32]byte{a, b, c}))
	})

	t.Run("input is not modified", func(t *testing.T) {
		in := [][32]byte{a, b, c}
		_ = dmerkle.Root(in)
		require.Equal(t, [][32]byte{a, b, c}, in)
	})
}
