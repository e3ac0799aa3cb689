// Package dblsminsig provides BLS12-381 validator keys
// in the minimized-signature variant:
// signatures are 48-byte G1 points and public keys are 96-byte G2 points.
//
// Validators using these keys produce commit witnesses
// about half the size of ed25519 ones.
//
// Signing and verification go through [github.com/supranational/blst/bindings/go],
// which is a CGo binding.
package dblsminsig
