// Package sshardtest provides payload helpers for tests.
package sshardtest

import "math/rand/v2"

// Payload returns size bytes of pseudorandom data, seeded from size so the
// same call always returns the same bytes.
func Payload(size int) []byte {
	seed := [32]byte{}
	seed[0] = byte(size)
	seed[1] = byte(size >> 8)
	seed[2] = byte(size >> 16)
	seed[3] = byte(size >> 24)
	chacha := rand.NewChaCha8(seed)

	b := make([]byte, size)
	_, _ = chacha.Read(b)
	return b
}
