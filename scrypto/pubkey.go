// Package scrypto holds the minimal signature primitives used by witness
// attestation. Hosts sign attestations with an Ed25519 identity key; the
// PubKey abstraction keeps the rest of the module independent of the scheme.
package scrypto

// PubKey is a public key usable for verifying witness signatures.
type PubKey interface {
	// PubKeyBytes returns the serialized form of the key.
	PubKeyBytes() []byte

	// Equal reports whether other is the same key.
	Equal(other PubKey) bool

	// Verify reports whether sig is a valid signature of msg by this key.
	Verify(msg, sig []byte) bool
}
