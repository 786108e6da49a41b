package scrypto

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"io"
)

// Ed25519PubKey satisfies [PubKey] for Ed25519 keys.
type Ed25519PubKey ed25519.PublicKey

// PubKeyBytes satisfies [PubKey].
func (k Ed25519PubKey) PubKeyBytes() []byte {
	return []byte(k)
}

// Equal satisfies [PubKey].
func (k Ed25519PubKey) Equal(other PubKey) bool {
	o, ok := other.(Ed25519PubKey)
	if !ok {
		return false
	}
	return bytes.Equal(k, o)
}

// Verify satisfies [PubKey].
func (k Ed25519PubKey) Verify(msg, sig []byte) bool {
	if len(k) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(k), msg, sig)
}

// ParseEd25519PubKey validates the raw key length before wrapping it.
func ParseEd25519PubKey(b []byte) (Ed25519PubKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 public key length: %d", len(b))
	}
	return Ed25519PubKey(bytes.Clone(b)), nil
}

// Ed25519Signer is a host identity key used to sign attestations.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
}

// NewEd25519Signer generates a signer from the given entropy source,
// or crypto/rand when rng is nil.
func NewEd25519Signer(rng io.Reader) (*Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(rng)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}
	return &Ed25519Signer{priv: priv}, nil
}

// Sign returns the signature of msg.
func (s *Ed25519Signer) Sign(msg []byte) []byte {
	return ed25519.Sign(s.priv, msg)
}

// PubKey returns the signer's public key.
func (s *Ed25519Signer) PubKey() PubKey {
	return Ed25519PubKey(s.priv.Public().(ed25519.PublicKey))
}
