package chain

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKeyLength is the byte length of an account address.
const PublicKeyLength = 32

// PublicKey is a 32-byte account address.
type PublicKey [PublicKeyLength]byte

// PublicKeyFromBase58 parses a base58-encoded address.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	var pk PublicKey
	decoded, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("invalid base58 public key %q: %w", s, err)
	}
	if len(decoded) != PublicKeyLength {
		return pk, fmt.Errorf("invalid public key length: got %d, want %d", len(decoded), PublicKeyLength)
	}
	copy(pk[:], decoded)
	return pk, nil
}

// MustPublicKeyFromBase58 parses a base58 address and panics on failure.
// Reserved for compile-time program constants.
func MustPublicKeyFromBase58(s string) PublicKey {
	pk, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PublicKeyFromBytes copies a 32-byte slice into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("invalid public key length: got %d, want %d", len(b), PublicKeyLength)
	}
	copy(pk[:], b)
	return pk, nil
}

// String returns the base58 form of the key.
func (p PublicKey) String() string {
	return base58.Encode(p[:])
}

// Bytes returns the raw key bytes.
func (p PublicKey) Bytes() []byte {
	return p[:]
}

// Equals reports whether two keys are the same address.
func (p PublicKey) Equals(other PublicKey) bool {
	return bytes.Equal(p[:], other[:])
}

// IsZero reports whether the key is the all-zero address.
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// Hash is a 32-byte blockhash.
type Hash [32]byte

// HashFromBase58 parses a base58-encoded blockhash.
func HashFromBase58(s string) (Hash, error) {
	var h Hash
	decoded, err := base58.Decode(s)
	if err != nil {
		return h, fmt.Errorf("invalid base58 hash %q: %w", s, err)
	}
	if len(decoded) != 32 {
		return h, fmt.Errorf("invalid hash length: got %d, want 32", len(decoded))
	}
	copy(h[:], decoded)
	return h, nil
}

// String returns the base58 form of the hash.
func (h Hash) String() string {
	return base58.Encode(h[:])
}
