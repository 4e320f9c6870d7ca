// Package keys owns ephemeral session key material. A SessionKey exposes its
// public half and a signing capability; the private seed leaves the process
// only sealed under an authenticated cipher, for local session restoration.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
)

// SealKeyBytes is the required length of a sealing key.
const SealKeyBytes = chacha20poly1305.KeySize

// ErrDestroyed is returned when a destroyed key is used.
var ErrDestroyed = errors.New("session key has been destroyed")

// SessionKey is an ephemeral ed25519 keypair identifying one session.
type SessionKey struct {
	priv ed25519.PrivateKey
	pub  chain.PublicKey
}

// NewSessionKey generates a fresh session keypair.
func NewSessionKey() (*SessionKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	var pk chain.PublicKey
	copy(pk[:], pub)
	return &SessionKey{priv: priv, pub: pk}, nil
}

// PublicKey returns the session's on-chain identity.
func (k *SessionKey) PublicKey() chain.PublicKey {
	return k.pub
}

// Sign signs message with the session's private key.
func (k *SessionKey) Sign(message []byte) ([]byte, error) {
	if k.priv == nil {
		return nil, ErrDestroyed
	}
	return ed25519.Sign(k.priv, message), nil
}

// SealSeed exports the private seed encrypted under sealKey. The nonce is
// prepended to the ciphertext. This is the only way private material leaves
// the handle.
func (k *SessionKey) SealSeed(sealKey []byte) ([]byte, error) {
	if k.priv == nil {
		return nil, ErrDestroyed
	}
	aead, err := chacha20poly1305.New(sealKey)
	if err != nil {
		return nil, fmt.Errorf("invalid seal key: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return append(nonce, aead.Seal(nil, nonce, k.priv.Seed(), nil)...), nil
}

// UnsealSessionKey reconstructs a SessionKey from a sealed seed.
func UnsealSessionKey(sealKey, box []byte) (*SessionKey, error) {
	aead, err := chacha20poly1305.New(sealKey)
	if err != nil {
		return nil, fmt.Errorf("invalid seal key: %w", err)
	}
	if len(box) < chacha20poly1305.NonceSize {
		return nil, errors.New("sealed session key too short")
	}
	seed, err := aead.Open(nil, box[:chacha20poly1305.NonceSize], box[chacha20poly1305.NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal session key: %w", err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	zero(seed)
	var pk chain.PublicKey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return &SessionKey{priv: priv, pub: pk}, nil
}

// Destroy wipes the private key. The handle is unusable afterwards.
func (k *SessionKey) Destroy() {
	zero(k.priv)
	k.priv = nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

var _ chain.Signer = (*SessionKey)(nil)
