package commands

import (
	"context"
	"crypto/ed25519"
	"os"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/session"
)

// loadWallet reads a base58-encoded ed25519 private key from the keypair file
// and returns the wallet public key plus a signer for delegation intents.
func loadWallet() (chain.PublicKey, session.SignMessageFunc, error) {
	if walletKeypairPath == "" {
		return chain.PublicKey{}, nil, errors.New("--wallet-keypair is required")
	}

	raw, err := os.ReadFile(walletKeypairPath)
	if err != nil {
		return chain.PublicKey{}, nil, errors.Wrap(err, "read wallet keypair")
	}
	decoded, err := base58.Decode(strings.TrimSpace(string(raw)))
	if err != nil {
		return chain.PublicKey{}, nil, errors.Wrap(err, "decode wallet keypair")
	}
	if len(decoded) != ed25519.PrivateKeySize {
		return chain.PublicKey{}, nil, errors.Errorf("wallet keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(decoded))
	}

	priv := ed25519.PrivateKey(decoded)
	wallet, err := chain.PublicKeyFromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return chain.PublicKey{}, nil, err
	}

	sign := func(ctx context.Context, message []byte) ([]byte, error) {
		return ed25519.Sign(priv, message), nil
	}
	return wallet, sign, nil
}
