// Package nonce reads replay-protection nonces for signed intents.
package nonce

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/intent"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/logger"
)

// nonceAccountDiscriminator tags on-chain nonce accounts.
var nonceAccountDiscriminator = [8]byte{0x8e, 0x5d, 0x1a, 0x42, 0xf0, 0x09, 0xb7, 0x23}

// nonceAccountSize is discriminator + little-endian u64 counter.
const nonceAccountSize = 16

// Tracker reads the next nonce for a (user, intent type) pair from chain
// state. It never caches: staleness directly risks a rejected, re-signed
// transaction, so callers re-read immediately before building an intent.
type Tracker struct {
	reader        chain.Reader
	intentProgram chain.PublicKey
}

// NewTracker creates a Tracker reading nonce accounts owned by intentProgram.
func NewTracker(reader chain.Reader, intentProgram chain.PublicKey) *Tracker {
	return &Tracker{reader: reader, intentProgram: intentProgram}
}

// Address derives the nonce account address for a user and intent type.
func (t *Tracker) Address(user chain.PublicKey, intentType intent.Type) (chain.PublicKey, error) {
	address, _, err := chain.FindProgramAddress(
		[][]byte{[]byte(intentType.Seed()), user[:]},
		t.intentProgram,
	)
	if err != nil {
		return chain.PublicKey{}, fmt.Errorf("failed to derive nonce account for %s: %w", user, err)
	}
	return address, nil
}

// NextNonce returns the nonce the next intent for (user, intentType) must
// embed: 1 when no nonce account exists yet, otherwise the stored value
// plus one.
func (t *Tracker) NextNonce(ctx context.Context, user chain.PublicKey, intentType intent.Type) (uint64, error) {
	address, err := t.Address(user, intentType)
	if err != nil {
		return 0, err
	}

	data, err := t.reader.GetAccountInfo(ctx, address)
	if errors.Is(err, chain.ErrAccountNotFound) {
		logger.Debug("nonce account absent, first use",
			zap.String("user", user.String()),
			zap.String("intent_type", intentType.String()))
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read nonce account: %w", err)
	}

	if len(data) < nonceAccountSize {
		return 0, fmt.Errorf("nonce account %s truncated: %d bytes", address, len(data))
	}
	if [8]byte(data[:8]) != nonceAccountDiscriminator {
		return 0, fmt.Errorf("account %s is not a nonce account", address)
	}
	stored := binary.LittleEndian.Uint64(data[8:16])
	return stored + 1, nil
}
