package paymaster

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
)

// feeConfigDiscriminator tags on-chain fee-config accounts.
var feeConfigDiscriminator = [8]byte{0x41, 0xc9, 0x2e, 0x77, 0x0b, 0x5a, 0xd6, 0x90}

// FeeConfig describes how fees in one mint are charged: the token's decimals
// and symbol for display, and the flat fees per transfer category.
type FeeConfig struct {
	Mint                  chain.PublicKey
	Decimals              uint8
	Symbol                string
	IntrachainTransferFee uint64
	BridgeTransferFee     uint64
}

// Display returns the symbol when known, otherwise the raw mint address.
func (f *FeeConfig) Display() string {
	if f.Symbol != "" {
		return f.Symbol
	}
	return f.Mint.String()
}

// DecodeFeeConfig decodes an on-chain fee-config account.
func DecodeFeeConfig(data []byte) (*FeeConfig, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("fee config account too short: %d bytes", len(data))
	}
	if [8]byte(data[:8]) != feeConfigDiscriminator {
		return nil, fmt.Errorf("account is not a fee config account")
	}
	rest := data[8:]
	if len(rest) < chain.PublicKeyLength+1+4 {
		return nil, fmt.Errorf("fee config account truncated")
	}

	cfg := &FeeConfig{}
	copy(cfg.Mint[:], rest[:chain.PublicKeyLength])
	rest = rest[chain.PublicKeyLength:]
	cfg.Decimals = rest[0]
	rest = rest[1:]

	symbolLen := binary.LittleEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint32(len(rest)) < symbolLen+16 {
		return nil, fmt.Errorf("fee config symbol overruns account data")
	}
	cfg.Symbol = string(rest[:symbolLen])
	rest = rest[symbolLen:]

	cfg.IntrachainTransferFee = binary.LittleEndian.Uint64(rest[:8])
	cfg.BridgeTransferFee = binary.LittleEndian.Uint64(rest[8:16])
	return cfg, nil
}

// FeeConfigCache memoizes per-mint fee configs for a connection's lifetime.
// Redundant population under a race is harmless: values are idempotent for a
// given mint, last write wins.
type FeeConfigCache struct {
	reader        chain.Reader
	intentProgram chain.PublicKey

	mu      sync.Mutex
	configs map[chain.PublicKey]*FeeConfig
}

// NewFeeConfigCache creates a cache reading fee configs owned by
// intentProgram.
func NewFeeConfigCache(reader chain.Reader, intentProgram chain.PublicKey) *FeeConfigCache {
	return &FeeConfigCache{
		reader:        reader,
		intentProgram: intentProgram,
		configs:       make(map[chain.PublicKey]*FeeConfig),
	}
}

// Address derives the fee-config account address for mint.
func (c *FeeConfigCache) Address(mint chain.PublicKey) (chain.PublicKey, error) {
	address, _, err := chain.FindProgramAddress(
		[][]byte{[]byte("fee_config"), mint[:]},
		c.intentProgram,
	)
	if err != nil {
		return chain.PublicKey{}, fmt.Errorf("failed to derive fee config address: %w", err)
	}
	return address, nil
}

// Get returns the fee config for mint, fetching and caching it on first use.
func (c *FeeConfigCache) Get(ctx context.Context, mint chain.PublicKey) (*FeeConfig, error) {
	c.mu.Lock()
	cached, ok := c.configs[mint]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	address, err := c.Address(mint)
	if err != nil {
		return nil, err
	}
	data, err := c.reader.GetAccountInfo(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to read fee config for %s: %w", mint, err)
	}
	cfg, err := DecodeFeeConfig(data)
	if err != nil {
		return nil, fmt.Errorf("fee config for %s: %w", mint, err)
	}

	c.mu.Lock()
	c.configs[mint] = cfg
	c.mu.Unlock()
	return cfg, nil
}
