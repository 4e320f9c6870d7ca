package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/intent"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/logger"
)

// splMintAccountSize is the serialized size of an SPL mint account.
const splMintAccountSize = 82

// splMintDecimalsOffset locates the decimals byte in a mint account.
const splMintDecimalsOffset = 44

// resolveTokenEntry resolves display metadata for one limit: symbol and
// decimals from the mint's fee-config account, decimals from the raw mint
// account when no fee config exists. Lookup failure is not an error: the
// entry deterministically falls back to the raw mint address and base units.
func (m *Manager) resolveTokenEntry(ctx context.Context, limit TokenLimit) intent.TokenEntry {
	entry := intent.TokenEntry{Mint: limit.Mint, Amount: limit.Amount}

	if cfg, err := m.feeConfigs.Get(ctx, limit.Mint); err == nil {
		entry.Symbol = cfg.Symbol
		entry.Decimals = cfg.Decimals
		return entry
	}

	data, err := m.reader.GetAccountInfo(ctx, limit.Mint)
	if err != nil || len(data) < splMintAccountSize {
		logger.Debug("token metadata unavailable, rendering raw mint",
			zap.String("mint", limit.Mint.String()),
			zap.Error(err))
		return entry
	}
	entry.Decimals = data[splMintDecimalsOffset]
	return entry
}

// resolveTokenEntries resolves metadata for every limit, preserving the
// supplied order.
func (m *Manager) resolveTokenEntries(ctx context.Context, limits TokenLimits) []intent.TokenEntry {
	entries := make([]intent.TokenEntry, 0, len(limits))
	for _, limit := range limits {
		entries = append(entries, m.resolveTokenEntry(ctx, limit))
	}
	return entries
}
