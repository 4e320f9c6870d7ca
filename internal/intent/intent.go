// Package intent renders the canonical human-readable messages a wallet
// signs. Rendering is strictly deterministic: the signature covers these
// exact bytes and the on-chain program re-derives and compares the same text.
package intent

import (
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
)

// Type identifies an intent category. Each type keeps its own
// replay-protection nonce sequence per user.
type Type uint8

const (
	TypeSession Type = iota
	TypeTransfer
	TypeBridge
)

// Seed returns the derivation seed for the type's nonce account.
func (t Type) Seed() string {
	switch t {
	case TypeSession:
		return "session_nonce"
	case TypeTransfer:
		return "transfer_nonce"
	case TypeBridge:
		return "bridge_nonce"
	}
	return "unknown_nonce"
}

func (t Type) String() string {
	switch t {
	case TypeSession:
		return "session"
	case TypeTransfer:
		return "transfer"
	case TypeBridge:
		return "bridge"
	}
	return "unknown"
}

// Version is the intent message format version.
const Version = "1"

// TokenEntry is one spend allowance rendered into a session intent.
// Symbol may be empty when on-chain metadata could not be resolved; the raw
// mint address is rendered instead.
type TokenEntry struct {
	Mint     chain.PublicKey
	Symbol   string
	Amount   uint64
	Decimals uint8
}

// Display returns the symbol when known, otherwise the raw mint address.
func (e TokenEntry) Display() string {
	if e.Symbol != "" {
		return e.Symbol
	}
	return e.Mint.String()
}

// TokenList expresses a session's token authorization: unlimited, explicitly
// none, or a specific ordered list of allowances.
type TokenList struct {
	Unlimited bool
	Entries   []TokenEntry
}

// UnlimitedTokens is the token list authorizing any amount of any token.
func UnlimitedTokens() TokenList {
	return TokenList{Unlimited: true}
}

// SpecificTokens authorizes exactly the given allowances, in the given order.
func SpecificTokens(entries ...TokenEntry) TokenList {
	return TokenList{Entries: entries}
}
