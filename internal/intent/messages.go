package intent

import (
	"fmt"
	"strings"
	"time"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
)

// disclaimer is the fixed header every session intent carries. The on-chain
// program compares these bytes verbatim.
const disclaimer = "By signing below, you authorize this app to act on behalf of your wallet until the expiration time. Only sign this message if you trust this app."

const (
	tokensUnlimitedLine = "may spend any amount of any token"
	tokensNoneLine      = "may not spend any tokens"
)

// SessionIntentParams are the inputs to a session delegation message.
type SessionIntentParams struct {
	Domain     string
	ChainID    string
	ExpiresAt  time.Time
	SessionKey chain.PublicKey
	Tokens     TokenList
	Extra      string
}

func (p SessionIntentParams) validate() error {
	if p.Domain == "" {
		return fmt.Errorf("intent domain is required")
	}
	if p.ChainID == "" {
		return fmt.Errorf("intent chain id is required")
	}
	if p.ExpiresAt.IsZero() {
		return fmt.Errorf("intent expiration is required")
	}
	if p.SessionKey.IsZero() {
		return fmt.Errorf("intent session key is required")
	}
	for _, entry := range p.Tokens.Entries {
		if entry.Amount == 0 {
			return fmt.Errorf("zero-amount limit for %s: zero limits must be filtered before building an intent", entry.Display())
		}
	}
	return nil
}

// BuildSessionIntentMessage renders the delegation message a wallet signs to
// start or replace a session. Two calls with identical logical input produce
// byte-identical output.
func BuildSessionIntentMessage(p SessionIntentParams) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(disclaimer)
	b.WriteString("\n\n")
	writeField(&b, "version", Version)
	writeField(&b, "chain_id", p.ChainID)
	writeField(&b, "domain", p.Domain)
	writeField(&b, "expires", p.ExpiresAt.UTC().Format(time.RFC3339))
	writeField(&b, "session_key", p.SessionKey.String())

	switch {
	case p.Tokens.Unlimited:
		writeField(&b, "tokens", tokensUnlimitedLine)
	case len(p.Tokens.Entries) == 0:
		writeField(&b, "tokens", tokensNoneLine)
	default:
		b.WriteString("tokens:\n")
		for _, entry := range p.Tokens.Entries {
			fmt.Fprintf(&b, "-%s: %s\n", entry.Display(), FormatAmount(entry.Amount, entry.Decimals))
		}
	}

	if p.Extra != "" {
		writeField(&b, "extra", p.Extra)
	}
	return []byte(b.String()), nil
}

// TransferIntentParams are the inputs to an intrachain transfer message.
type TransferIntentParams struct {
	ChainID   string
	Token     TokenEntry
	Recipient chain.PublicKey
	FeeToken  TokenEntry
	FeeAmount uint64
	Nonce     uint64
}

// BuildTransferIntentMessage renders the message authorizing a single
// intrachain transfer.
func BuildTransferIntentMessage(p TransferIntentParams) ([]byte, error) {
	if p.ChainID == "" {
		return nil, fmt.Errorf("intent chain id is required")
	}
	if p.Token.Amount == 0 {
		return nil, fmt.Errorf("transfer amount must be positive")
	}
	if p.Recipient.IsZero() {
		return nil, fmt.Errorf("transfer recipient is required")
	}
	if p.Nonce == 0 {
		return nil, fmt.Errorf("transfer nonce is required")
	}

	var b strings.Builder
	writeField(&b, "version", Version)
	writeField(&b, "chain_id", p.ChainID)
	writeField(&b, "token", p.Token.Display())
	writeField(&b, "amount", FormatAmount(p.Token.Amount, p.Token.Decimals))
	writeField(&b, "recipient", p.Recipient.String())
	writeField(&b, "fee_token", p.FeeToken.Display())
	writeField(&b, "fee_amount", FormatAmount(p.FeeAmount, p.FeeToken.Decimals))
	writeField(&b, "nonce", fmt.Sprintf("%d", p.Nonce))
	return []byte(b.String()), nil
}

// BridgeIntentParams are the inputs to a cross-chain transfer message.
type BridgeIntentParams struct {
	FromChain string
	ToChain   string
	Token     TokenEntry
	Recipient string
	FeeToken  TokenEntry
	FeeAmount uint64
	Nonce     uint64
}

// BuildBridgeIntentMessage renders the message authorizing a bridge transfer.
// The recipient is an opaque string because the destination chain's address
// format is not ours to interpret.
func BuildBridgeIntentMessage(p BridgeIntentParams) ([]byte, error) {
	if p.FromChain == "" || p.ToChain == "" {
		return nil, fmt.Errorf("bridge source and destination chains are required")
	}
	if p.Token.Amount == 0 {
		return nil, fmt.Errorf("bridge amount must be positive")
	}
	if p.Recipient == "" {
		return nil, fmt.Errorf("bridge recipient is required")
	}
	if p.Nonce == 0 {
		return nil, fmt.Errorf("bridge nonce is required")
	}

	var b strings.Builder
	writeField(&b, "version", Version)
	writeField(&b, "from_chain", p.FromChain)
	writeField(&b, "to_chain", p.ToChain)
	writeField(&b, "token", p.Token.Display())
	writeField(&b, "amount", FormatAmount(p.Token.Amount, p.Token.Decimals))
	writeField(&b, "recipient", p.Recipient)
	writeField(&b, "fee_token", p.FeeToken.Display())
	writeField(&b, "fee_amount", FormatAmount(p.FeeAmount, p.FeeToken.Decimals))
	writeField(&b, "nonce", fmt.Sprintf("%d", p.Nonce))
	return []byte(b.String()), nil
}

func writeField(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}
