// Package session implements the delegated-authority session protocol: the
// on-chain session record contract, the establish/replace/reestablish/revoke
// lifecycle, and the client-side state machine driving them.
package session

import (
	"time"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/keys"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/paymaster"
)

// Custom instruction-error codes the session-manager program emits that the
// client special-cases. All other codes surface opaquely.
const (
	SessionExpiredCode        uint32 = 6003
	SessionLimitsExceededCode uint32 = 6005
)

// FailureKind classifies an on-chain logical failure for renewal routing.
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureExpired
	FailureLimitsExceeded
)

// ClassifyFailure maps a decoded instruction error onto the renewal-driving
// categories.
func ClassifyFailure(err *paymaster.InstructionError) FailureKind {
	code, ok := err.CustomCode()
	if !ok {
		return FailureOther
	}
	switch code {
	case SessionExpiredCode:
		return FailureExpired
	case SessionLimitsExceededCode:
		return FailureLimitsExceeded
	default:
		return FailureOther
	}
}

// AuthorizationKind discriminates All vs Specific authorization.
type AuthorizationKind uint8

const (
	AuthorizedAll AuthorizationKind = iota
	AuthorizedSpecific
)

// ProgramGrant authorizes one program to act for the session, signing through
// its derived signer address.
type ProgramGrant struct {
	ProgramID chain.PublicKey
	SignerPDA chain.PublicKey
}

// AuthorizedPrograms is the session's program scope.
type AuthorizedPrograms struct {
	Kind   AuthorizationKind
	Grants []ProgramGrant
}

// AuthorizedTokens is the session's token scope.
type AuthorizedTokens struct {
	Kind  AuthorizationKind
	Mints []chain.PublicKey
}

// SessionInfo is the decoded on-chain session record.
type SessionInfo struct {
	Wallet             chain.PublicKey
	Major              uint16
	Minor              uint16
	Expiration         time.Time
	AuthorizedPrograms AuthorizedPrograms
	AuthorizedTokens   AuthorizedTokens
	Extra              string
}

// Expired reports whether the session is past its expiration at now.
func (i *SessionInfo) Expired(now time.Time) bool {
	return !i.Expiration.After(now)
}

// Session is a live delegated-signing authority. Immutable: renewal produces
// a new Session value even when the underlying on-chain account is the same
// address.
type Session struct {
	SessionPublicKey chain.PublicKey
	Key              *keys.SessionKey
	WalletPublicKey  chain.PublicKey
	Payer            chain.PublicKey
	Info             SessionInfo
}

// TokenLimit caps spending for one mint, in base units.
type TokenLimit struct {
	Mint   chain.PublicKey
	Amount uint64
}

// TokenLimits is an ordered list of per-mint caps. Order is preserved into
// the rendered intent message.
type TokenLimits []TokenLimit

// FilterZero drops zero-amount entries: a zero limit carries no information
// and would just add message noise.
func (l TokenLimits) FilterZero() TokenLimits {
	var filtered TokenLimits
	for _, limit := range l {
		if limit.Amount > 0 {
			filtered = append(filtered, limit)
		}
	}
	return filtered
}
