package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/intent"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/keys"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/logger"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/nonce"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/paymaster"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/txbuilder"
)

// ErrSessionNotCreated is the data-integrity failure where the paymaster
// reported success but no session record is readable under the new session
// key. Distinct from logical transaction failures: retrying the signature
// will not help.
var ErrSessionNotCreated = errors.New("transaction succeeded, but session was not created")

// SigningError wraps a wallet's refusal or failure to sign an intent.
// Never auto-retried.
type SigningError struct {
	Cause error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("wallet declined to sign intent: %v", e.Cause)
}

func (e *SigningError) Unwrap() error {
	return e.Cause
}

// SignMessageFunc is the wallet-adapter boundary: it prompts the user's
// wallet to sign the exact intent bytes.
type SignMessageFunc func(ctx context.Context, message []byte) ([]byte, error)

// Relay is the paymaster surface the lifecycle needs.
type Relay interface {
	txbuilder.SponsorResolver
	txbuilder.FeeQuoter
	Submit(ctx context.Context, domain, variation, wireTransaction string) (*paymaster.SubmitResult, error)
}

// Config carries the protocol addresses and identity of one deployment.
type Config struct {
	Domain         string
	ChainID        string
	ManagerProgram chain.PublicKey
	IntentProgram  chain.PublicKey
	// LookupTable optionally compresses assembled transactions.
	LookupTable *chain.PublicKey
	// FeeMint denominates metered fees for transfer and bridge intents.
	FeeMint chain.PublicKey
}

// Manager orchestrates the session lifecycle against chain state and the
// paymaster.
type Manager struct {
	cfg        Config
	reader     chain.Reader
	relay      Relay
	assembler  *txbuilder.Assembler
	nonces     *nonce.Tracker
	feeConfigs *paymaster.FeeConfigCache
}

// NewManager wires a Manager from its collaborators.
func NewManager(cfg Config, reader chain.Reader, relay Relay) *Manager {
	return &Manager{
		cfg:        cfg,
		reader:     reader,
		relay:      relay,
		assembler:  txbuilder.NewAssembler(reader, relay, relay),
		nonces:     nonce.NewTracker(reader, cfg.IntentProgram),
		feeConfigs: paymaster.NewFeeConfigCache(reader, cfg.IntentProgram),
	}
}

// EstablishParams describe a session to create.
type EstablishParams struct {
	Wallet      chain.PublicKey
	SignMessage SignMessageFunc
	Expires     time.Time
	// Unlimited authorizes any amount of any token; otherwise Limits apply.
	Unlimited bool
	Limits    TokenLimits
	Extra     string
}

// EstablishResult is the outcome of an establish or replace attempt. Exactly
// one of Session and Err is set; Signature is populated whenever the
// transaction reached the chain.
type EstablishResult struct {
	Signature string
	Session   *Session
	Err       *paymaster.InstructionError
}

// Establish creates a brand-new session: generates a fresh session key, has
// the wallet sign the delegation intent, submits the sponsored transaction
// and confirms the session record exists.
func (m *Manager) Establish(ctx context.Context, p EstablishParams) (*EstablishResult, error) {
	sessionKey, err := keys.NewSessionKey()
	if err != nil {
		return nil, err
	}
	return m.establishWithKey(ctx, sessionKey, p)
}

// Replace re-authorizes an existing session's record with a new expiry and
// limits. Same wallet, same session key, fresh wallet signature; the result
// is a new Session value.
func (m *Manager) Replace(ctx context.Context, existing *Session, p EstablishParams) (*EstablishResult, error) {
	if existing == nil {
		return nil, fmt.Errorf("cannot replace a nil session")
	}
	if !p.Wallet.IsZero() && !p.Wallet.Equals(existing.WalletPublicKey) {
		return nil, fmt.Errorf("replace is scoped to the session's wallet %s", existing.WalletPublicKey)
	}
	p.Wallet = existing.WalletPublicKey
	return m.establishWithKey(ctx, existing.Key, p)
}

func (m *Manager) establishWithKey(ctx context.Context, sessionKey *keys.SessionKey, p EstablishParams) (*EstablishResult, error) {
	if p.Wallet.IsZero() {
		return nil, fmt.Errorf("wallet public key is required")
	}
	if p.SignMessage == nil {
		return nil, fmt.Errorf("a message signer is required")
	}
	if !p.Expires.After(time.Now()) {
		return nil, fmt.Errorf("session expiration must be in the future")
	}

	// The sponsor funds token-account rent, so resolve it before building
	// instructions. Cached after the first call.
	sponsor, err := m.relay.ResolveSponsor(ctx, m.cfg.Domain)
	if err != nil {
		return nil, err
	}

	var (
		instructions  []chain.Instruction
		tokenAccounts []chain.PublicKey
		tokens        intent.TokenList
	)
	if p.Unlimited {
		tokens = intent.UnlimitedTokens()
	} else {
		limits := p.Limits.FilterZero()
		tokens = intent.SpecificTokens(m.resolveTokenEntries(ctx, limits)...)
		for _, limit := range limits {
			createIx, ata, err := buildCreateATAIdempotentInstruction(sponsor, p.Wallet, limit.Mint)
			if err != nil {
				return nil, err
			}
			instructions = append(instructions, createIx)
			tokenAccounts = append(tokenAccounts, ata)
		}
	}

	message, err := intent.BuildSessionIntentMessage(intent.SessionIntentParams{
		Domain:     m.cfg.Domain,
		ChainID:    m.cfg.ChainID,
		ExpiresAt:  p.Expires,
		SessionKey: sessionKey.PublicKey(),
		Tokens:     tokens,
		Extra:      p.Extra,
	})
	if err != nil {
		return nil, err
	}

	walletSignature, err := p.SignMessage(ctx, message)
	if err != nil {
		return nil, &SigningError{Cause: err}
	}

	verifyIx, err := buildEd25519VerifyInstruction(p.Wallet, walletSignature, message)
	if err != nil {
		return nil, err
	}
	sessionAddress, err := DeriveSessionAddress(sessionKey.PublicKey(), m.cfg.ManagerProgram)
	if err != nil {
		return nil, err
	}
	instructions = append(instructions,
		verifyIx,
		buildStartSessionInstruction(m.cfg.ManagerProgram, sessionAddress, p.Wallet, sessionKey.PublicKey(), p.Expires, message, tokenAccounts),
	)

	tx, err := m.assembler.Assemble(ctx, txbuilder.AssembleParams{
		Domain:       m.cfg.Domain,
		Instructions: instructions,
		SessionKey:   sessionKey,
		Sponsor:      &sponsor,
		LookupTable:  m.cfg.LookupTable,
	})
	if err != nil {
		return nil, err
	}

	result, err := m.relay.Submit(ctx, m.cfg.Domain, "", tx.Base64())
	if err != nil {
		return nil, err
	}
	if !result.Succeeded() {
		return &EstablishResult{Signature: result.Signature, Err: result.Err}, nil
	}

	// A signature success with no readable session account is itself a
	// failure: confirm the record before handing out the session.
	data, err := m.reader.GetAccountInfo(ctx, sessionAddress)
	if errors.Is(err, chain.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w (signature %s)", ErrSessionNotCreated, result.Signature)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read back session account: %w", err)
	}
	info, err := DecodeSessionAccount(data)
	if err != nil {
		return nil, err
	}

	logger.Info("session established",
		zap.String("wallet", p.Wallet.String()),
		zap.String("session_key", sessionKey.PublicKey().String()),
		zap.Time("expires", info.Expiration),
		zap.String("signature", result.Signature))

	return &EstablishResult{
		Signature: result.Signature,
		Session: &Session{
			SessionPublicKey: sessionKey.PublicKey(),
			Key:              sessionKey,
			WalletPublicKey:  p.Wallet,
			Payer:            sponsor,
			Info:             *info,
		},
	}, nil
}

// Reestablish restores a previously stored session without any signing: it
// re-reads the on-chain record for the stored session key. Returns (nil, nil)
// when the record is gone or expired, signaling the caller to fall back to
// Establish.
func (m *Manager) Reestablish(ctx context.Context, wallet chain.PublicKey, storedKey *keys.SessionKey) (*Session, error) {
	sessionAddress, err := DeriveSessionAddress(storedKey.PublicKey(), m.cfg.ManagerProgram)
	if err != nil {
		return nil, err
	}
	data, err := m.reader.GetAccountInfo(ctx, sessionAddress)
	if errors.Is(err, chain.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session account: %w", err)
	}
	info, err := DecodeSessionAccount(data)
	if err != nil {
		return nil, err
	}
	if info.Expired(time.Now()) {
		logger.Debug("stored session expired",
			zap.String("session_key", storedKey.PublicKey().String()),
			zap.Time("expired_at", info.Expiration))
		return nil, nil
	}
	if !info.Wallet.Equals(wallet) {
		return nil, fmt.Errorf("stored session belongs to wallet %s, not %s", info.Wallet, wallet)
	}

	sponsor, err := m.relay.ResolveSponsor(ctx, m.cfg.Domain)
	if err != nil {
		return nil, err
	}
	return &Session{
		SessionPublicKey: storedKey.PublicKey(),
		Key:              storedKey,
		WalletPublicKey:  wallet,
		Payer:            sponsor,
		Info:             *info,
	}, nil
}

// Revoke submits the on-chain revoke instruction for the session. Best
// effort: failures are logged and returned, but callers proceed to local
// cleanup regardless. Revocation is advisory, not a transactional guarantee.
func (m *Manager) Revoke(ctx context.Context, s *Session) error {
	sessionAddress, err := DeriveSessionAddress(s.SessionPublicKey, m.cfg.ManagerProgram)
	if err != nil {
		return err
	}
	revokeIx := buildRevokeInstruction(m.cfg.ManagerProgram, sessionAddress, s.SessionPublicKey, s.WalletPublicKey)

	tx, err := m.assembler.Assemble(ctx, txbuilder.AssembleParams{
		Domain:       m.cfg.Domain,
		Instructions: []chain.Instruction{revokeIx},
		SessionKey:   s.Key,
		LookupTable:  m.cfg.LookupTable,
	})
	if err != nil {
		return err
	}

	result, err := m.relay.Submit(ctx, m.cfg.Domain, "", tx.Base64())
	if err != nil {
		return err
	}
	if !result.Succeeded() {
		return fmt.Errorf("revoke failed on chain: %w", result.Err)
	}
	logger.Info("session revoked",
		zap.String("session_key", s.SessionPublicKey.String()),
		zap.String("signature", result.Signature))
	return nil
}
