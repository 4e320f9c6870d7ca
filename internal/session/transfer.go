package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/intent"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/logger"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/paymaster"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/txbuilder"
)

// Named transaction-shape categories used for fee metering.
const (
	VariationIntrachainTransfer = "intrachain_transfer"
	VariationBridgeTransfer     = "bridge_transfer"
)

// TransferParams describe one session-authorized intrachain transfer.
type TransferParams struct {
	Session   *Session
	Mint      chain.PublicKey
	Amount    uint64
	Recipient chain.PublicKey
}

// TransferResult is the outcome of a transfer or bridge submission. Failure
// carries the renewal classification when Err is set.
type TransferResult struct {
	Signature string
	Err       *paymaster.InstructionError
	Failure   FailureKind
}

// Succeeded reports whether the transfer executed.
func (r *TransferResult) Succeeded() bool {
	return r.Err == nil
}

// Transfer spends session authority on an intrachain token transfer. The
// intent is signed by the session key, so no wallet prompt is involved; the
// nonce is read immediately before signing and is consumed on chain, which is
// what makes the signed intent single-use.
func (m *Manager) Transfer(ctx context.Context, p TransferParams) (*TransferResult, error) {
	if p.Session == nil {
		return nil, fmt.Errorf("an established session is required")
	}
	if p.Amount == 0 {
		return nil, fmt.Errorf("transfer amount must be positive")
	}
	if m.cfg.FeeMint.IsZero() {
		return nil, fmt.Errorf("fee mint not configured")
	}

	feeConfig, err := m.feeConfigs.Get(ctx, m.cfg.FeeMint)
	if err != nil {
		return nil, err
	}
	fee, err := m.relay.QuoteFee(ctx, m.cfg.Domain, VariationIntrachainTransfer, m.cfg.FeeMint)
	if err != nil {
		return nil, err
	}

	token := m.resolveTokenEntry(ctx, TokenLimit{Mint: p.Mint, Amount: p.Amount})

	// Nonce read happens strictly after any prior submission and strictly
	// before signing; no work may be reordered across this boundary.
	nextNonce, err := m.nonces.NextNonce(ctx, p.Session.WalletPublicKey, intent.TypeTransfer)
	if err != nil {
		return nil, err
	}

	message, err := intent.BuildTransferIntentMessage(intent.TransferIntentParams{
		ChainID:   m.cfg.ChainID,
		Token:     token,
		Recipient: p.Recipient,
		FeeToken:  intent.TokenEntry{Mint: feeConfig.Mint, Symbol: feeConfig.Symbol, Amount: fee, Decimals: feeConfig.Decimals},
		FeeAmount: fee,
		Nonce:     nextNonce,
	})
	if err != nil {
		return nil, err
	}
	signature, err := p.Session.Key.Sign(message)
	if err != nil {
		return nil, err
	}

	instructions, err := m.buildIntentExecution(p.Session, intentTransferTag, intent.TypeTransfer, p.Mint, p.Recipient, signature, message)
	if err != nil {
		return nil, err
	}

	return m.submitIntent(ctx, p.Session, VariationIntrachainTransfer, instructions)
}

// BridgeParams describe one session-authorized cross-chain transfer.
type BridgeParams struct {
	Session   *Session
	Mint      chain.PublicKey
	Amount    uint64
	ToChain   string
	Recipient string
}

// Bridge spends session authority on a cross-chain transfer: the tokens move
// into the bridge escrow here, and delivery on the destination chain is the
// bridge's business.
func (m *Manager) Bridge(ctx context.Context, p BridgeParams) (*TransferResult, error) {
	if p.Session == nil {
		return nil, fmt.Errorf("an established session is required")
	}
	if p.Amount == 0 {
		return nil, fmt.Errorf("bridge amount must be positive")
	}
	if m.cfg.FeeMint.IsZero() {
		return nil, fmt.Errorf("fee mint not configured")
	}

	feeConfig, err := m.feeConfigs.Get(ctx, m.cfg.FeeMint)
	if err != nil {
		return nil, err
	}
	fee, err := m.relay.QuoteFee(ctx, m.cfg.Domain, VariationBridgeTransfer, m.cfg.FeeMint)
	if err != nil {
		return nil, err
	}

	token := m.resolveTokenEntry(ctx, TokenLimit{Mint: p.Mint, Amount: p.Amount})

	nextNonce, err := m.nonces.NextNonce(ctx, p.Session.WalletPublicKey, intent.TypeBridge)
	if err != nil {
		return nil, err
	}

	message, err := intent.BuildBridgeIntentMessage(intent.BridgeIntentParams{
		FromChain: m.cfg.ChainID,
		ToChain:   p.ToChain,
		Token:     token,
		Recipient: p.Recipient,
		FeeToken:  intent.TokenEntry{Mint: feeConfig.Mint, Symbol: feeConfig.Symbol, Amount: fee, Decimals: feeConfig.Decimals},
		FeeAmount: fee,
		Nonce:     nextNonce,
	})
	if err != nil {
		return nil, err
	}
	signature, err := p.Session.Key.Sign(message)
	if err != nil {
		return nil, err
	}

	escrow, _, err := chain.FindProgramAddress(
		[][]byte{[]byte("bridge_escrow"), p.Mint[:]},
		m.cfg.IntentProgram,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to derive bridge escrow: %w", err)
	}

	instructions, err := m.buildIntentExecution(p.Session, intentBridgeTag, intent.TypeBridge, p.Mint, escrow, signature, message)
	if err != nil {
		return nil, err
	}

	return m.submitIntent(ctx, p.Session, VariationBridgeTransfer, instructions)
}

// buildIntentExecution composes the verify + execute instruction pair for a
// signed transfer or bridge intent.
func (m *Manager) buildIntentExecution(s *Session, tag byte, intentType intent.Type, mint, destinationOwner chain.PublicKey, signature, message []byte) ([]chain.Instruction, error) {
	verifyIx, err := buildEd25519VerifyInstruction(s.SessionPublicKey, signature, message)
	if err != nil {
		return nil, err
	}
	sessionAddress, err := DeriveSessionAddress(s.SessionPublicKey, m.cfg.ManagerProgram)
	if err != nil {
		return nil, err
	}
	nonceAccount, err := m.nonces.Address(s.WalletPublicKey, intentType)
	if err != nil {
		return nil, err
	}
	source, err := chain.DeriveAssociatedTokenAddress(s.WalletPublicKey, mint)
	if err != nil {
		return nil, err
	}
	destination, err := chain.DeriveAssociatedTokenAddress(destinationOwner, mint)
	if err != nil {
		return nil, err
	}
	executeIx := buildIntentExecuteInstruction(m.cfg.IntentProgram, tag, nonceAccount, sessionAddress, s.SessionPublicKey, source, destination, message)
	return []chain.Instruction{verifyIx, executeIx}, nil
}

// submitIntent assembles, sponsors and submits an intent execution, mapping
// the known renewal-driving error codes.
func (m *Manager) submitIntent(ctx context.Context, s *Session, variation string, instructions []chain.Instruction) (*TransferResult, error) {
	tx, err := m.assembler.Assemble(ctx, txbuilder.AssembleParams{
		Domain:       m.cfg.Domain,
		Instructions: instructions,
		SessionKey:   s.Key,
		FeePayer:     s.WalletPublicKey,
		LookupTable:  m.cfg.LookupTable,
		Variation:    variation,
		FeeMint:      m.cfg.FeeMint,
	})
	if err != nil {
		return nil, err
	}

	result, err := m.relay.Submit(ctx, m.cfg.Domain, variation, tx.Base64())
	if err != nil {
		return nil, err
	}
	if !result.Succeeded() {
		failure := ClassifyFailure(result.Err)
		logger.Warn("intent execution failed",
			zap.String("variation", variation),
			zap.String("signature", result.Signature),
			zap.Int("failure_kind", int(failure)))
		return &TransferResult{Signature: result.Signature, Err: result.Err, Failure: failure}, nil
	}
	return &TransferResult{Signature: result.Signature}, nil
}
