// Package txbuilder turns raw instructions plus context into a
// partially-signed transaction ready for the paymaster: sponsor as fee payer,
// optional metered-fee injection, optional lookup-table compression.
package txbuilder

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/logger"
)

// feeProgramID is the program fee-payment instructions target.
var feeProgramID = chain.TokenProgramID

// tokenTransferInstructionCode is the SPL token Transfer instruction tag.
const tokenTransferInstructionCode = 3

// SponsorResolver resolves the sponsor key assigned to a domain.
type SponsorResolver interface {
	ResolveSponsor(ctx context.Context, domain string) (chain.PublicKey, error)
}

// FeeQuoter quotes the metered fee for a transaction variation.
type FeeQuoter interface {
	QuoteFee(ctx context.Context, domain, variation string, feeMint chain.PublicKey) (uint64, error)
}

// Assembler builds sponsor-paid transactions.
type Assembler struct {
	reader   chain.Reader
	sponsors SponsorResolver
	fees     FeeQuoter
}

// NewAssembler creates an Assembler.
func NewAssembler(reader chain.Reader, sponsors SponsorResolver, fees FeeQuoter) *Assembler {
	return &Assembler{reader: reader, sponsors: sponsors, fees: fees}
}

// AssembleParams describe one transaction to build.
type AssembleParams struct {
	Domain       string
	Instructions []chain.Instruction

	// SessionKey signs locally and authorizes the fee payment. Optional.
	SessionKey chain.Signer
	// ExtraSigners are additional locally-held signers.
	ExtraSigners []chain.Signer

	// FeePayer is the wallet whose token account funds a metered fee.
	FeePayer chain.PublicKey

	// Sponsor overrides paymaster sponsor resolution when set.
	Sponsor *chain.PublicKey
	// LookupTable, when set, is resolved and used to compress the message.
	LookupTable *chain.PublicKey

	// Variation and FeeMint select a metered fee. The fee is defined as zero
	// unless both are present.
	Variation string
	FeeMint   chain.PublicKey
}

func (p AssembleParams) meteredFee() bool {
	return p.Variation != "" && !p.FeeMint.IsZero()
}

// Assemble fetches blockhash, sponsor, lookup table and fee concurrently,
// injects a fee-payment instruction when needed, compiles the message and
// partially signs it with every locally-held signer. The sponsor's signature
// slot stays empty for the paymaster to fill.
func (a *Assembler) Assemble(ctx context.Context, p AssembleParams) (*chain.Transaction, error) {
	if len(p.Instructions) == 0 {
		return nil, fmt.Errorf("no instructions to assemble")
	}

	var (
		blockhash chain.Hash
		sponsor   chain.PublicKey
		table     *chain.AddressLookupTable
		fee       uint64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		blockhash, err = a.reader.GetLatestBlockhash(gctx)
		if err != nil {
			return fmt.Errorf("failed to fetch latest blockhash: %w", err)
		}
		return nil
	})
	if p.Sponsor != nil {
		sponsor = *p.Sponsor
	} else {
		g.Go(func() error {
			var err error
			sponsor, err = a.sponsors.ResolveSponsor(gctx, p.Domain)
			if err != nil {
				return fmt.Errorf("failed to resolve sponsor: %w", err)
			}
			return nil
		})
	}
	if p.LookupTable != nil {
		tableAddress := *p.LookupTable
		g.Go(func() error {
			data, err := a.reader.GetAccountInfo(gctx, tableAddress)
			if err != nil {
				return fmt.Errorf("failed to fetch lookup table %s: %w", tableAddress, err)
			}
			table, err = chain.ParseLookupTable(tableAddress, data)
			if err != nil {
				return fmt.Errorf("lookup table %s: %w", tableAddress, err)
			}
			return nil
		})
	}
	if p.meteredFee() {
		g.Go(func() error {
			var err error
			fee, err = a.fees.QuoteFee(gctx, p.Domain, p.Variation, p.FeeMint)
			if err != nil {
				return fmt.Errorf("failed to quote fee: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	instructions := p.Instructions
	if fee > 0 && p.SessionKey != nil {
		feeIx, added, err := a.maybeFeeInstruction(instructions, p, sponsor, fee)
		if err != nil {
			return nil, err
		}
		if added {
			instructions = append(append([]chain.Instruction{}, instructions...), feeIx)
		}
	}

	var opts []chain.TxOption
	if table != nil {
		opts = append(opts, chain.WithLookupTable(table))
	}

	tx, err := chain.NewTransaction(instructions, blockhash, sponsor, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile transaction: %w", err)
	}

	signers := p.ExtraSigners
	if p.SessionKey != nil {
		signers = append([]chain.Signer{p.SessionKey}, signers...)
	}
	if err := tx.PartialSign(signers...); err != nil {
		return nil, err
	}

	logger.Debug("assembled transaction",
		zap.String("domain", p.Domain),
		zap.String("sponsor", sponsor.String()),
		zap.Int("instructions", len(instructions)),
		zap.Int("lookups", tx.NumLookups()),
		zap.Uint64("fee", fee))
	return tx, nil
}

// maybeFeeInstruction synthesizes the fee-payment instruction unless the
// supplied instructions already contain one targeting the fee program.
// Never double-charge.
func (a *Assembler) maybeFeeInstruction(instructions []chain.Instruction, p AssembleParams, sponsor chain.PublicKey, fee uint64) (chain.Instruction, bool, error) {
	for _, ix := range instructions {
		if ix.ProgramID.Equals(feeProgramID) {
			return chain.Instruction{}, false, nil
		}
	}
	if p.FeePayer.IsZero() {
		return chain.Instruction{}, false, fmt.Errorf("metered fee of %d requires a fee payer wallet", fee)
	}

	source, err := chain.DeriveAssociatedTokenAddress(p.FeePayer, p.FeeMint)
	if err != nil {
		return chain.Instruction{}, false, err
	}
	destination, err := chain.DeriveAssociatedTokenAddress(sponsor, p.FeeMint)
	if err != nil {
		return chain.Instruction{}, false, err
	}

	data := make([]byte, 9)
	data[0] = tokenTransferInstructionCode
	binary.LittleEndian.PutUint64(data[1:], fee)

	return chain.Instruction{
		ProgramID: feeProgramID,
		Accounts: []chain.AccountMeta{
			chain.Meta(source).Writable(),
			chain.Meta(destination).Writable(),
			chain.Meta(p.SessionKey.PublicKey()).Signer(),
		},
		Data: data,
	}, true, nil
}

// SignAdopted signs an externally built transaction with the given signers.
// Only signature slots actually present in the transaction's signer table are
// filled; a signer without a slot is a no-op.
func SignAdopted(tx *chain.Transaction, signers ...chain.Signer) error {
	return tx.PartialSign(signers...)
}
