package session

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
)

// Session-manager program instruction tags.
const (
	startSessionTag = 0
	revokeTag       = 1
)

// Intent program instruction tags.
const (
	intentTransferTag = 0
	intentBridgeTag   = 1
)

// createATAIdempotentTag is the associated-token program's CreateIdempotent
// instruction.
const createATAIdempotentTag = 1

// selfReferenceIndex marks ed25519 offsets that point into the verify
// instruction's own data.
const selfReferenceIndex = 0xffff

// buildEd25519VerifyInstruction builds the native signature-verification
// instruction the session-manager introspects through the instructions
// sysvar. Layout: count, padding, seven u16 offsets, then pubkey, signature
// and message packed back to back.
func buildEd25519VerifyInstruction(signer chain.PublicKey, signature, message []byte) (chain.Instruction, error) {
	if len(signature) != 64 {
		return chain.Instruction{}, fmt.Errorf("ed25519 signature must be 64 bytes, got %d", len(signature))
	}

	const headerSize = 2 + 7*2
	pubkeyOffset := headerSize
	signatureOffset := pubkeyOffset + 32
	messageOffset := signatureOffset + 64

	data := make([]byte, 0, messageOffset+len(message))
	data = append(data, 1, 0) // one signature, padding
	for _, v := range []uint16{
		uint16(signatureOffset), selfReferenceIndex,
		uint16(pubkeyOffset), selfReferenceIndex,
		uint16(messageOffset), uint16(len(message)), selfReferenceIndex,
	} {
		data = binary.LittleEndian.AppendUint16(data, v)
	}
	data = append(data, signer[:]...)
	data = append(data, signature...)
	data = append(data, message...)

	return chain.Instruction{ProgramID: chain.Ed25519ProgramID, Data: data}, nil
}

// buildStartSessionInstruction builds the instruction that creates or
// re-authorizes a session record. The signed intent message rides in the
// instruction data so the program can re-derive and compare it against the
// verified signature.
func buildStartSessionInstruction(managerProgram, sessionAddress, wallet, sessionKey chain.PublicKey, expires time.Time, intentMessage []byte, tokenAccounts []chain.PublicKey) chain.Instruction {
	data := []byte{startSessionTag}
	data = binary.LittleEndian.AppendUint64(data, uint64(expires.UTC().Unix()))
	data = binary.LittleEndian.AppendUint32(data, uint32(len(intentMessage)))
	data = append(data, intentMessage...)

	accounts := []chain.AccountMeta{
		chain.Meta(sessionAddress).Writable(),
		chain.Meta(wallet),
		chain.Meta(sessionKey).Signer(),
		chain.Meta(chain.SysvarInstructionsID),
		chain.Meta(chain.SystemProgramID),
	}
	for _, tokenAccount := range tokenAccounts {
		accounts = append(accounts, chain.Meta(tokenAccount))
	}

	return chain.Instruction{ProgramID: managerProgram, Accounts: accounts, Data: data}
}

// buildRevokeInstruction builds the instruction closing a session record.
func buildRevokeInstruction(managerProgram, sessionAddress, sessionKey, wallet chain.PublicKey) chain.Instruction {
	return chain.Instruction{
		ProgramID: managerProgram,
		Accounts: []chain.AccountMeta{
			chain.Meta(sessionAddress).Writable(),
			chain.Meta(sessionKey).Signer(),
			chain.Meta(wallet).Writable(),
		},
		Data: []byte{revokeTag},
	}
}

// buildCreateATAIdempotentInstruction builds the create-if-missing
// associated-token-account instruction, with the sponsor funding rent.
func buildCreateATAIdempotentInstruction(payer, owner, mint chain.PublicKey) (chain.Instruction, chain.PublicKey, error) {
	ata, err := chain.DeriveAssociatedTokenAddress(owner, mint)
	if err != nil {
		return chain.Instruction{}, chain.PublicKey{}, err
	}
	return chain.Instruction{
		ProgramID: chain.AssociatedTokenProgramID,
		Accounts: []chain.AccountMeta{
			chain.Meta(payer).Signer().Writable(),
			chain.Meta(ata).Writable(),
			chain.Meta(owner),
			chain.Meta(mint),
			chain.Meta(chain.SystemProgramID),
			chain.Meta(chain.TokenProgramID),
		},
		Data: []byte{createATAIdempotentTag},
	}, ata, nil
}

// buildIntentExecuteInstruction builds the intent program instruction
// executing a verified transfer or bridge intent. The nonce account advances
// as part of execution, which is what makes stale intents unreplayable.
func buildIntentExecuteInstruction(intentProgram chain.PublicKey, tag byte, nonceAccount, sessionAddress, sessionKey, source, destination chain.PublicKey, intentMessage []byte) chain.Instruction {
	data := []byte{tag}
	data = binary.LittleEndian.AppendUint32(data, uint32(len(intentMessage)))
	data = append(data, intentMessage...)

	return chain.Instruction{
		ProgramID: intentProgram,
		Accounts: []chain.AccountMeta{
			chain.Meta(nonceAccount).Writable(),
			chain.Meta(sessionAddress),
			chain.Meta(sessionKey).Signer(),
			chain.Meta(source).Writable(),
			chain.Meta(destination).Writable(),
			chain.Meta(chain.TokenProgramID),
			chain.Meta(chain.SysvarInstructionsID),
			chain.Meta(chain.SystemProgramID),
		},
		Data: data,
	}
}
