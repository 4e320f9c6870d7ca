package chain

import (
	"encoding/base64"
	"fmt"
)

// Signer is a locally-held key that can sign a transaction message.
// The sponsor's slot is intentionally never covered by a local Signer.
type Signer interface {
	PublicKey() PublicKey
	Sign(message []byte) ([]byte, error)
}

// AddressLookupTable is an on-chain table of addresses referenced by index
// to shrink transaction size.
type AddressLookupTable struct {
	Address   PublicKey
	Addresses []PublicKey
}

// lookupTableMetaSize is the serialized size of the lookup table state header
// that precedes the stored addresses.
const lookupTableMetaSize = 56

// ParseLookupTable decodes a lookup table account's address list.
func ParseLookupTable(address PublicKey, data []byte) (*AddressLookupTable, error) {
	if len(data) < lookupTableMetaSize {
		return nil, fmt.Errorf("lookup table account too short: %d bytes", len(data))
	}
	body := data[lookupTableMetaSize:]
	if len(body)%PublicKeyLength != 0 {
		return nil, fmt.Errorf("lookup table addresses not aligned: %d trailing bytes", len(body)%PublicKeyLength)
	}
	table := &AddressLookupTable{Address: address}
	for i := 0; i < len(body); i += PublicKeyLength {
		var pk PublicKey
		copy(pk[:], body[i:i+PublicKeyLength])
		table.Addresses = append(table.Addresses, pk)
	}
	return table, nil
}

func (t *AddressLookupTable) indexOf(key PublicKey) (uint8, bool) {
	for i, addr := range t.Addresses {
		if addr.Equals(key) {
			return uint8(i), true
		}
	}
	return 0, false
}

// CompiledInstruction references message accounts by index.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	AccountIndexes []uint8
	Data           []byte
}

// MessageAddressTableLookup lists table entries loaded by a v0 message.
type MessageAddressTableLookup struct {
	TableAccount    PublicKey
	WritableIndexes []uint8
	ReadonlyIndexes []uint8
}

// Transaction is a compiled transaction message plus its signature table.
// Signature slots for signers without locally held keys stay zeroed until an
// external party (the sponsor) fills them in.
type Transaction struct {
	header struct {
		numRequiredSignatures uint8
		numReadonlySigned     uint8
		numReadonlyUnsigned   uint8
	}
	staticKeys      []PublicKey
	recentBlockhash Hash
	instructions    []CompiledInstruction
	lookups         []MessageAddressTableLookup

	Signatures [][]byte
}

// TxOption customizes transaction compilation.
type TxOption func(*txConfig)

type txConfig struct {
	table *AddressLookupTable
}

// WithLookupTable compresses non-signer accounts found in table into
// index references, producing a v0 message.
func WithLookupTable(table *AddressLookupTable) TxOption {
	return func(c *txConfig) {
		c.table = table
	}
}

type accountEntry struct {
	key        PublicKey
	isSigner   bool
	isWritable bool
	isProgram  bool
}

// NewTransaction compiles instructions into a transaction message with payer
// as the first (fee-paying) signer.
func NewTransaction(instructions []Instruction, blockhash Hash, payer PublicKey, opts ...TxOption) (*Transaction, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("cannot compile a transaction with no instructions")
	}
	if payer.IsZero() {
		return nil, fmt.Errorf("transaction payer is required")
	}

	cfg := txConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	entries := []accountEntry{{key: payer, isSigner: true, isWritable: true}}
	upsert := func(e accountEntry) {
		for i := range entries {
			if entries[i].key.Equals(e.key) {
				entries[i].isSigner = entries[i].isSigner || e.isSigner
				entries[i].isWritable = entries[i].isWritable || e.isWritable
				entries[i].isProgram = entries[i].isProgram || e.isProgram
				return
			}
		}
		entries = append(entries, e)
	}

	for _, ix := range instructions {
		for _, meta := range ix.Accounts {
			upsert(accountEntry{key: meta.PublicKey, isSigner: meta.IsSigner, isWritable: meta.IsWritable})
		}
		// Program ids are always static: the runtime forbids loading them
		// through a lookup table.
		upsert(accountEntry{key: ix.ProgramID, isProgram: true})
	}

	// Stable grouping: payer, writable signers, readonly signers,
	// writable non-signers, readonly non-signers.
	var writableSigners, readonlySigners, writableOthers, readonlyOthers []accountEntry
	for _, e := range entries {
		switch {
		case e.isSigner && e.isWritable:
			writableSigners = append(writableSigners, e)
		case e.isSigner:
			readonlySigners = append(readonlySigners, e)
		case e.isWritable:
			writableOthers = append(writableOthers, e)
		default:
			readonlyOthers = append(readonlyOthers, e)
		}
	}

	tx := &Transaction{recentBlockhash: blockhash}
	var loadedWritable, loadedReadonly []PublicKey
	var lookup MessageAddressTableLookup

	takeStatic := func(group []accountEntry) []accountEntry {
		if cfg.table == nil {
			return group
		}
		kept := group[:0]
		for _, e := range group {
			idx, found := cfg.table.indexOf(e.key)
			if !found || e.isProgram {
				kept = append(kept, e)
				continue
			}
			if e.isWritable {
				lookup.WritableIndexes = append(lookup.WritableIndexes, idx)
				loadedWritable = append(loadedWritable, e.key)
			} else {
				lookup.ReadonlyIndexes = append(lookup.ReadonlyIndexes, idx)
				loadedReadonly = append(loadedReadonly, e.key)
			}
		}
		return kept
	}

	writableOthers = takeStatic(writableOthers)
	readonlyOthers = takeStatic(readonlyOthers)

	for _, e := range writableSigners {
		tx.staticKeys = append(tx.staticKeys, e.key)
	}
	for _, e := range readonlySigners {
		tx.staticKeys = append(tx.staticKeys, e.key)
	}
	for _, e := range writableOthers {
		tx.staticKeys = append(tx.staticKeys, e.key)
	}
	for _, e := range readonlyOthers {
		tx.staticKeys = append(tx.staticKeys, e.key)
	}

	tx.header.numRequiredSignatures = uint8(len(writableSigners) + len(readonlySigners))
	tx.header.numReadonlySigned = uint8(len(readonlySigners))
	tx.header.numReadonlyUnsigned = uint8(len(readonlyOthers))

	if cfg.table != nil && (len(lookup.WritableIndexes) > 0 || len(lookup.ReadonlyIndexes) > 0) {
		lookup.TableAccount = cfg.table.Address
		tx.lookups = []MessageAddressTableLookup{lookup}
	}

	// Indexable ordering: static keys, then loaded writable, then loaded
	// readonly.
	indexOf := func(key PublicKey) (uint8, error) {
		for i, k := range tx.staticKeys {
			if k.Equals(key) {
				return uint8(i), nil
			}
		}
		offset := len(tx.staticKeys)
		for i, k := range loadedWritable {
			if k.Equals(key) {
				return uint8(offset + i), nil
			}
		}
		offset += len(loadedWritable)
		for i, k := range loadedReadonly {
			if k.Equals(key) {
				return uint8(offset + i), nil
			}
		}
		return 0, fmt.Errorf("account %s missing from compiled message", key)
	}

	for _, ix := range instructions {
		programIdx, err := indexOf(ix.ProgramID)
		if err != nil {
			return nil, err
		}
		compiled := CompiledInstruction{ProgramIDIndex: programIdx, Data: ix.Data}
		for _, meta := range ix.Accounts {
			idx, err := indexOf(meta.PublicKey)
			if err != nil {
				return nil, err
			}
			compiled.AccountIndexes = append(compiled.AccountIndexes, idx)
		}
		tx.instructions = append(tx.instructions, compiled)
	}

	tx.Signatures = make([][]byte, tx.header.numRequiredSignatures)
	return tx, nil
}

// SignerKeys returns the accounts whose signatures the message requires,
// in signature-table order.
func (t *Transaction) SignerKeys() []PublicKey {
	return t.staticKeys[:t.header.numRequiredSignatures]
}

// NumLookups reports how many address table lookups the message carries.
func (t *Transaction) NumLookups() int {
	n := 0
	for _, l := range t.lookups {
		n += len(l.WritableIndexes) + len(l.ReadonlyIndexes)
	}
	return n
}

// StaticAccountKeys returns the statically listed message accounts.
func (t *Transaction) StaticAccountKeys() []PublicKey {
	return t.staticKeys
}

// MessageBytes serializes the transaction message, the exact bytes every
// signature must cover.
func (t *Transaction) MessageBytes() []byte {
	var buf []byte
	if len(t.lookups) > 0 {
		buf = append(buf, 0x80) // v0 message version prefix
	}
	buf = append(buf, t.header.numRequiredSignatures, t.header.numReadonlySigned, t.header.numReadonlyUnsigned)
	buf = appendShortvecLen(buf, len(t.staticKeys))
	for _, key := range t.staticKeys {
		buf = append(buf, key[:]...)
	}
	buf = append(buf, t.recentBlockhash[:]...)
	buf = appendShortvecLen(buf, len(t.instructions))
	for _, ix := range t.instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = appendShortvecLen(buf, len(ix.AccountIndexes))
		buf = append(buf, ix.AccountIndexes...)
		buf = appendShortvecLen(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}
	if len(t.lookups) > 0 {
		buf = appendShortvecLen(buf, len(t.lookups))
		for _, l := range t.lookups {
			buf = append(buf, l.TableAccount[:]...)
			buf = appendShortvecLen(buf, len(l.WritableIndexes))
			buf = append(buf, l.WritableIndexes...)
			buf = appendShortvecLen(buf, len(l.ReadonlyIndexes))
			buf = append(buf, l.ReadonlyIndexes...)
		}
	}
	return buf
}

// PartialSign signs the message with every provided signer whose key occupies
// a signature slot. A signer whose key is not in the signer table is skipped:
// callers may intentionally reuse only a subset of signers against an
// externally built transaction.
func (t *Transaction) PartialSign(signers ...Signer) error {
	message := t.MessageBytes()
	signerKeys := t.SignerKeys()
	for _, signer := range signers {
		slot := -1
		for i, key := range signerKeys {
			if key.Equals(signer.PublicKey()) {
				slot = i
				break
			}
		}
		if slot < 0 {
			continue
		}
		sig, err := signer.Sign(message)
		if err != nil {
			return fmt.Errorf("failed to sign transaction with %s: %w", signer.PublicKey(), err)
		}
		if len(sig) != 64 {
			return fmt.Errorf("unexpected signature length %d from %s", len(sig), signer.PublicKey())
		}
		t.Signatures[slot] = sig
	}
	return nil
}

// Serialize produces the wire form: the signature table followed by the
// message. Unsigned slots serialize as zeroed signatures.
func (t *Transaction) Serialize() []byte {
	var buf []byte
	buf = appendShortvecLen(buf, len(t.Signatures))
	for _, sig := range t.Signatures {
		if len(sig) == 64 {
			buf = append(buf, sig...)
		} else {
			buf = append(buf, make([]byte, 64)...)
		}
	}
	return append(buf, t.MessageBytes()...)
}

// Base64 returns the wire transaction encoded for the paymaster API.
func (t *Transaction) Base64() string {
	return base64.StdEncoding.EncodeToString(t.Serialize())
}
