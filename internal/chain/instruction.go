package chain

// AccountMeta describes how an instruction touches one account.
type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Meta returns a readonly non-signer AccountMeta for key.
func Meta(key PublicKey) AccountMeta {
	return AccountMeta{PublicKey: key}
}

// Signer marks the meta as a required signer.
func (m AccountMeta) Signer() AccountMeta {
	m.IsSigner = true
	return m
}

// Writable marks the meta as writable.
func (m AccountMeta) Writable() AccountMeta {
	m.IsWritable = true
	return m
}

// Instruction is a single program invocation: the program to call, the
// accounts it may read or write, and its opaque input data.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}
