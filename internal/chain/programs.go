package chain

// Well-known program and sysvar addresses shared by SVM networks.
var (
	// SystemProgramID is the native system program.
	SystemProgramID = MustPublicKeyFromBase58("11111111111111111111111111111111")

	// TokenProgramID is the SPL token program.
	TokenProgramID = MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// AssociatedTokenProgramID derives canonical per-owner token accounts.
	AssociatedTokenProgramID = MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

	// Ed25519ProgramID is the native ed25519 signature verification program.
	Ed25519ProgramID = MustPublicKeyFromBase58("Ed25519SigVerify111111111111111111111111111")

	// SysvarInstructionsID exposes the current transaction's instructions
	// for cross-instruction introspection.
	SysvarInstructionsID = MustPublicKeyFromBase58("Sysvar1nstructions1111111111111111111111111")
)
