package session_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/intent"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/keys"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/nonce"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/paymaster"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/session"
)

var testRecipient = chain.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")

func feeConfigBytes(mint chain.PublicKey, decimals uint8, symbol string) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x41, 0xc9, 0x2e, 0x77, 0x0b, 0x5a, 0xd6, 0x90})
	buf.Write(mint[:])
	buf.WriteByte(decimals)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(symbol)))
	buf.WriteString(symbol)
	_ = binary.Write(&buf, binary.LittleEndian, uint64(100)) // intrachain fee
	_ = binary.Write(&buf, binary.LittleEndian, uint64(400)) // bridge fee
	return buf.Bytes()
}

func nonceBytes(stored uint64) []byte {
	data := make([]byte, 16)
	copy(data, []byte{0x8e, 0x5d, 0x1a, 0x42, 0xf0, 0x09, 0xb7, 0x23})
	binary.LittleEndian.PutUint64(data[8:], stored)
	return data
}

// transferFixture wires a Manager whose reader knows the fee config for the
// deployment's fee mint, plus an established session.
type transferFixture struct {
	manager *session.Manager
	reader  *fakeReader
	relay   *fakeRelay
	session *session.Session
	cfg     session.Config
}

func newTransferFixture(t *testing.T) *transferFixture {
	t.Helper()
	cfg := testManagerConfig()

	reader := newFakeReader()
	feeConfigAddress, err := paymaster.NewFeeConfigCache(reader, cfg.IntentProgram).Address(cfg.FeeMint)
	require.NoError(t, err)
	reader.set(feeConfigAddress, feeConfigBytes(cfg.FeeMint, 6, "FOGO"))

	relay := &fakeRelay{
		sponsor:      testSponsorKey,
		fee:          250,
		submitResult: &paymaster.SubmitResult{Signature: "txsig"},
	}
	manager := session.NewManager(cfg, reader, relay)

	key, err := keys.NewSessionKey()
	require.NoError(t, err)
	return &transferFixture{
		manager: manager,
		reader:  reader,
		relay:   relay,
		cfg:     cfg,
		session: &session.Session{
			SessionPublicKey: key.PublicKey(),
			Key:              key,
			WalletPublicKey:  testWallet,
			Payer:            testSponsorKey,
			Info: session.SessionInfo{
				Wallet:     testWallet,
				Expiration: time.Now().Add(time.Hour),
			},
		},
	}
}

func (f *transferFixture) setStoredNonce(t *testing.T, intentType intent.Type, stored uint64) {
	t.Helper()
	address, err := nonce.NewTracker(f.reader, f.cfg.IntentProgram).Address(testWallet, intentType)
	require.NoError(t, err)
	f.reader.set(address, nonceBytes(stored))
}

func (f *transferFixture) lastSubmissionBytes(t *testing.T) []byte {
	t.Helper()
	require.NotEmpty(t, f.relay.submissions)
	wire, err := base64.StdEncoding.DecodeString(f.relay.submissions[len(f.relay.submissions)-1])
	require.NoError(t, err)
	return wire
}

func TestTransfer_SignsTheNextNonce(t *testing.T) {
	fixture := newTransferFixture(t)
	fixture.setStoredNonce(t, intent.TypeTransfer, 41)

	result, err := fixture.manager.Transfer(context.Background(), session.TransferParams{
		Session:   fixture.session,
		Mint:      testTokenMint,
		Amount:    1_000_000,
		Recipient: testRecipient,
	})
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.Equal(t, "txsig", result.Signature)

	// The intent message travels inside the ed25519-verify instruction, so
	// the signed nonce is visible in the submitted wire bytes.
	wire := fixture.lastSubmissionBytes(t)
	assert.True(t, bytes.Contains(wire, []byte("nonce: 42\n")))
	assert.Equal(t, []string{session.VariationIntrachainTransfer}, fixture.relay.variations)
}

func TestTransfer_FirstNonceIsOne(t *testing.T) {
	fixture := newTransferFixture(t) // no nonce account on chain

	result, err := fixture.manager.Transfer(context.Background(), session.TransferParams{
		Session:   fixture.session,
		Mint:      testTokenMint,
		Amount:    1_000_000,
		Recipient: testRecipient,
	})
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	wire := fixture.lastSubmissionBytes(t)
	assert.True(t, bytes.Contains(wire, []byte("nonce: 1\n")))
}

func TestTransfer_FailureClassification(t *testing.T) {
	tests := []struct {
		name     string
		code     uint32
		expected session.FailureKind
	}{
		{name: "session expired", code: 6003, expected: session.FailureExpired},
		{name: "limits exceeded", code: 6005, expected: session.FailureLimitsExceeded},
		{name: "unrelated program error", code: 6000, expected: session.FailureOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := newTransferFixture(t)
			fixture.relay.submitResult = &paymaster.SubmitResult{
				Signature: "txsig",
				Err:       instructionError(1, tt.code),
			}

			result, err := fixture.manager.Transfer(context.Background(), session.TransferParams{
				Session:   fixture.session,
				Mint:      testTokenMint,
				Amount:    1_000_000,
				Recipient: testRecipient,
			})
			require.NoError(t, err)
			assert.False(t, result.Succeeded())
			assert.Equal(t, tt.expected, result.Failure)
		})
	}
}

func TestTransfer_Validation(t *testing.T) {
	fixture := newTransferFixture(t)

	_, err := fixture.manager.Transfer(context.Background(), session.TransferParams{
		Mint: testTokenMint, Amount: 1, Recipient: testRecipient,
	})
	assert.Error(t, err, "nil session")

	_, err = fixture.manager.Transfer(context.Background(), session.TransferParams{
		Session: fixture.session, Mint: testTokenMint, Amount: 0, Recipient: testRecipient,
	})
	assert.Error(t, err, "zero amount")

	noFeeMintCfg := testManagerConfig()
	noFeeMintCfg.FeeMint = chain.PublicKey{}
	noFeeMint := session.NewManager(noFeeMintCfg, fixture.reader, fixture.relay)
	_, err = noFeeMint.Transfer(context.Background(), session.TransferParams{
		Session: fixture.session, Mint: testTokenMint, Amount: 1, Recipient: testRecipient,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fee mint not configured")

	_, err = noFeeMint.Bridge(context.Background(), session.BridgeParams{
		Session: fixture.session, Mint: testTokenMint, Amount: 1, ToChain: "ethereum", Recipient: "0xaa",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fee mint not configured")
}

func TestBridge(t *testing.T) {
	fixture := newTransferFixture(t)
	fixture.setStoredNonce(t, intent.TypeBridge, 7)

	result, err := fixture.manager.Bridge(context.Background(), session.BridgeParams{
		Session:   fixture.session,
		Mint:      testTokenMint,
		Amount:    3_000_000,
		ToChain:   "ethereum",
		Recipient: "0x00000000000000000000000000000000000000aa",
	})
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	wire := fixture.lastSubmissionBytes(t)
	assert.True(t, bytes.Contains(wire, []byte("nonce: 8\n")))
	assert.True(t, bytes.Contains(wire, []byte("to_chain: ethereum\n")))
	assert.Equal(t, []string{session.VariationBridgeTransfer}, fixture.relay.variations)
}
