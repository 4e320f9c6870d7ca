package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/keys"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/paymaster"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/session"
)

var testSponsorKey = chain.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")

// fakeReader serves canned account data: explicit entries first, then the
// fallback for addresses derived inside the code under test.
type fakeReader struct {
	mu       sync.Mutex
	accounts map[chain.PublicKey][]byte
	fallback func(chain.PublicKey) ([]byte, error)
}

func newFakeReader() *fakeReader {
	return &fakeReader{accounts: make(map[chain.PublicKey][]byte)}
}

func (r *fakeReader) set(address chain.PublicKey, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[address] = data
}

func (r *fakeReader) GetAccountInfo(_ context.Context, address chain.PublicKey) ([]byte, error) {
	r.mu.Lock()
	data, ok := r.accounts[address]
	r.mu.Unlock()
	if ok {
		return data, nil
	}
	if r.fallback != nil {
		return r.fallback(address)
	}
	return nil, chain.ErrAccountNotFound
}

func (r *fakeReader) GetLatestBlockhash(context.Context) (chain.Hash, error) {
	return chain.Hash{0xbb}, nil
}

// fakeRelay answers sponsor, fee and submit calls and records what was
// submitted.
type fakeRelay struct {
	sponsor chain.PublicKey
	fee     uint64

	submitResult *paymaster.SubmitResult
	submitErr    error

	mu          sync.Mutex
	submissions []string
	variations  []string
}

func (f *fakeRelay) ResolveSponsor(context.Context, string) (chain.PublicKey, error) {
	return f.sponsor, nil
}

func (f *fakeRelay) QuoteFee(context.Context, string, string, chain.PublicKey) (uint64, error) {
	return f.fee, nil
}

func (f *fakeRelay) Submit(_ context.Context, _ string, variation, wireTransaction string) (*paymaster.SubmitResult, error) {
	f.mu.Lock()
	f.submissions = append(f.submissions, wireTransaction)
	f.variations = append(f.variations, variation)
	f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitResult, nil
}

func instructionError(index int, custom uint32) *paymaster.InstructionError {
	detail, _ := json.Marshal(map[string]uint32{"Custom": custom})
	return &paymaster.InstructionError{InstructionIndex: index, Detail: detail}
}

func testManagerConfig() session.Config {
	return session.Config{
		Domain:         "app.example.com",
		ChainID:        "fogo-mainnet",
		ManagerProgram: testManagerProgram,
		IntentProgram:  chain.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111"),
		FeeMint:        testTokenMint,
	}
}

func futureSessionAccount() []byte {
	return newSessionAccount().
		wallet(testWallet).
		version(1, 0).
		expiration(time.Now().Add(12 * time.Hour).Truncate(time.Second)).
		allPrograms().
		allTokens().
		extra("").
		bytes()
}

// signRecorder captures every message a test wallet was asked to sign.
// Establish attempts may run on driver goroutines, so access is locked.
type signRecorder struct {
	mu       sync.Mutex
	messages [][]byte
}

func (r *signRecorder) record(message []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, append([]byte(nil), message...))
}

func (r *signRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *signRecorder) message(i int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.messages[i])
}

func walletSigner(t *testing.T) (session.SignMessageFunc, *signRecorder) {
	t.Helper()
	signingKey, err := keys.NewSessionKey()
	require.NoError(t, err)

	recorder := &signRecorder{}
	sign := func(ctx context.Context, message []byte) ([]byte, error) {
		recorder.record(message)
		return signingKey.Sign(message)
	}
	return sign, recorder
}

func TestEstablish_Unlimited(t *testing.T) {
	reader := newFakeReader()
	reader.fallback = func(chain.PublicKey) ([]byte, error) {
		return futureSessionAccount(), nil
	}
	relay := &fakeRelay{
		sponsor:      testSponsorKey,
		submitResult: &paymaster.SubmitResult{Signature: "sig123"},
	}
	manager := session.NewManager(testManagerConfig(), reader, relay)

	sign, seenMessages := walletSigner(t)
	result, err := manager.Establish(context.Background(), session.EstablishParams{
		Wallet:      testWallet,
		SignMessage: sign,
		Expires:     time.Now().Add(24 * time.Hour),
		Unlimited:   true,
	})
	require.NoError(t, err)
	require.Nil(t, result.Err)
	require.NotNil(t, result.Session)

	assert.Equal(t, "sig123", result.Signature)
	assert.Equal(t, testWallet, result.Session.WalletPublicKey)
	assert.Equal(t, testSponsorKey, result.Session.Payer)
	assert.NotNil(t, result.Session.Key)
	assert.Equal(t, result.Session.Key.PublicKey(), result.Session.SessionPublicKey)

	require.Equal(t, 1, seenMessages.count())
	assert.Contains(t, seenMessages.message(0), "tokens: may spend any amount of any token\n")
	require.Len(t, relay.submissions, 1)
}

func TestEstablish_SpecificLimitsRenderResolvedMetadata(t *testing.T) {
	reader := newFakeReader()
	reader.fallback = func(chain.PublicKey) ([]byte, error) {
		return newSessionAccount().
			wallet(testWallet).
			version(1, 0).
			expiration(time.Now().Add(12 * time.Hour).Truncate(time.Second)).
			allPrograms().
			specificTokens(testTokenMint).
			extra("").
			bytes(), nil
	}

	// The mint account carries decimals 6; no fee config exists for it, so
	// the raw mint address renders with the scaled amount.
	mintData := make([]byte, 82)
	mintData[44] = 6
	reader.set(testTokenMint, mintData)

	relay := &fakeRelay{
		sponsor:      testSponsorKey,
		submitResult: &paymaster.SubmitResult{Signature: "sig456"},
	}
	manager := session.NewManager(testManagerConfig(), reader, relay)

	sign, seenMessages := walletSigner(t)
	result, err := manager.Establish(context.Background(), session.EstablishParams{
		Wallet:      testWallet,
		SignMessage: sign,
		Expires:     time.Now().Add(24 * time.Hour),
		Limits: session.TokenLimits{
			{Mint: testTokenMint, Amount: 5_000_000},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Session)

	require.Equal(t, 1, seenMessages.count())
	assert.Contains(t, seenMessages.message(0), "tokens:\n-"+testTokenMint.String()+": 5\n")
	assert.Equal(t, session.AuthorizedSpecific, result.Session.Info.AuthorizedTokens.Kind)
}

func TestEstablish_ZeroLimitsFilteredBeforeSigning(t *testing.T) {
	reader := newFakeReader()
	reader.fallback = func(chain.PublicKey) ([]byte, error) {
		return futureSessionAccount(), nil
	}
	relay := &fakeRelay{
		sponsor:      testSponsorKey,
		submitResult: &paymaster.SubmitResult{Signature: "sig"},
	}
	manager := session.NewManager(testManagerConfig(), reader, relay)

	sign, seenMessages := walletSigner(t)
	_, err := manager.Establish(context.Background(), session.EstablishParams{
		Wallet:      testWallet,
		SignMessage: sign,
		Expires:     time.Now().Add(24 * time.Hour),
		Limits: session.TokenLimits{
			{Mint: testTokenMint, Amount: 0},
		},
	})
	require.NoError(t, err)

	require.Equal(t, 1, seenMessages.count())
	assert.Contains(t, seenMessages.message(0), "tokens: may not spend any tokens\n")
}

func TestEstablish_OnChainFailureIsAResult(t *testing.T) {
	reader := newFakeReader()
	relay := &fakeRelay{
		sponsor:      testSponsorKey,
		submitResult: &paymaster.SubmitResult{Signature: "sig", Err: instructionError(1, 6000)},
	}
	manager := session.NewManager(testManagerConfig(), reader, relay)

	sign, _ := walletSigner(t)
	result, err := manager.Establish(context.Background(), session.EstablishParams{
		Wallet:      testWallet,
		SignMessage: sign,
		Expires:     time.Now().Add(24 * time.Hour),
		Unlimited:   true,
	})
	require.NoError(t, err)
	assert.Nil(t, result.Session)
	require.NotNil(t, result.Err)
	code, ok := result.Err.CustomCode()
	assert.True(t, ok)
	assert.Equal(t, uint32(6000), code)
}

func TestEstablish_SuccessWithoutAccountFailsLoud(t *testing.T) {
	reader := newFakeReader() // every address reads as not found
	relay := &fakeRelay{
		sponsor:      testSponsorKey,
		submitResult: &paymaster.SubmitResult{Signature: "sig"},
	}
	manager := session.NewManager(testManagerConfig(), reader, relay)

	sign, _ := walletSigner(t)
	_, err := manager.Establish(context.Background(), session.EstablishParams{
		Wallet:      testWallet,
		SignMessage: sign,
		Expires:     time.Now().Add(24 * time.Hour),
		Unlimited:   true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrSessionNotCreated)
}

func TestEstablish_WalletRefusalIsSigningError(t *testing.T) {
	reader := newFakeReader()
	relay := &fakeRelay{sponsor: testSponsorKey}
	manager := session.NewManager(testManagerConfig(), reader, relay)

	refusal := errors.New("user rejected the request")
	_, err := manager.Establish(context.Background(), session.EstablishParams{
		Wallet: testWallet,
		SignMessage: func(context.Context, []byte) ([]byte, error) {
			return nil, refusal
		},
		Expires:   time.Now().Add(24 * time.Hour),
		Unlimited: true,
	})
	require.Error(t, err)

	var signingErr *session.SigningError
	require.ErrorAs(t, err, &signingErr)
	assert.ErrorIs(t, err, refusal)
	// No transaction reached the paymaster.
	assert.Empty(t, relay.submissions)
}

func TestEstablish_Validation(t *testing.T) {
	manager := session.NewManager(testManagerConfig(), newFakeReader(), &fakeRelay{sponsor: testSponsorKey})
	sign, _ := walletSigner(t)

	tests := []struct {
		name   string
		params session.EstablishParams
	}{
		{
			name:   "missing wallet",
			params: session.EstablishParams{SignMessage: sign, Expires: time.Now().Add(time.Hour), Unlimited: true},
		},
		{
			name:   "missing signer",
			params: session.EstablishParams{Wallet: testWallet, Expires: time.Now().Add(time.Hour), Unlimited: true},
		},
		{
			name:   "expiration in the past",
			params: session.EstablishParams{Wallet: testWallet, SignMessage: sign, Expires: time.Now().Add(-time.Hour), Unlimited: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.Establish(context.Background(), tt.params)
			assert.Error(t, err)
		})
	}
}

func TestReplace_ScopedToSessionWallet(t *testing.T) {
	manager := session.NewManager(testManagerConfig(), newFakeReader(), &fakeRelay{sponsor: testSponsorKey})

	key, err := keys.NewSessionKey()
	require.NoError(t, err)
	existing := &session.Session{
		SessionPublicKey: key.PublicKey(),
		Key:              key,
		WalletPublicKey:  testWallet,
	}

	sign, _ := walletSigner(t)
	_, err = manager.Replace(context.Background(), existing, session.EstablishParams{
		Wallet:      testTokenMint, // a different wallet
		SignMessage: sign,
		Expires:     time.Now().Add(time.Hour),
		Unlimited:   true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoped to the session's wallet")

	_, err = manager.Replace(context.Background(), nil, session.EstablishParams{})
	assert.Error(t, err)
}

func TestReplace_ReusesSessionKey(t *testing.T) {
	reader := newFakeReader()
	reader.fallback = func(chain.PublicKey) ([]byte, error) {
		return futureSessionAccount(), nil
	}
	relay := &fakeRelay{
		sponsor:      testSponsorKey,
		submitResult: &paymaster.SubmitResult{Signature: "sig"},
	}
	manager := session.NewManager(testManagerConfig(), reader, relay)

	key, err := keys.NewSessionKey()
	require.NoError(t, err)
	existing := &session.Session{
		SessionPublicKey: key.PublicKey(),
		Key:              key,
		WalletPublicKey:  testWallet,
	}

	sign, seenMessages := walletSigner(t)
	result, err := manager.Replace(context.Background(), existing, session.EstablishParams{
		SignMessage: sign,
		Expires:     time.Now().Add(time.Hour),
		Unlimited:   true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Session)

	assert.Equal(t, key.PublicKey(), result.Session.SessionPublicKey)
	require.Equal(t, 1, seenMessages.count())
	assert.Contains(t, seenMessages.message(0), "session_key: "+key.PublicKey().String()+"\n")
}

func TestReestablish(t *testing.T) {
	cfg := testManagerConfig()

	t.Run("missing record returns nil", func(t *testing.T) {
		manager := session.NewManager(cfg, newFakeReader(), &fakeRelay{sponsor: testSponsorKey})
		key, err := keys.NewSessionKey()
		require.NoError(t, err)

		restored, err := manager.Reestablish(context.Background(), testWallet, key)
		require.NoError(t, err)
		assert.Nil(t, restored)
	})

	t.Run("expired record returns nil", func(t *testing.T) {
		key, err := keys.NewSessionKey()
		require.NoError(t, err)
		address, err := session.DeriveSessionAddress(key.PublicKey(), cfg.ManagerProgram)
		require.NoError(t, err)

		reader := newFakeReader()
		reader.set(address, newSessionAccount().
			wallet(testWallet).
			version(1, 0).
			expiration(time.Now().Add(-time.Hour)).
			allPrograms().
			allTokens().
			extra("").
			bytes())

		manager := session.NewManager(cfg, reader, &fakeRelay{sponsor: testSponsorKey})
		restored, err := manager.Reestablish(context.Background(), testWallet, key)
		require.NoError(t, err)
		assert.Nil(t, restored)
	})

	t.Run("wallet mismatch is an error", func(t *testing.T) {
		key, err := keys.NewSessionKey()
		require.NoError(t, err)
		address, err := session.DeriveSessionAddress(key.PublicKey(), cfg.ManagerProgram)
		require.NoError(t, err)

		reader := newFakeReader()
		reader.set(address, futureSessionAccount())

		manager := session.NewManager(cfg, reader, &fakeRelay{sponsor: testSponsorKey})
		_, err = manager.Reestablish(context.Background(), testTokenMint, key)
		assert.Error(t, err)
	})

	t.Run("valid record restores the session", func(t *testing.T) {
		key, err := keys.NewSessionKey()
		require.NoError(t, err)
		address, err := session.DeriveSessionAddress(key.PublicKey(), cfg.ManagerProgram)
		require.NoError(t, err)

		reader := newFakeReader()
		reader.set(address, futureSessionAccount())

		manager := session.NewManager(cfg, reader, &fakeRelay{sponsor: testSponsorKey})
		restored, err := manager.Reestablish(context.Background(), testWallet, key)
		require.NoError(t, err)
		require.NotNil(t, restored)
		assert.Equal(t, key.PublicKey(), restored.SessionPublicKey)
		assert.Equal(t, testWallet, restored.WalletPublicKey)
		assert.Equal(t, testSponsorKey, restored.Payer)
	})
}

func TestRevoke(t *testing.T) {
	key, err := keys.NewSessionKey()
	require.NoError(t, err)
	current := &session.Session{
		SessionPublicKey: key.PublicKey(),
		Key:              key,
		WalletPublicKey:  testWallet,
	}

	t.Run("success", func(t *testing.T) {
		relay := &fakeRelay{
			sponsor:      testSponsorKey,
			submitResult: &paymaster.SubmitResult{Signature: "sig"},
		}
		manager := session.NewManager(testManagerConfig(), newFakeReader(), relay)
		require.NoError(t, manager.Revoke(context.Background(), current))
		assert.Len(t, relay.submissions, 1)
	})

	t.Run("on-chain failure surfaces", func(t *testing.T) {
		relay := &fakeRelay{
			sponsor:      testSponsorKey,
			submitResult: &paymaster.SubmitResult{Signature: "sig", Err: instructionError(0, 6004)},
		}
		manager := session.NewManager(testManagerConfig(), newFakeReader(), relay)
		err := manager.Revoke(context.Background(), current)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "revoke failed on chain")
	})

	t.Run("transport failure surfaces", func(t *testing.T) {
		relay := &fakeRelay{
			sponsor:   testSponsorKey,
			submitErr: fmt.Errorf("paymaster unreachable"),
		}
		manager := session.NewManager(testManagerConfig(), newFakeReader(), relay)
		assert.Error(t, manager.Revoke(context.Background(), current))
	})
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      *paymaster.InstructionError
		expected session.FailureKind
	}{
		{name: "expired", err: instructionError(0, 6003), expected: session.FailureExpired},
		{name: "limits exceeded", err: instructionError(0, 6005), expected: session.FailureLimitsExceeded},
		{name: "other custom code", err: instructionError(0, 6000), expected: session.FailureOther},
		{
			name:     "named error",
			err:      &paymaster.InstructionError{InstructionIndex: 0, Detail: json.RawMessage(`"PrivilegeEscalation"`)},
			expected: session.FailureOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, session.ClassifyFailure(tt.err))
		})
	}
}
