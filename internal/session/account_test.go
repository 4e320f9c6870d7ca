package session_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/logger"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/session"
)

func init() {
	logger.InitLogger("test")
}

var (
	testWallet         = chain.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	testManagerProgram = chain.MustPublicKeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")
	testTokenMint      = chain.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

type sessionAccountBuilder struct {
	data []byte
}

func newSessionAccount() *sessionAccountBuilder {
	b := &sessionAccountBuilder{}
	b.data = append(b.data, 0xd2, 0x17, 0x46, 0xea, 0x3c, 0x88, 0x0f, 0x5b)
	return b
}

func (b *sessionAccountBuilder) wallet(pk chain.PublicKey) *sessionAccountBuilder {
	b.data = append(b.data, pk[:]...)
	return b
}

func (b *sessionAccountBuilder) version(major, minor uint16) *sessionAccountBuilder {
	b.data = binary.LittleEndian.AppendUint16(b.data, major)
	b.data = binary.LittleEndian.AppendUint16(b.data, minor)
	return b
}

func (b *sessionAccountBuilder) expiration(at time.Time) *sessionAccountBuilder {
	b.data = binary.LittleEndian.AppendUint64(b.data, uint64(at.Unix()))
	return b
}

func (b *sessionAccountBuilder) allPrograms() *sessionAccountBuilder {
	b.data = append(b.data, 0)
	return b
}

func (b *sessionAccountBuilder) specificPrograms(grants ...[2]chain.PublicKey) *sessionAccountBuilder {
	b.data = append(b.data, 1)
	b.data = binary.LittleEndian.AppendUint32(b.data, uint32(len(grants)))
	for _, g := range grants {
		b.data = append(b.data, g[0][:]...)
		b.data = append(b.data, g[1][:]...)
	}
	return b
}

func (b *sessionAccountBuilder) allTokens() *sessionAccountBuilder {
	b.data = append(b.data, 0)
	return b
}

func (b *sessionAccountBuilder) specificTokens(mints ...chain.PublicKey) *sessionAccountBuilder {
	b.data = append(b.data, 1)
	b.data = binary.LittleEndian.AppendUint32(b.data, uint32(len(mints)))
	for _, mint := range mints {
		b.data = append(b.data, mint[:]...)
	}
	return b
}

func (b *sessionAccountBuilder) extra(s string) *sessionAccountBuilder {
	b.data = binary.LittleEndian.AppendUint32(b.data, uint32(len(s)))
	b.data = append(b.data, s...)
	return b
}

func (b *sessionAccountBuilder) bytes() []byte {
	return b.data
}

func TestDecodeSessionAccount(t *testing.T) {
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("unlimited session", func(t *testing.T) {
		data := newSessionAccount().
			wallet(testWallet).
			version(1, 2).
			expiration(expires).
			allPrograms().
			allTokens().
			extra("").
			bytes()

		info, err := session.DecodeSessionAccount(data)
		require.NoError(t, err)
		assert.Equal(t, testWallet, info.Wallet)
		assert.Equal(t, uint16(1), info.Major)
		assert.Equal(t, uint16(2), info.Minor)
		assert.Equal(t, expires, info.Expiration)
		assert.Equal(t, session.AuthorizedAll, info.AuthorizedPrograms.Kind)
		assert.Equal(t, session.AuthorizedAll, info.AuthorizedTokens.Kind)
		assert.Empty(t, info.Extra)
	})

	t.Run("specific scopes and extra", func(t *testing.T) {
		signerPDA := chain.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")
		data := newSessionAccount().
			wallet(testWallet).
			version(1, 0).
			expiration(expires).
			specificPrograms([2]chain.PublicKey{testManagerProgram, signerPDA}).
			specificTokens(testTokenMint).
			extra("order=42").
			bytes()

		info, err := session.DecodeSessionAccount(data)
		require.NoError(t, err)
		assert.Equal(t, session.AuthorizedSpecific, info.AuthorizedPrograms.Kind)
		require.Len(t, info.AuthorizedPrograms.Grants, 1)
		assert.Equal(t, testManagerProgram, info.AuthorizedPrograms.Grants[0].ProgramID)
		assert.Equal(t, signerPDA, info.AuthorizedPrograms.Grants[0].SignerPDA)
		assert.Equal(t, session.AuthorizedSpecific, info.AuthorizedTokens.Kind)
		assert.Equal(t, []chain.PublicKey{testTokenMint}, info.AuthorizedTokens.Mints)
		assert.Equal(t, "order=42", info.Extra)
	})
}

func TestDecodeSessionAccount_NotSessionAccount(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "too short for discriminator", data: []byte{0xd2, 0x17}},
		{name: "foreign discriminator", data: make([]byte, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := session.DecodeSessionAccount(tt.data)
			assert.ErrorIs(t, err, session.ErrNotSessionAccount)
			assert.NotErrorIs(t, err, session.ErrMalformedSessionAccount)
		})
	}
}

func TestDecodeSessionAccount_Malformed(t *testing.T) {
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	valid := func() *sessionAccountBuilder {
		return newSessionAccount().
			wallet(testWallet).
			version(1, 0).
			expiration(expires).
			allPrograms().
			allTokens().
			extra("")
	}

	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "truncated wallet",
			data: newSessionAccount().wallet(testWallet).bytes()[:20],
		},
		{
			name: "truncated after version",
			data: newSessionAccount().wallet(testWallet).version(1, 0).bytes(),
		},
		{
			name: "unknown programs tag",
			data: append(newSessionAccount().wallet(testWallet).version(1, 0).expiration(expires).bytes(), 7),
		},
		{
			name: "extra length overruns data",
			data: func() []byte {
				data := newSessionAccount().wallet(testWallet).version(1, 0).expiration(expires).allPrograms().allTokens().bytes()
				return binary.LittleEndian.AppendUint32(data, 1000)
			}(),
		},
		{
			name: "trailing bytes",
			data: append(valid().bytes(), 0x00),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := session.DecodeSessionAccount(tt.data)
			assert.ErrorIs(t, err, session.ErrMalformedSessionAccount)
		})
	}
}

func TestDeriveSessionAddress_Deterministic(t *testing.T) {
	first, err := session.DeriveSessionAddress(testWallet, testManagerProgram)
	require.NoError(t, err)
	second, err := session.DeriveSessionAddress(testWallet, testManagerProgram)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := session.DeriveSessionAddress(testTokenMint, testManagerProgram)
	require.NoError(t, err)
	assert.False(t, first.Equals(other))
}
