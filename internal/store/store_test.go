package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/keys"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/logger"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/store"
)

func init() {
	logger.InitLogger("test")
}

var (
	walletOne = chain.MustPublicKeyFromBase58("Vote111111111111111111111111111111111111111")
	walletTwo = chain.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")
)

func openStore(t *testing.T, path, secret string) *store.Store {
	t.Helper()
	s, err := store.Open(path, secret)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "sessions.db"), "secret")

	key, err := keys.NewSessionKey()
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, walletOne, key))

	loaded, ok, err := s.Load(ctx, walletOne)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, key.PublicKey(), loaded.PublicKey())

	// The restored key signs identically to the one sealed.
	message := []byte("probe")
	want, err := key.Sign(message)
	require.NoError(t, err)
	got, err := loaded.Sign(message)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, s.Clear(ctx, walletOne))
	_, ok, err = s.Load(ctx, walletOne)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_LoadMissingWallet(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "sessions.db"), "secret")

	loaded, ok, err := s.Load(context.Background(), walletOne)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, loaded)

	// Clearing a wallet that was never saved is fine.
	assert.NoError(t, s.Clear(context.Background(), walletOne))
}

func TestStore_SaveReplacesPreviousKey(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "sessions.db"), "secret")

	first, err := keys.NewSessionKey()
	require.NoError(t, err)
	second, err := keys.NewSessionKey()
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, walletOne, first))
	require.NoError(t, s.Save(ctx, walletOne, second))

	loaded, ok, err := s.Load(ctx, walletOne)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.PublicKey(), loaded.PublicKey())
}

func TestStore_WalletsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "sessions.db"), "secret")

	keyOne, err := keys.NewSessionKey()
	require.NoError(t, err)
	keyTwo, err := keys.NewSessionKey()
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, walletOne, keyOne))
	require.NoError(t, s.Save(ctx, walletTwo, keyTwo))
	require.NoError(t, s.Clear(ctx, walletOne))

	loaded, ok, err := s.Load(ctx, walletTwo)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, keyTwo.PublicKey(), loaded.PublicKey())
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	key, err := keys.NewSessionKey()
	require.NoError(t, err)

	s, err := store.Open(path, "secret")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, walletOne, key))
	require.NoError(t, s.Close())

	// The salt is persisted, so the same secret derives the same seal key.
	reopened := openStore(t, path, "secret")
	loaded, ok, err := reopened.Load(ctx, walletOne)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, key.PublicKey(), loaded.PublicKey())
}

func TestStore_WrongSecretCannotUnseal(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	key, err := keys.NewSessionKey()
	require.NoError(t, err)

	s, err := store.Open(path, "secret")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, walletOne, key))
	require.NoError(t, s.Close())

	other := openStore(t, path, "a different secret")
	_, _, err = other.Load(ctx, walletOne)
	assert.Error(t, err)
}
