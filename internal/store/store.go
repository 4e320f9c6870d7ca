package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	_ "modernc.org/sqlite"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/keys"
)

// Store is a local SQLite-backed persistence layer for sealed session keys.
//
// Notes:
//   - One row per wallet. Saving for a wallet replaces its previous session.
//   - Session seeds are sealed with a key derived from the configured secret
//     via argon2id; the salt is persisted alongside the data so the same
//     secret unseals across restarts.
//   - WAL is enabled to support concurrent reads while writing.
type Store struct {
	db      *sql.DB
	sealKey []byte
}

const saltBytes = 16

// Open opens (or creates) the store at path and derives the seal key from
// secret. The secret must be non-empty; losing it makes stored sessions
// unrecoverable, which only costs the user a re-establishment prompt.
func Open(path string, secret string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("missing db path")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("missing store secret")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	salt, err := loadOrCreateSalt(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	sealKey := argon2.IDKey([]byte(secret), salt, 1, 64*1024, 4, keys.SealKeyBytes)
	return &Store{db: db, sealKey: sealKey}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save seals the session key's seed and upserts it for the wallet.
func (s *Store) Save(ctx context.Context, wallet chain.PublicKey, key *keys.SessionKey) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if wallet.IsZero() {
		return errors.New("missing wallet")
	}
	if key == nil {
		return errors.New("missing session key")
	}

	box, err := key.SealSeed(s.sealKey)
	if err != nil {
		return fmt.Errorf("seal session seed: %w", err)
	}

	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO sessions(wallet, sealed_seed, updated_at_unix_ms)
VALUES(?, ?, ?)
ON CONFLICT(wallet) DO UPDATE SET sealed_seed = excluded.sealed_seed, updated_at_unix_ms = excluded.updated_at_unix_ms
`, wallet.String(), box, now)
	return err
}

// Load unseals the stored session key for the wallet. The second return is
// false when no session is stored.
func (s *Store) Load(ctx context.Context, wallet chain.PublicKey) (*keys.SessionKey, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if wallet.IsZero() {
		return nil, false, errors.New("missing wallet")
	}

	var box []byte
	err := s.db.QueryRowContext(ctx, `
SELECT sealed_seed
FROM sessions
WHERE wallet = ?
`, wallet.String()).Scan(&box)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	key, err := keys.UnsealSessionKey(s.sealKey, box)
	if err != nil {
		return nil, false, fmt.Errorf("unseal session seed: %w", err)
	}
	return key, true, nil
}

// Clear removes the stored session for the wallet. Clearing a wallet with no
// stored session is not an error.
func (s *Store) Clear(ctx context.Context, wallet chain.PublicKey) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if wallet.IsZero() {
		return errors.New("missing wallet")
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE wallet = ?`, wallet.String())
	return err
}

func loadOrCreateSalt(db *sql.DB) ([]byte, error) {
	var salt []byte
	err := db.QueryRow(`SELECT value FROM meta WHERE key = 'seal_salt'`).Scan(&salt)
	if err == nil {
		if len(salt) != saltBytes {
			return nil, fmt.Errorf("corrupt seal salt: %d bytes", len(salt))
		}
		return salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	salt = make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`INSERT INTO meta(key, value) VALUES('seal_salt', ?)`, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS meta (
  key TEXT PRIMARY KEY,
  value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
  wallet TEXT PRIMARY KEY,
  sealed_seed BLOB NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL
);
`); err != nil {
		return err
	}
	return nil
}
