package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/logger"
)

// Config holds everything needed to run a session client against one chain
// deployment.
type Config struct {
	RPCURL       string
	PaymasterURL string

	Domain  string
	ChainID string

	SessionManagerProgram chain.PublicKey
	IntentProgram         chain.PublicKey

	// LookupTable is optional. When set, assembled transactions use it to
	// compress account references.
	LookupTable *chain.PublicKey

	// FeeMint is optional. When set, metered paymaster variations charge
	// fees in this mint.
	FeeMint *chain.PublicKey

	SessionTTL time.Duration

	StorePath   string
	StoreSecret string

	Stage string
}

// Load reads configuration from the environment, consulting a .env file if
// one is present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug(".env file not found, using environment only")
	}

	cfg := &Config{
		RPCURL:       os.Getenv("FOGO_RPC_URL"),
		PaymasterURL: os.Getenv("FOGO_PAYMASTER_URL"),
		Domain:       os.Getenv("FOGO_DOMAIN"),
		ChainID:      os.Getenv("FOGO_CHAIN_ID"),
		StorePath:    os.Getenv("FOGO_STORE_PATH"),
		StoreSecret:  os.Getenv("FOGO_STORE_SECRET"),
		Stage:        os.Getenv("STAGE"),
		SessionTTL:   24 * time.Hour,
	}

	required := map[string]string{
		"FOGO_RPC_URL":       cfg.RPCURL,
		"FOGO_PAYMASTER_URL": cfg.PaymasterURL,
		"FOGO_DOMAIN":        cfg.Domain,
		"FOGO_CHAIN_ID":      cfg.ChainID,
	}
	for name, value := range required {
		if value == "" {
			return nil, errors.Errorf("%s environment variable is required", name)
		}
	}

	manager, err := chain.PublicKeyFromBase58(os.Getenv("FOGO_SESSION_MANAGER_PROGRAM"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid FOGO_SESSION_MANAGER_PROGRAM")
	}
	cfg.SessionManagerProgram = manager

	intent, err := chain.PublicKeyFromBase58(os.Getenv("FOGO_INTENT_PROGRAM"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid FOGO_INTENT_PROGRAM")
	}
	cfg.IntentProgram = intent

	if raw := os.Getenv("FOGO_LOOKUP_TABLE"); raw != "" {
		table, err := chain.PublicKeyFromBase58(raw)
		if err != nil {
			return nil, errors.Wrap(err, "invalid FOGO_LOOKUP_TABLE")
		}
		cfg.LookupTable = &table
	}

	if raw := os.Getenv("FOGO_FEE_MINT"); raw != "" {
		mint, err := chain.PublicKeyFromBase58(raw)
		if err != nil {
			return nil, errors.Wrap(err, "invalid FOGO_FEE_MINT")
		}
		cfg.FeeMint = &mint
	}

	if raw := os.Getenv("FOGO_SESSION_TTL_HOURS"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			return nil, errors.Errorf("invalid FOGO_SESSION_TTL_HOURS: %q", raw)
		}
		cfg.SessionTTL = time.Duration(hours) * time.Hour
	}

	if cfg.StorePath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.StorePath = home + "/.fogo-sessions/sessions.db"
		} else {
			cfg.StorePath = "sessions.db"
		}
	}

	return cfg, nil
}
