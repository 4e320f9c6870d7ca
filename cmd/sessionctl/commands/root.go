package commands

import (
	"github.com/spf13/cobra"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/config"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/logger"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/paymaster"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/session"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/store"
)

var (
	walletKeypairPath string

	cfg      *config.Config
	manager  *session.Manager
	sessions *store.Store
)

func Execute() error {
	root := &cobra.Command{
		Use:          "sessionctl",
		Short:        "Manage wallet sessions against a paymaster deployment",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			logger.InitLogger(cfg.Stage)

			reader := chain.NewRPCClient(cfg.RPCURL)
			relay := paymaster.NewClient(cfg.PaymasterURL)

			sessionCfg := session.Config{
				Domain:         cfg.Domain,
				ChainID:        cfg.ChainID,
				ManagerProgram: cfg.SessionManagerProgram,
				IntentProgram:  cfg.IntentProgram,
				LookupTable:    cfg.LookupTable,
			}
			if cfg.FeeMint != nil {
				sessionCfg.FeeMint = *cfg.FeeMint
			}
			manager = session.NewManager(sessionCfg, reader, relay)

			sessions, err = store.Open(cfg.StorePath, cfg.StoreSecret)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			_ = logger.Sync()
			return sessions.Close()
		},
	}

	root.PersistentFlags().StringVarP(&walletKeypairPath, "wallet-keypair", "k", "", "path to the wallet keypair file")

	root.AddCommand(establishCmd(), statusCmd(), renewCmd(), revokeCmd(), transferCmd())
	return root.Execute()
}
