package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/session"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the wallet's stored session, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, _, err := loadWallet()
			if err != nil {
				return err
			}

			storedKey, found, err := sessions.Load(cmd.Context(), wallet)
			if err != nil {
				return err
			}
			if !found {
				fmt.Println("No stored session for this wallet.")
				return nil
			}

			restored, err := manager.Reestablish(cmd.Context(), wallet, storedKey)
			if err != nil {
				return err
			}
			if restored == nil {
				fmt.Println("Stored session is no longer valid (expired, revoked or never created).")
				return nil
			}

			fmt.Printf("Session: %s\n", restored.SessionPublicKey)
			fmt.Printf("Wallet:  %s\n", restored.WalletPublicKey)
			fmt.Printf("Expires: %s\n", restored.Info.Expiration.Format(time.RFC3339))
			switch {
			case restored.Info.AuthorizedTokens.Kind == session.AuthorizedAll:
				fmt.Println("Tokens:  unlimited")
			case len(restored.Info.AuthorizedTokens.Mints) == 0:
				fmt.Println("Tokens:  none")
			default:
				fmt.Println("Tokens:")
				for _, mint := range restored.Info.AuthorizedTokens.Mints {
					fmt.Printf("  - %s\n", mint)
				}
			}
			return nil
		},
	}
}
