package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/logger"
	"go.uber.org/zap"
)

func revokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke",
		Short: "Revoke the wallet's session and clear it locally",
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

			existing, err := manager.Reestablish(cmd.Context(), wallet, storedKey)
			if err == nil && existing != nil {
				// Revocation is best effort: the local record is cleared
				// either way, and the session still dies at its expiry.
				if err := manager.Revoke(cmd.Context(), existing); err != nil {
					logger.Warn("on-chain revoke failed", zap.Error(err))
				} else {
					fmt.Println("Session revoked on chain.")
				}
			}

			storedKey.Destroy()
			if err := sessions.Clear(cmd.Context(), wallet); err != nil {
				return err
			}
			fmt.Println("Local session cleared.")
			return nil
		},
	}
}
