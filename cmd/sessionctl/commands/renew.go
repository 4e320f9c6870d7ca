package commands

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/session"
)

func renewCmd() *cobra.Command {
	var (
		unlimited bool
		limits    []string
		hours     int
	)

	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Replace the current session with a fresh expiry and scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, sign, err := loadWallet()
			if err != nil {
				return err
			}

			storedKey, found, err := sessions.Load(cmd.Context(), wallet)
			if err != nil {
				return err
			}
			if !found {
				return errors.New("no stored session for this wallet, run establish first")
			}
			existing, err := manager.Reestablish(cmd.Context(), wallet, storedKey)
			if err != nil {
				return err
			}
			if existing == nil {
				return errors.New("stored session is no longer on chain, run establish instead")
			}

			parsed, err := parseLimits(limits)
			if err != nil {
				return err
			}
			if !unlimited && len(parsed) == 0 {
				// Keep the previous scope when none is given.
				unlimited = existing.Info.AuthorizedTokens.Kind == session.AuthorizedAll
			}

			result, err := manager.Replace(cmd.Context(), existing, session.EstablishParams{
				SignMessage: sign,
				Expires:     time.Now().Add(time.Duration(hours) * time.Hour),
				Unlimited:   unlimited,
				Limits:      parsed,
			})
			if err != nil {
				return err
			}
			if result.Err != nil {
				return errors.Errorf("renewal transaction failed on chain: %s", result.Err)
			}

			if err := sessions.Save(cmd.Context(), wallet, result.Session.Key); err != nil {
				return errors.Wrap(err, "persist session key")
			}

			fmt.Printf("Session renewed: %s (expires %s)\n",
				result.Session.SessionPublicKey,
				result.Session.Info.Expiration.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().BoolVar(&unlimited, "unlimited", false, "authorize any amount of any token")
	cmd.Flags().StringArrayVar(&limits, "limit", nil, "token limit as mint=amount in base units (repeatable)")
	cmd.Flags().IntVar(&hours, "hours", 24, "session lifetime in hours")
	return cmd
}
