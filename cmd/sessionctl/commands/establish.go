package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/session"
)

func establishCmd() *cobra.Command {
	var (
		unlimited bool
		limits    []string
		hours     int
		extra     string
	)

	cmd := &cobra.Command{
		Use:   "establish",
		Short: "Create a new session for the wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, sign, err := loadWallet()
			if err != nil {
				return err
			}
			if !unlimited && len(limits) == 0 {
				return errors.New("pass --unlimited or at least one --limit mint=amount")
			}

			parsed, err := parseLimits(limits)
			if err != nil {
				return err
			}

			result, err := manager.Establish(cmd.Context(), session.EstablishParams{
				Wallet:      wallet,
				SignMessage: sign,
				Expires:     time.Now().Add(time.Duration(hours) * time.Hour),
				Unlimited:   unlimited,
				Limits:      parsed,
				Extra:       extra,
			})
			if err != nil {
				return err
			}
			if result.Err != nil {
				return errors.Errorf("session transaction failed on chain: %s", result.Err)
			}

			if err := sessions.Save(cmd.Context(), wallet, result.Session.Key); err != nil {
				return errors.Wrap(err, "persist session key")
			}

			fmt.Printf("Session established: %s (expires %s)\n",
				result.Session.SessionPublicKey,
				result.Session.Info.Expiration.Format(time.RFC3339))
			fmt.Printf("Transaction: %s\n", result.Signature)
			return nil
		},
	}

	cmd.Flags().BoolVar(&unlimited, "unlimited", false, "authorize any amount of any token")
	cmd.Flags().StringArrayVar(&limits, "limit", nil, "token limit as mint=amount in base units (repeatable)")
	cmd.Flags().IntVar(&hours, "hours", 24, "session lifetime in hours")
	cmd.Flags().StringVar(&extra, "extra", "", "extra field to include in the delegation intent")
	return cmd
}

func parseLimits(raw []string) (session.TokenLimits, error) {
	out := make(session.TokenLimits, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid --limit %q, want mint=amount", entry)
		}
		mint, err := chain.PublicKeyFromBase58(parts[0])
		if err != nil {
			return nil, errors.Wrapf(err, "invalid mint in --limit %q", entry)
		}
		amount, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid amount in --limit %q", entry)
		}
		out = append(out, session.TokenLimit{Mint: mint, Amount: amount})
	}
	return out, nil
}
