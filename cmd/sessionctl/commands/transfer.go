package commands

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fogo-foundation/fogo-sessions-sub001/internal/chain"
	"github.com/fogo-foundation/fogo-sessions-sub001/internal/session"
)

func transferCmd() *cobra.Command {
	var (
		mintRaw      string
		recipientRaw string
	)

	cmd := &cobra.Command{
		Use:   "transfer <amount>",
		Short: "Send tokens using the stored session, no wallet prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid amount %q", args[0])
			}
			mint, err := chain.PublicKeyFromBase58(mintRaw)
			if err != nil {
				return errors.Wrap(err, "invalid --mint")
			}
			recipient, err := chain.PublicKeyFromBase58(recipientRaw)
			if err != nil {
				return errors.Wrap(err, "invalid --recipient")
			}

			wallet, _, err := loadWallet()
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
			current, err := manager.Reestablish(cmd.Context(), wallet, storedKey)
			if err != nil {
				return err
			}
			if current == nil {
				return errors.New("stored session is no longer valid, run establish first")
			}

			result, err := manager.Transfer(cmd.Context(), session.TransferParams{
				Session:   current,
				Mint:      mint,
				Amount:    amount,
				Recipient: recipient,
			})
			if err != nil {
				return err
			}
			if !result.Succeeded() {
				switch result.Failure {
				case session.FailureExpired:
					return errors.New("session expired, run renew")
				case session.FailureLimitsExceeded:
					return errors.New("session limits exceeded, run renew with higher limits")
				default:
					return errors.Errorf("transfer failed on chain: %s", result.Err)
				}
			}

			fmt.Printf("Transfer sent: %s\n", result.Signature)
			return nil
		},
	}

	cmd.Flags().StringVar(&mintRaw, "mint", "", "token mint to send")
	cmd.Flags().StringVar(&recipientRaw, "recipient", "", "recipient wallet")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("recipient")
	return cmd
}
