package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zetaflow/intentd/pkg/amount"
	"github.com/zetaflow/intentd/pkg/config"
	"github.com/zetaflow/intentd/pkg/orchestrator"
	"github.com/zetaflow/intentd/pkg/service"
)

// runIntent executes intent and prints its outcome; the error is printed as part of the result
func runIntent(intent orchestrator.Intent) error {
	return withService(func(ctx context.Context, svc *service.Service) error {
		outcome, err := svc.Execute(ctx, intent)
		result := map[string]interface{}{"outcome": outcome}
		if err != nil {
			result["error"] = err.Error()
		}
		if perr := printJSON(result); perr != nil {
			return perr
		}
		return err
	})
}

func newTransferCmd() *cobra.Command {
	var intent orchestrator.Intent
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer ZETA or WZETA on ZetaChain",
		RunE: func(cmd *cobra.Command, args []string) error {
			intent.Action = orchestrator.ActionTransfer
			return runIntent(intent)
		},
	}
	cmd.Flags().StringVar(&intent.Amount, "amount", "", "Amount in ZETA, decimal or exponential notation")
	cmd.Flags().StringVar(&intent.Recipient, "to", "", "Recipient address (defaults to the wallet itself)")
	cmd.Flags().StringVar(&intent.FromToken, "token", "ZETA", "Token to send: ZETA or WZETA")
	cmd.Flags().StringVar(&intent.FromChain, "from", config.OriginChain, "Source chain")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newXferCmd() *cobra.Command {
	var intent orchestrator.Intent
	cmd := &cobra.Command{
		Use:     "xfer",
		Aliases: []string{"cross-chain-transfer"},
		Short:   "Send ZETA from ZetaChain to a connected chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			intent.Action = orchestrator.ActionCrossChainTransfer
			return runIntent(intent)
		},
	}
	cmd.Flags().StringVar(&intent.Amount, "amount", "", "Amount in ZETA")
	cmd.Flags().StringVar(&intent.Recipient, "to", "", "Recipient on the destination chain (defaults to the wallet itself)")
	cmd.Flags().StringVar(&intent.ToChain, "dest", config.BSCChain, "Destination chain")
	cmd.Flags().StringVar(&intent.FromChain, "from", config.OriginChain, "Source chain")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newStakeCmd(action, short string) *cobra.Command {
	var intent orchestrator.Intent
	cmd := &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			intent.Action = orchestrator.Action(action)
			return runIntent(intent)
		},
	}
	cmd.Flags().StringVar(&intent.FileID, "file", "", "File identifier the stake is attached to")
	cmd.Flags().StringVar(&intent.Amount, "amount", "", "Amount in ZETA")
	cmd.Flags().StringVar(&intent.FromToken, "token", "WZETA", "Staked asset")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newClaimCmd() *cobra.Command {
	var intent orchestrator.Intent
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim staking rewards of a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			intent.Action = orchestrator.ActionClaim
			return runIntent(intent)
		},
	}
	cmd.Flags().StringVar(&intent.FileID, "file", "", "File identifier")
	cmd.Flags().StringVar(&intent.FromToken, "token", "WZETA", "Staked asset")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newStakesCmd() *cobra.Command {
	var fileID string
	cmd := &cobra.Command{
		Use:   "stakes",
		Short: "Show the on-chain stake of a file, or the recorded stakes of the wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				if fileID == "" {
					records, err := svc.StakeRecords(ctx)
					if err != nil {
						return err
					}
					return printJSON(records)
				}
				stake, err := svc.StakeOf(ctx, fileID)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{
					"file_id":    fileID,
					"content_id": service.ContentIDHex(fileID),
					"staked":     amount.FromWei(stake),
				})
			})
		},
	}
	cmd.Flags().StringVar(&fileID, "file", "", "File identifier")
	return cmd
}

func newContentIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "content-id <file-id>",
		Short: "Print the content identifier derived from a file id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), service.ContentIDHex(args[0]))
			return nil
		},
	}
}

func newBalanceCmd() *cobra.Command {
	var chain string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show native, WZETA and NFT balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				if _, err := svc.SwitchTo(ctx, chain); err != nil {
					return err
				}
				b, err := svc.Balances(ctx)
				if err != nil {
					return err
				}
				return printJSON(map[string]interface{}{
					"chain_id": b.ChainID,
					"account":  b.Account,
					"native":   amount.FromWei(b.Native),
					"wrapped":  amount.FromWei(b.Wrapped),
					"nft":      b.NFT.String(),
				})
			})
		},
	}
	cmd.Flags().StringVar(&chain, "chain", config.OriginChain, "Chain to read balances on")
	return cmd
}

func newTalkCmd() *cobra.Command {
	var chain string
	cmd := &cobra.Command{
		Use:   "talk <message>",
		Short: "Send a TalkToEarn message to ZetaChain through the gateway of a connected chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				target, err := svc.SwitchTo(ctx, chain)
				if err != nil {
					return err
				}
				result, err := svc.TalkToEarn(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(map[string]interface{}{
					"tx_hash":      result.Hash.Hex(),
					"confirmed":    result.Confirmed,
					"explorer_url": target.TxURL(result.Hash.Hex()),
				})
			})
		},
	}
	cmd.Flags().StringVar(&chain, "chain", config.BSCChain, "Source chain of the gateway call")
	return cmd
}

func newJournalCmd() *cobra.Command {
	var (
		state       string
		limit       int
		unconfirmed bool
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List executed intents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				store := svc.Journal()
				if unconfirmed {
					entries, err := store.Unconfirmed(ctx, limit)
					if err != nil {
						return err
					}
					return printJSON(entries)
				}
				entries, err := store.List(ctx, state, limit)
				if err != nil {
					return err
				}
				return printJSON(entries)
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "Only list intents in this state")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries")
	cmd.Flags().BoolVar(&unconfirmed, "unconfirmed", false, "Only list submitted intents whose confirmation is pending")
	return cmd
}
