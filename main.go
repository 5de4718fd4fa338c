package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zetaflow/intentd/pkg/config"
	"github.com/zetaflow/intentd/pkg/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "intentd",
		Short: "Execute ZetaChain wallet intents",
		Long: `intentd executes structured wallet intents (transfers, cross-chain transfers and
content staking) against ZetaChain and its connected chains.

Run "intentd serve" to consume intents from the notification bridge, or use the
one-shot commands to execute a single intent from the terminal.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newTransferCmd(),
		newXferCmd(),
		newStakeCmd("stake", "Wrap, approve and stake ZETA on a file"),
		newStakeCmd("unstake", "Withdraw a stake from a file"),
		newClaimCmd(),
		newStakesCmd(),
		newContentIDCmd(),
		newBalanceCmd(),
		newTalkCmd(),
		newJournalCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the intent service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			svc, err := service.NewService(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to create intent service: %w", err)
			}
			defer func() {
				if err := svc.Close(); err != nil {
					log.Printf("Error closing service: %v", err)
				}
			}()

			signalCh := make(chan os.Signal, 1)
			signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-signalCh
				log.Println("Received termination signal, shutting down gracefully...")
				cancel()
			}()

			log.Println("Starting the intent service...")
			return svc.Start(ctx)
		},
	}
}

// withService loads the configuration and runs fn against a connected service.
// SIGINT cancels the running operation.
func withService(fn func(ctx context.Context, svc *service.Service) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := service.NewService(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()
	return fn(ctx, svc)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
