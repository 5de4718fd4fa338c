// Package chainguard makes sure the wallet is on the right chain before any chain-specific call.
package chainguard

import (
	"context"
	"time"

	"github.com/zetaflow/intentd/pkg/config"
	"github.com/zetaflow/intentd/pkg/execerr"
	"github.com/zetaflow/intentd/pkg/logger"
	"github.com/zetaflow/intentd/pkg/wallet"
)

// Guard switches the wallet to a target chain and waits for the switch to become visible
type Guard struct {
	wallet wallet.Wallet
	settle time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
	logger logger.Logger
}

// New creates a guard; settle is the fixed wait after a switch request
func New(w wallet.Wallet, settle time.Duration, log logger.Logger) *Guard {
	return &Guard{
		wallet: w,
		settle: settle,
		sleep:  Sleep,
		logger: log,
	}
}

// WithSleep replaces the settle timer, used in tests
func (g *Guard) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Guard {
	g.sleep = sleep
	return g
}

// EnsureChain switches to target if it is not already active
func (g *Guard) EnsureChain(ctx context.Context, target config.ChainConfig) error {
	if g.wallet == nil {
		return execerr.New(execerr.KindWalletUnavailable, "no wallet connected")
	}

	active, err := g.wallet.ActiveChain(ctx)
	if err != nil {
		return execerr.Wrap(execerr.KindWalletUnavailable, err, "failed to read active chain")
	}
	if active == target.ChainID {
		return nil
	}

	g.logger.Info("Switching wallet from chain %d to %s (%d)", active, target.Name, target.ChainID)
	if err := g.wallet.SwitchChain(ctx, target.ChainID); err != nil {
		return execerr.Wrap(execerr.KindChainSwitchRejected, err, "switch to %s rejected", target.Name)
	}

	if err := g.sleep(ctx, g.settle); err != nil {
		return err
	}

	active, err = g.wallet.ActiveChain(ctx)
	if err != nil {
		return execerr.Wrap(execerr.KindWalletUnavailable, err, "failed to read active chain")
	}
	if active != target.ChainID {
		return execerr.New(execerr.KindChainSwitchRejected, "wallet still on chain %d after switching to %s", active, target.Name)
	}

	g.logger.DebugWithChain(target.ChainID, "Wallet now on %s", target.Name)
	return nil
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
