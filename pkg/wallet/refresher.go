package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zetaflow/intentd/pkg/logger"
)

// GasPriceRefresher periodically refreshes the cached gas price of the wallet's active chain,
// so submissions rarely pay for a provider round trip.
type GasPriceRefresher struct {
	cache    *GasPriceCache
	wallet   Wallet
	interval time.Duration
	logger   logger.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewGasPriceRefresher creates a refresher; it does nothing until Start
func NewGasPriceRefresher(cache *GasPriceCache, w Wallet, interval time.Duration, log logger.Logger) *GasPriceRefresher {
	return &GasPriceRefresher{
		cache:    cache,
		wallet:   w,
		interval: interval,
		logger:   log,
	}
}

// Start begins the periodic refresh; it stops on Stop or when ctx is done
func (r *GasPriceRefresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running || r.interval <= 0 {
		return
	}
	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})
	r.running = true

	go r.run(ctx, r.stopChan, r.done)
}

// Stop halts the refresh and waits for the goroutine to exit
func (r *GasPriceRefresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopChan)
	done := r.done
	r.running = false
	r.mu.Unlock()

	<-done
}

// IsRunning returns whether the refresher goroutine is active
func (r *GasPriceRefresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *GasPriceRefresher) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	if err := r.Refresh(ctx); err != nil {
		r.logger.Debug("%v", err)
	}
	for {
		select {
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Debug("%v", err)
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Refresh fetches the gas price of the active chain and stores it in the cache.
// A wallet without an active chain is skipped.
func (r *GasPriceRefresher) Refresh(ctx context.Context) error {
	chainID, err := r.wallet.ActiveChain(ctx)
	if err != nil || chainID == 0 {
		return fmt.Errorf("gas price refresh skipped: no active chain")
	}
	price, err := r.wallet.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh gas price for chain %d: %w", chainID, err)
	}
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("chain %d suggested an empty gas price", chainID)
	}
	r.cache.Set(chainID, price)
	return nil
}
