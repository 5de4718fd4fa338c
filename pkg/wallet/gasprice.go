package wallet

import (
	"context"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/zetaflow/intentd/pkg/logger"
	"github.com/zetaflow/intentd/pkg/metrics"
)

// GasPriceCache keeps the last suggested gas price per chain to avoid a provider round trip per step
type GasPriceCache struct {
	mu       sync.RWMutex
	cache    map[int]*cachedGasPrice
	cacheTTL time.Duration
	fallback *big.Int
	now      func() time.Time
	logger   logger.Logger
}

type cachedGasPrice struct {
	price     *big.Int
	timestamp time.Time
}

// NewGasPriceCache creates a cache; fallback is returned when the provider cannot supply a price
func NewGasPriceCache(cacheTTL time.Duration, fallback *big.Int, log logger.Logger) *GasPriceCache {
	return &GasPriceCache{
		cache:    make(map[int]*cachedGasPrice),
		cacheTTL: cacheTTL,
		fallback: new(big.Int).Set(fallback),
		now:      time.Now,
		logger:   log,
	}
}

// Get returns a cached price if it is still valid
func (c *GasPriceCache) Get(chainID int) (*big.Int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, exists := c.cache[chainID]
	if !exists || c.now().Sub(cached.timestamp) > c.cacheTTL {
		return nil, false
	}
	return new(big.Int).Set(cached.price), true
}

// Set stores a price for chainID
func (c *GasPriceCache) Set(chainID int, price *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[chainID] = &cachedGasPrice{
		price:     new(big.Int).Set(price),
		timestamp: c.now(),
	}

	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(price), big.NewFloat(1e9)).Float64()
	metrics.GasPrice.WithLabelValues(strconv.Itoa(chainID)).Set(gwei)
}

// Clear removes all cached entries
func (c *GasPriceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[int]*cachedGasPrice)
}

// Price returns the gas price for the wallet's active chain.
// Provider errors and empty answers fall back to the configured price and are not cached.
func (c *GasPriceCache) Price(ctx context.Context, w Wallet) *big.Int {
	chainID, err := w.ActiveChain(ctx)
	if err == nil {
		if price, ok := c.Get(chainID); ok {
			return price
		}
	}

	price, err := w.SuggestGasPrice(ctx)
	if err != nil || price == nil || price.Sign() <= 0 {
		if err != nil {
			c.logger.ErrorWithChain(chainID, "Failed to get gas price, using fallback %s: %v", c.fallback, err)
		}
		return new(big.Int).Set(c.fallback)
	}

	c.Set(chainID, price)
	return price
}
