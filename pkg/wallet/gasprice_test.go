package wallet_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zetaflow/intentd/pkg/logger"
	"github.com/zetaflow/intentd/pkg/wallet"
	"github.com/zetaflow/intentd/pkg/wallet/wallettest"
)

func TestGasPriceCache(t *testing.T) {
	fallback := big.NewInt(10000100000)

	t.Run("Set and Get", func(t *testing.T) {
		cache := wallet.NewGasPriceCache(time.Second, fallback, &logger.EmptyLogger{})
		cache.Set(7001, big.NewInt(42))

		price, found := cache.Get(7001)
		require.True(t, found)
		assert.Equal(t, int64(42), price.Int64())

		_, found = cache.Get(97)
		assert.False(t, found)
	})

	t.Run("TTL expiration", func(t *testing.T) {
		cache := wallet.NewGasPriceCache(10*time.Millisecond, fallback, &logger.EmptyLogger{})
		cache.Set(7001, big.NewInt(42))

		_, found := cache.Get(7001)
		assert.True(t, found)

		time.Sleep(20 * time.Millisecond)

		_, found = cache.Get(7001)
		assert.False(t, found)
	})

	t.Run("Clear", func(t *testing.T) {
		cache := wallet.NewGasPriceCache(time.Second, fallback, &logger.EmptyLogger{})
		cache.Set(7001, big.NewInt(1))
		cache.Set(97, big.NewInt(2))
		cache.Clear()

		_, found := cache.Get(7001)
		assert.False(t, found)
		_, found = cache.Get(97)
		assert.False(t, found)
	})

	t.Run("Price caches provider answer", func(t *testing.T) {
		w := wallettest.NewWallet(7001, common.Address{}, big.NewInt(0))
		w.GasPrice = big.NewInt(7)
		cache := wallet.NewGasPriceCache(time.Minute, fallback, &logger.EmptyLogger{})

		assert.Equal(t, int64(7), cache.Price(context.Background(), w).Int64())

		w.GasPrice = big.NewInt(99)
		assert.Equal(t, int64(7), cache.Price(context.Background(), w).Int64())
	})

	t.Run("Price falls back on provider error", func(t *testing.T) {
		w := wallettest.NewWallet(7001, common.Address{}, big.NewInt(0))
		w.GasPriceErr = errors.New("method not found")
		cache := wallet.NewGasPriceCache(time.Minute, fallback, &logger.EmptyLogger{})

		assert.Equal(t, fallback, cache.Price(context.Background(), w))

		_, found := cache.Get(7001)
		assert.False(t, found)
	})

	t.Run("Price falls back on nil answer", func(t *testing.T) {
		w := wallettest.NewWallet(7001, common.Address{}, big.NewInt(0))
		w.GasPrice = nil
		cache := wallet.NewGasPriceCache(time.Minute, fallback, &logger.EmptyLogger{})

		assert.Equal(t, fallback, cache.Price(context.Background(), w))
	})
}
