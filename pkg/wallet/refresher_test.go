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

func TestGasPriceRefresher(t *testing.T) {
	fallback := big.NewInt(10000100000)

	t.Run("Refresh stores the active chain price", func(t *testing.T) {
		w := wallettest.NewWallet(7001, common.Address{}, big.NewInt(0))
		w.GasPrice = big.NewInt(99)
		cache := wallet.NewGasPriceCache(time.Minute, fallback, &logger.EmptyLogger{})
		r := wallet.NewGasPriceRefresher(cache, w, time.Minute, &logger.EmptyLogger{})

		require.NoError(t, r.Refresh(context.Background()))
		price, found := cache.Get(7001)
		require.True(t, found)
		assert.Equal(t, int64(99), price.Int64())
	})

	t.Run("Refresh errors leave the cache empty", func(t *testing.T) {
		testCases := []struct {
			name  string
			setup func(w *wallettest.Wallet)
		}{
			{"provider error", func(w *wallettest.Wallet) { w.GasPriceErr = errors.New("rpc down") }},
			{"zero price", func(w *wallettest.Wallet) { w.GasPrice = big.NewInt(0) }},
			{"no active chain", func(w *wallettest.Wallet) { w.Chain = 0 }},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				w := wallettest.NewWallet(7001, common.Address{}, big.NewInt(0))
				tc.setup(w)
				cache := wallet.NewGasPriceCache(time.Minute, fallback, &logger.EmptyLogger{})
				r := wallet.NewGasPriceRefresher(cache, w, time.Minute, &logger.EmptyLogger{})

				assert.Error(t, r.Refresh(context.Background()))
				_, found := cache.Get(w.Chain)
				assert.False(t, found)
			})
		}
	})

	t.Run("Start and Stop", func(t *testing.T) {
		w := wallettest.NewWallet(97, common.Address{}, big.NewInt(0))
		w.GasPrice = big.NewInt(5)
		cache := wallet.NewGasPriceCache(time.Minute, fallback, &logger.EmptyLogger{})
		r := wallet.NewGasPriceRefresher(cache, w, 10*time.Millisecond, &logger.EmptyLogger{})

		r.Start(context.Background())
		assert.True(t, r.IsRunning())
		assert.Eventually(t, func() bool {
			_, found := cache.Get(97)
			return found
		}, time.Second, 5*time.Millisecond)

		r.Stop()
		assert.False(t, r.IsRunning())
		r.Stop()
	})

	t.Run("Zero interval never starts", func(t *testing.T) {
		cache := wallet.NewGasPriceCache(time.Minute, fallback, &logger.EmptyLogger{})
		r := wallet.NewGasPriceRefresher(cache, wallettest.NewWallet(7001, common.Address{}, big.NewInt(0)), 0, &logger.EmptyLogger{})
		r.Start(context.Background())
		assert.False(t, r.IsRunning())
	})
}
