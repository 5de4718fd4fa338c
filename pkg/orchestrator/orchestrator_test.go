package orchestrator

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zetaflow/intentd/pkg/amount"
	"github.com/zetaflow/intentd/pkg/chainguard"
	"github.com/zetaflow/intentd/pkg/config"
	"github.com/zetaflow/intentd/pkg/contracts"
	"github.com/zetaflow/intentd/pkg/execerr"
	"github.com/zetaflow/intentd/pkg/logger"
	"github.com/zetaflow/intentd/pkg/precondition"
	"github.com/zetaflow/intentd/pkg/staking"
	"github.com/zetaflow/intentd/pkg/txengine"
	"github.com/zetaflow/intentd/pkg/wallet"
	"github.com/zetaflow/intentd/pkg/wallet/wallettest"
)

var testContracts = config.ContractsConfig{
	WZETA:     common.HexToAddress(config.AthensWZETAAddress),
	Connector: common.HexToAddress(config.AthensConnectorAddress),
	Manager:   common.HexToAddress(config.AthensManagerAddress),
	NFT:       common.HexToAddress(config.AthensNFTAddress),
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestOrchestrator(w wallet.Wallet) *Orchestrator {
	log := &logger.EmptyLogger{}
	chains := config.NewChainRegistry([]config.ChainConfig{
		{Identifier: config.OriginChain, ChainID: 7001, Name: "ZetaChain Athens Testnet", ExplorerURL: "https://athens.explorer.zetachain.com", NativeSymbol: "ZETA"},
		{Identifier: config.BSCChain, ChainID: 97, Name: "BSC Testnet", ExplorerURL: "https://testnet.bscscan.com", NativeSymbol: "tBNB"},
	}, config.BSCChain)
	policy := config.PolicyConfig{
		MinCrossChainAmount: amount.MustWei("0.23"),
		DestinationGasLimit: 500000,
		FallbackGasPrice:    big.NewInt(10000100000),
	}
	engine := txengine.New(w, txengine.DefaultPolicy, log).WithSleep(noSleep)
	guard := chainguard.New(w, time.Second, log).WithSleep(noSleep)
	gasPrices := wallet.NewGasPriceCache(time.Minute, policy.FallbackGasPrice, log)
	return New(w, guard, engine, gasPrices, chains, testContracts, policy, precondition.ApprovalExact, log)
}

func newFunded(native string) *wallettest.Wallet {
	return wallettest.NewWallet(7001, testContracts.WZETA, amount.MustWei(native))
}

func TestValidation(t *testing.T) {
	testCases := []struct {
		name   string
		intent Intent
		kind   execerr.Kind
	}{
		{"unknown action", Intent{Action: "swap", FromChain: "zetachain", Amount: "1"}, execerr.KindUnsupportedAction},
		{"transfer without fromChain", Intent{Action: ActionTransfer, Amount: "1"}, execerr.KindUnsupportedAction},
		{"transfer from bsc", Intent{Action: ActionTransfer, FromChain: "bsc", Amount: "1"}, execerr.KindUnsupportedAction},
		{"transfer of unknown token", Intent{Action: ActionTransfer, FromChain: "zetachain", FromToken: "USDC", Amount: "1"}, execerr.KindUnsupportedAction},
		{"malformed amount", Intent{Action: ActionTransfer, FromChain: "zetachain", Amount: "abc"}, execerr.KindInvalidAmount},
		{"empty amount", Intent{Action: ActionTransfer, FromChain: "zetachain"}, execerr.KindInvalidAmount},
		{"negative amount", Intent{Action: ActionTransfer, FromChain: "zetachain", Amount: "-1"}, execerr.KindInvalidAmount},
		{"zero amount", Intent{Action: ActionTransfer, FromChain: "zetachain", Amount: "0"}, execerr.KindInvalidAmount},
		{"bad recipient", Intent{Action: ActionTransfer, FromChain: "zetachain", Amount: "0.1", Recipient: "alice"}, execerr.KindInvalidRecipientAddress},
		{"cross-chain from bsc", Intent{Action: ActionCrossChainTransfer, FromChain: "bsc", ToChain: "zetachain", Amount: "1"}, execerr.KindUnsupportedAction},
		{"cross-chain to unknown", Intent{Action: ActionCrossChainTransfer, FromChain: "zetachain", ToChain: "ethereum", Amount: "1"}, execerr.KindUnsupportedAction},
		{"cross-chain below minimum", Intent{Action: ActionCrossChainTransfer, FromChain: "zetachain", ToChain: "bsc", Amount: "0.1"}, execerr.KindAmountTooSmall},
		{"cross-chain exponent below minimum", Intent{Action: ActionCrossChainTransfer, FromChain: "zetachain", ToChain: "bsc", Amount: "2.29e-1"}, execerr.KindAmountTooSmall},
		{"stake without file", Intent{Action: ActionStake, Amount: "1"}, execerr.KindUnsupportedAction},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := newFunded("1")
			session := NewSession(wallettest.DefaultAccount.Hex())

			outcome, err := newTestOrchestrator(w).Execute(context.Background(), session, tc.intent)
			assert.Equal(t, tc.kind, execerr.KindOf(err))
			assert.Equal(t, StateError, outcome.State)
			assert.Equal(t, StateError, session.State())
			assert.Empty(t, w.Steps(), "no submission expected")
			assert.NotEmpty(t, outcome.IntentID)
		})
	}
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	t.Run("native transfer", func(t *testing.T) {
		w := newFunded("1")
		outcome, err := newTestOrchestrator(w).Execute(ctx, NewSession("a"), Intent{
			ID: "intent-1", Action: ActionTransfer, FromChain: "zetachain", Amount: "0.5", Recipient: recipient.Hex(),
		})
		require.NoError(t, err)

		require.Equal(t, []string{"transfer"}, w.Steps())
		assert.Equal(t, recipient, w.Calls[0].To)
		assert.Equal(t, amount.MustWei("0.5"), w.Calls[0].Value)
		assert.Equal(t, StateSuccess, outcome.State)
		assert.Equal(t, "intent-1", outcome.IntentID)
		assert.True(t, outcome.Confirmed)
		assert.Equal(t, w.Calls[0].Hash.Hex(), outcome.TxHash)
		assert.Equal(t, "https://athens.explorer.zetachain.com/tx/"+outcome.TxHash, outcome.ExplorerURL)
	})

	t.Run("amount above balance", func(t *testing.T) {
		w := newFunded("1")
		_, err := newTestOrchestrator(w).Execute(ctx, NewSession("a"), Intent{
			Action: ActionTransfer, FromChain: "zetachain", Amount: "100",
		})
		assert.Equal(t, execerr.KindInsufficientFunds, execerr.KindOf(err))
		assert.Empty(t, w.Steps())
	})

	t.Run("fee is part of the requirement", func(t *testing.T) {
		w := newFunded("1")
		_, err := newTestOrchestrator(w).Execute(ctx, NewSession("a"), Intent{
			Action: ActionTransfer, FromChain: "zetachain", Amount: "1",
		})
		assert.Equal(t, execerr.KindInsufficientFunds, execerr.KindOf(err))
		assert.Empty(t, w.Steps())
	})

	t.Run("wrapped transfer", func(t *testing.T) {
		w := newFunded("1")
		w.SetToken(testContracts.WZETA, amount.MustWei("2"))
		_, err := newTestOrchestrator(w).Execute(ctx, NewSession("a"), Intent{
			Action: ActionTransfer, FromChain: "zetachain", FromToken: "WZETA", Amount: "1.5", Recipient: recipient.Hex(),
		})
		require.NoError(t, err)
		require.Len(t, w.Calls, 1)
		assert.Equal(t, "transfer", w.Calls[0].Method)
		assert.Equal(t, testContracts.WZETA, w.Calls[0].To)
		assert.Equal(t, uint64(tokenTransferGas), w.Calls[0].GasLimit)
		assert.Equal(t, amount.MustWei("0.5"), w.TokenBalance(testContracts.WZETA))
	})

	t.Run("wrapped transfer fee uses the token call gas", func(t *testing.T) {
		// covers 21000 gas but not the token transfer limit
		w := newFunded("0.0005")
		w.SetToken(testContracts.WZETA, amount.MustWei("2"))
		_, err := newTestOrchestrator(w).Execute(ctx, NewSession("a"), Intent{
			Action: ActionTransfer, FromChain: "zetachain", FromToken: "WZETA", Amount: "1", Recipient: recipient.Hex(),
		})
		assert.Equal(t, execerr.KindInsufficientFunds, execerr.KindOf(err))
		assert.Empty(t, w.Steps())
	})

	t.Run("switches to the origin chain first", func(t *testing.T) {
		w := newFunded("1")
		w.Chain = 97
		w.Native[7001] = amount.MustWei("1")
		_, err := newTestOrchestrator(w).Execute(ctx, NewSession("a"), Intent{
			Action: ActionTransfer, FromChain: "ZetaChain", Amount: "0.1",
		})
		require.NoError(t, err)
		assert.Equal(t, []int{7001}, w.Switches)
		assert.Equal(t, 7001, w.Calls[0].ChainID)
	})
}

func TestCrossChainTransfer(t *testing.T) {
	w := newFunded("1")
	outcome, err := newTestOrchestrator(w).Execute(context.Background(), NewSession("a"), Intent{
		Action: "xfer", FromChain: "zetachain", ToChain: "bsc", Amount: "5e-1",
	})
	require.NoError(t, err)
	assert.Equal(t, ActionCrossChainTransfer, outcome.Action)
	assert.Equal(t, []string{"wrap", "approve", "send"}, w.Steps())

	send := w.Calls[2]
	assert.Equal(t, testContracts.Connector, send.To)
	call, err := contracts.DecodeCall(send.Data)
	require.NoError(t, err)
	input := *abi.ConvertType(call.Args[0], new(contracts.SendInput)).(*contracts.SendInput)
	assert.Equal(t, int64(97), input.DestinationChainId.Int64())
	assert.Equal(t, wallettest.DefaultAccount.Bytes(), input.DestinationAddress)
	assert.Equal(t, int64(500000), input.DestinationGasLimit.Int64())
	assert.Equal(t, amount.MustWei("0.5"), input.ZetaValueAndGas)
	assert.Empty(t, input.Message)
	assert.Empty(t, input.ZetaParams)
	assert.Equal(t, send.Hash.Hex(), outcome.TxHash)
}

func TestStakeIntent(t *testing.T) {
	w := newFunded("1")
	outcome, err := newTestOrchestrator(w).Execute(context.Background(), NewSession("a"), Intent{
		Action: ActionStake, Amount: "0.5", FileID: "file-123",
	})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, outcome.State)
	assert.Equal(t, []string{"wrap", "approve", "stake"}, w.Steps())
	assert.Equal(t, amount.MustWei("0.5"), w.Stakes[staking.ContentID("file-123")])

	_, err = newTestOrchestrator(w).Execute(context.Background(), NewSession("a"), Intent{
		Action: ActionClaim, FileID: "file-123",
	})
	require.NoError(t, err)
	assert.Equal(t, "claim", w.Steps()[3])
}

func TestSingleActiveIntent(t *testing.T) {
	w := newFunded("1")
	session := NewSession("a")
	require.NoError(t, session.Begin("running"))

	outcome, err := newTestOrchestrator(w).Execute(context.Background(), session, Intent{
		Action: ActionTransfer, FromChain: "zetachain", Amount: "0.1",
	})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, StateError, outcome.State)
	assert.Equal(t, StateWaitingWallet, session.State())
	assert.Equal(t, "running", session.IntentID())
	assert.Empty(t, w.Steps())
	assert.Empty(t, w.Switches)

	session.Finish(StateSuccess)
	_, err = newTestOrchestrator(w).Execute(context.Background(), session, Intent{
		Action: ActionTransfer, FromChain: "zetachain", Amount: "0.1",
	})
	require.NoError(t, err)
}

// cancellingWallet cancels the session on the first balance read, before anything is sent
type cancellingWallet struct {
	*wallettest.Wallet
	session *Session
}

func (c *cancellingWallet) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	c.session.Cancel()
	return c.Wallet.BalanceAt(ctx, account)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("idle session", func(t *testing.T) {
		session := NewSession("a")
		assert.False(t, session.Cancel())
		assert.Equal(t, StateIdle, session.State())
	})

	t.Run("before submission", func(t *testing.T) {
		session := NewSession("a")
		w := newFunded("1")

		outcome, err := newTestOrchestrator(&cancellingWallet{Wallet: w, session: session}).Execute(ctx, session, Intent{
			Action: ActionTransfer, FromChain: "zetachain", Amount: "0.1",
		})
		require.NoError(t, err)
		assert.Equal(t, StateCancelled, outcome.State)
		assert.False(t, outcome.CancelledAfterSubmit)
		assert.Empty(t, outcome.TxHash)
		assert.Empty(t, w.Steps())
		assert.Equal(t, StateCancelled, session.State())
	})

	t.Run("after submission", func(t *testing.T) {
		session := NewSession("a")
		w := newFunded("1")
		w.OnSend = func(call wallettest.SentCall) {
			if call.Step == "wrap" {
				assert.True(t, session.Cancel())
			}
		}

		outcome, err := newTestOrchestrator(w).Execute(ctx, session, Intent{
			Action: ActionCrossChainTransfer, FromChain: "zetachain", ToChain: "bsc", Amount: "0.5",
		})
		require.NoError(t, err)
		assert.Equal(t, StateCancelled, outcome.State)
		assert.True(t, outcome.CancelledAfterSubmit)
		assert.Equal(t, []string{"wrap"}, w.Steps())
	})
}

func TestBalances(t *testing.T) {
	w := newFunded("1.5")
	w.SetToken(testContracts.WZETA, amount.MustWei("0.25"))
	w.SetToken(testContracts.NFT, big.NewInt(2))

	b, err := newTestOrchestrator(w).Balances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7001, b.ChainID)
	assert.Equal(t, amount.MustWei("1.5"), b.Native)
	assert.Equal(t, amount.MustWei("0.25"), b.Wrapped)
	assert.Equal(t, int64(2), b.NFT.Int64())

	w.Chain = 97
	b, err = newTestOrchestrator(w).Balances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, b.Wrapped.Sign())
	assert.Equal(t, 0, b.NFT.Sign())
}
