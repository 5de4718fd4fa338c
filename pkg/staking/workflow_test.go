package staking

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zetaflow/intentd/pkg/amount"
	"github.com/zetaflow/intentd/pkg/chainguard"
	"github.com/zetaflow/intentd/pkg/config"
	"github.com/zetaflow/intentd/pkg/execerr"
	"github.com/zetaflow/intentd/pkg/logger"
	"github.com/zetaflow/intentd/pkg/precondition"
	"github.com/zetaflow/intentd/pkg/txengine"
	"github.com/zetaflow/intentd/pkg/wallet/wallettest"
)

var (
	wzeta   = common.HexToAddress("0x5F0b1a82749cb4E2278EC87F8BF6B618dC71a8bf")
	manager = common.HexToAddress("0xD7BF0f6Ec8Cb9b8f334cfe012D1021d54Dc273b4")
	athens  = config.ChainConfig{Identifier: config.OriginChain, ChainID: 7001, Name: "ZetaChain Athens"}
)

type providerError struct {
	msg  string
	data string
}

func (e providerError) Error() string          { return e.msg }
func (e providerError) ErrorCode() int         { return 3 }
func (e providerError) ErrorData() interface{} { return e.data }

func noSleep(context.Context, time.Duration) error { return nil }

func newWorkflow(w *wallettest.Wallet) *Workflow {
	log := &logger.EmptyLogger{}
	engine := txengine.New(w, txengine.DefaultPolicy, log).WithSleep(noSleep)
	guard := chainguard.New(w, time.Second, log).WithSleep(noSleep)
	resolver := precondition.New(w, engine, precondition.ApprovalExact, log)
	return New(w, guard, resolver, engine, athens, manager, log)
}

func TestContentID(t *testing.T) {
	a := ContentID("file-123")
	b := ContentID("file-123")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ContentID("file-124"))

	// keccak256("")
	empty := ContentID("")
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", hexutil.Encode(empty[:]))
}

func TestStakeEndToEnd(t *testing.T) {
	ctx := context.Background()
	w := wallettest.NewWallet(7001, wzeta, amount.MustWei("1"))
	wf := newWorkflow(w)
	contentID := ContentID("file-123")
	half := amount.MustWei("0.5")

	result, err := wf.Stake(ctx, contentID, wzeta, half)
	require.NoError(t, err)
	assert.True(t, result.Confirmed)

	assert.Equal(t, []string{"wrap", "approve", "stake"}, w.Steps())
	assert.Equal(t, half, w.Calls[0].Value)
	assert.Equal(t, "approve", w.Calls[1].Method)
	assert.Equal(t, "stake", w.Calls[2].Method)
	assert.Equal(t, w.Calls[2].Hash, result.Hash)

	staked, err := wf.StakeOf(ctx, contentID, wzeta, wallettest.DefaultAccount)
	require.NoError(t, err)
	assert.Equal(t, half, staked)
	assert.Equal(t, 0, w.TokenBalance(wzeta).Sign())
}

func TestUnstakeAndClaim(t *testing.T) {
	ctx := context.Background()
	w := wallettest.NewWallet(97, wzeta, big.NewInt(0))
	contentID := ContentID("file-123")
	w.Stakes[contentID] = amount.MustWei("2")
	wf := newWorkflow(w)

	_, err := wf.Unstake(ctx, contentID, wzeta, amount.MustWei("0.5"))
	require.NoError(t, err)
	_, err = wf.Claim(ctx, contentID, wzeta)
	require.NoError(t, err)

	assert.Equal(t, []int{7001}, w.Switches)
	assert.Equal(t, []string{"unstake", "claim"}, w.Steps())
	assert.Equal(t, amount.MustWei("1.5"), w.Stakes[contentID])
	assert.Equal(t, amount.MustWei("0.5"), w.TokenBalance(wzeta))
}

func TestStakeRevertDecoding(t *testing.T) {
	testCases := []struct {
		name   string
		data   string
		revert execerr.RevertKind
	}{
		{"insufficient allowance", "0x8c5c53600000000000000000000000000000000000000000000000000000000000000001", execerr.RevertInsufficientAllowance},
		{"insufficient balance", "0x11c37937", execerr.RevertInsufficientBalance},
		{"insufficient balance alt", "0xfe382aa7", execerr.RevertInsufficientBalance},
		{"custom error", "0xdeadbeef", execerr.RevertUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := wallettest.NewWallet(7001, wzeta, big.NewInt(0))
			w.SetToken(wzeta, amount.MustWei("1"))
			w.SetAllowance(wzeta, manager, amount.MustWei("1"))
			w.SendErrs["stake"] = providerError{msg: "execution reverted", data: tc.data}

			_, err := newWorkflow(w).Stake(context.Background(), ContentID("x"), wzeta, amount.MustWei("1"))
			assert.Equal(t, execerr.KindExecutionReverted, execerr.KindOf(err))
			assert.Equal(t, tc.revert, execerr.RevertOf(err))
			assert.Equal(t, tc.revert, DecodeRevert(hexutil.MustDecode(tc.data)))
		})
	}
}

func TestStakeValidation(t *testing.T) {
	w := wallettest.NewWallet(7001, wzeta, amount.MustWei("1"))
	_, err := newWorkflow(w).Stake(context.Background(), ContentID("x"), wzeta, big.NewInt(0))
	assert.Equal(t, execerr.KindInvalidAmount, execerr.KindOf(err))
	assert.Empty(t, w.Steps())
}
