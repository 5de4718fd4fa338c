// Package staking runs the TalkToEarn stake, unstake and claim sequences against the manager contract.
package staking

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zetaflow/intentd/pkg/amount"
	"github.com/zetaflow/intentd/pkg/config"
	"github.com/zetaflow/intentd/pkg/contracts"
	"github.com/zetaflow/intentd/pkg/execerr"
	"github.com/zetaflow/intentd/pkg/logger"
	"github.com/zetaflow/intentd/pkg/precondition"
	"github.com/zetaflow/intentd/pkg/txengine"
	"github.com/zetaflow/intentd/pkg/wallet"
)

// ContentID derives the stake key of a file or session: keccak256 of the UTF-8 identifier
func ContentID(fileID string) [32]byte {
	return crypto.Keccak256Hash([]byte(fileID))
}

// DecodeRevert classifies a manager revert payload
func DecodeRevert(data []byte) execerr.RevertKind {
	return execerr.DecodeRevert(data)
}

// ChainGuard is implemented by chainguard.Guard
type ChainGuard interface {
	EnsureChain(ctx context.Context, target config.ChainConfig) error
}

// Spender is implemented by precondition.Resolver
type Spender interface {
	EnsureSpendable(ctx context.Context, asset, spender common.Address, value *big.Int) (precondition.Report, error)
}

// Workflow composes the guard, resolver and engine for manager calls on the origin chain
type Workflow struct {
	wallet    wallet.Wallet
	guard     ChainGuard
	resolver  Spender
	submitter txengine.Submitter
	chain     config.ChainConfig
	manager   common.Address
	logger    logger.Logger
}

// New creates a workflow for the manager deployed on chain
func New(w wallet.Wallet, guard ChainGuard, resolver Spender, submitter txengine.Submitter, chain config.ChainConfig, manager common.Address, log logger.Logger) *Workflow {
	return &Workflow{
		wallet:    w,
		guard:     guard,
		resolver:  resolver,
		submitter: submitter,
		chain:     chain,
		manager:   manager,
		logger:    log,
	}
}

// Manager returns the manager contract address
func (wf *Workflow) Manager() common.Address {
	return wf.manager
}

// Stake makes value of asset spendable by the manager, then stakes it
func (wf *Workflow) Stake(ctx context.Context, contentID [32]byte, asset common.Address, value *big.Int) (txengine.TxResult, error) {
	if err := checkPositive(value); err != nil {
		return txengine.TxResult{}, err
	}
	if err := wf.guard.EnsureChain(ctx, wf.chain); err != nil {
		return txengine.TxResult{}, err
	}
	if _, err := wf.resolver.EnsureSpendable(ctx, asset, wf.manager, value); err != nil {
		return txengine.TxResult{}, err
	}

	data, err := contracts.PackStake(contentID, asset, value)
	if err != nil {
		return txengine.TxResult{}, execerr.Wrap(execerr.KindTransactionFailed, err, "failed to encode stake")
	}
	wf.logger.InfoWithChain(wf.chain.ChainID, "Staking %s on content %x", amount.FromWei(value), contentID)
	return wf.submitter.SubmitAndConfirm(ctx, wallet.CallRequest{To: wf.manager, Data: data, Step: "stake"})
}

// Unstake withdraws value from the content stake; the contract checks the stake exists
func (wf *Workflow) Unstake(ctx context.Context, contentID [32]byte, asset common.Address, value *big.Int) (txengine.TxResult, error) {
	if err := checkPositive(value); err != nil {
		return txengine.TxResult{}, err
	}
	if err := wf.guard.EnsureChain(ctx, wf.chain); err != nil {
		return txengine.TxResult{}, err
	}

	data, err := contracts.PackUnstake(contentID, asset, value)
	if err != nil {
		return txengine.TxResult{}, execerr.Wrap(execerr.KindTransactionFailed, err, "failed to encode unstake")
	}
	wf.logger.InfoWithChain(wf.chain.ChainID, "Unstaking %s from content %x", amount.FromWei(value), contentID)
	return wf.submitter.SubmitAndConfirm(ctx, wallet.CallRequest{To: wf.manager, Data: data, Step: "unstake"})
}

// Claim collects the rewards accrued on the content stake
func (wf *Workflow) Claim(ctx context.Context, contentID [32]byte, asset common.Address) (txengine.TxResult, error) {
	if err := wf.guard.EnsureChain(ctx, wf.chain); err != nil {
		return txengine.TxResult{}, err
	}

	data, err := contracts.PackClaim(contentID, asset)
	if err != nil {
		return txengine.TxResult{}, execerr.Wrap(execerr.KindTransactionFailed, err, "failed to encode claim")
	}
	wf.logger.InfoWithChain(wf.chain.ChainID, "Claiming rewards for content %x", contentID)
	return wf.submitter.SubmitAndConfirm(ctx, wallet.CallRequest{To: wf.manager, Data: data, Step: "claim"})
}

// StakeOf reads the amount account has staked on contentID
func (wf *Workflow) StakeOf(ctx context.Context, contentID [32]byte, asset, account common.Address) (*big.Int, error) {
	if err := wf.guard.EnsureChain(ctx, wf.chain); err != nil {
		return nil, err
	}

	data, err := contracts.PackStakes(contentID, asset, account)
	if err != nil {
		return nil, err
	}
	out, err := wf.wallet.CallContract(ctx, wf.manager, data)
	if err != nil {
		return nil, execerr.Wrap(execerr.KindTransactionFailed, err, "failed to read stake")
	}
	return contracts.UnpackUint256(out)
}

func checkPositive(value *big.Int) error {
	if value == nil || value.Sign() <= 0 {
		return execerr.New(execerr.KindInvalidAmount, "amount must be positive")
	}
	return nil
}
