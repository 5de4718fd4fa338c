// Package precondition makes a wrapped-asset amount spendable by a contract: it wraps
// native ZETA when the wrapped balance is short and approves the spender when the
// allowance is short.
package precondition

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zetaflow/intentd/pkg/amount"
	"github.com/zetaflow/intentd/pkg/contracts"
	"github.com/zetaflow/intentd/pkg/execerr"
	"github.com/zetaflow/intentd/pkg/logger"
	"github.com/zetaflow/intentd/pkg/txengine"
	"github.com/zetaflow/intentd/pkg/wallet"
)

// ApprovalPolicy selects the approve amount
type ApprovalPolicy string

const (
	// ApprovalExact approves exactly the required amount
	ApprovalExact ApprovalPolicy = "exact"
	// ApprovalInfinite approves MaxUint256
	ApprovalInfinite ApprovalPolicy = "infinite"
	// ApprovalAdaptive approves MaxUint256 when the spend is a large share of the wrapped balance
	ApprovalAdaptive ApprovalPolicy = "adaptive"
)

var (
	// MaxUint256 is the value used for infinite approvals (2^256 - 1)
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	// ApprovalThreshold is the share of the wrapped balance above which adaptive approvals go infinite
	ApprovalThreshold = big.NewFloat(0.3)
)

// ParseApprovalPolicy validates a policy name
func ParseApprovalPolicy(s string) (ApprovalPolicy, error) {
	switch p := ApprovalPolicy(s); p {
	case ApprovalExact, ApprovalInfinite, ApprovalAdaptive:
		return p, nil
	}
	return "", fmt.Errorf("unknown approval policy %q", s)
}

// Report lists what EnsureSpendable had to submit; nil fields mean the step was skipped
type Report struct {
	Wrapped  *big.Int
	Approved *big.Int
}

// Resolver checks and repairs balance and allowance preconditions
type Resolver struct {
	wallet    wallet.Wallet
	submitter txengine.Submitter
	policy    ApprovalPolicy
	logger    logger.Logger
}

// New creates a resolver
func New(w wallet.Wallet, submitter txengine.Submitter, policy ApprovalPolicy, log logger.Logger) *Resolver {
	if policy == "" {
		policy = ApprovalExact
	}
	return &Resolver{
		wallet:    w,
		submitter: submitter,
		policy:    policy,
		logger:    log,
	}
}

// EnsureSpendable makes sure the account holds amount of asset and spender may pull it.
// The wrap always completes before the approval is sent.
func (r *Resolver) EnsureSpendable(ctx context.Context, asset, spender common.Address, value *big.Int) (Report, error) {
	var report Report

	if value == nil || value.Sign() <= 0 {
		return report, execerr.New(execerr.KindInvalidAmount, "spend amount must be positive")
	}

	account, err := r.wallet.Address(ctx)
	if err != nil {
		return report, execerr.Wrap(execerr.KindWalletUnavailable, err, "failed to get account")
	}

	balance, err := r.readUint(ctx, asset, "balance", func() ([]byte, error) { return contracts.PackBalanceOf(account) })
	if err != nil {
		return report, err
	}

	if balance.Cmp(value) < 0 {
		deficit := new(big.Int).Sub(value, balance)
		native, err := r.wallet.BalanceAt(ctx, account)
		if err != nil {
			return report, execerr.Wrap(execerr.KindPreconditionFailed, err, "failed to read native balance")
		}
		if native.Cmp(deficit) < 0 {
			return report, execerr.New(execerr.KindInsufficientFunds,
				"need %s more ZETA to wrap, required total %s, native balance %s",
				amount.FromWei(new(big.Int).Sub(deficit, native)), amount.FromWei(value), amount.FromWei(native))
		}

		data, err := contracts.PackDeposit()
		if err != nil {
			return report, execerr.Wrap(execerr.KindPreconditionFailed, err, "failed to encode wrap")
		}
		r.logger.Info("Wrapping %s ZETA (balance %s, required %s)", amount.FromWei(deficit), amount.FromWei(balance), amount.FromWei(value))
		result, err := r.submitter.SubmitAndConfirm(ctx, wallet.CallRequest{To: asset, Data: data, Value: deficit, Step: "wrap"})
		if err != nil {
			return report, execerr.Wrap(execerr.KindPreconditionFailed, err, "wrap failed")
		}
		if !result.Confirmed {
			r.logger.Notice("Wrap %s not confirmed yet, continuing", result.Hash.Hex())
		}
		report.Wrapped = deficit
		balance = new(big.Int).Add(balance, deficit)
	}

	allowance, err := r.readUint(ctx, asset, "allowance", func() ([]byte, error) { return contracts.PackAllowance(account, spender) })
	if err != nil {
		return report, err
	}
	if allowance.Cmp(value) >= 0 {
		return report, nil
	}

	approval := r.approvalAmount(value, balance)
	data, err := contracts.PackApprove(spender, approval)
	if err != nil {
		return report, execerr.Wrap(execerr.KindPreconditionFailed, err, "failed to encode approve")
	}
	r.logger.Info("Approving %s for %s (allowance %s)", approvalString(approval), spender.Hex(), amount.FromWei(allowance))
	if _, err := r.submitter.SubmitAndConfirm(ctx, wallet.CallRequest{To: asset, Data: data, Step: "approve"}); err != nil {
		return report, execerr.Wrap(execerr.KindPreconditionFailed, err, "approve failed")
	}
	report.Approved = approval
	return report, nil
}

func (r *Resolver) readUint(ctx context.Context, asset common.Address, what string, pack func() ([]byte, error)) (*big.Int, error) {
	data, err := pack()
	if err != nil {
		return nil, execerr.Wrap(execerr.KindPreconditionFailed, err, "failed to encode %s query", what)
	}
	out, err := r.wallet.CallContract(ctx, asset, data)
	if err != nil {
		return nil, execerr.Wrap(execerr.KindPreconditionFailed, err, "failed to read %s", what)
	}
	v, err := contracts.UnpackUint256(out)
	if err != nil {
		return nil, execerr.Wrap(execerr.KindPreconditionFailed, err, "failed to decode %s", what)
	}
	return v, nil
}

func (r *Resolver) approvalAmount(required, balance *big.Int) *big.Int {
	switch r.policy {
	case ApprovalInfinite:
		return MaxUint256
	case ApprovalAdaptive:
		return determineApprovalAmount(required, balance)
	}
	return new(big.Int).Set(required)
}

// determineApprovalAmount goes infinite when the spend uses more than the
// threshold share of the wrapped balance, since another approval would soon be needed.
func determineApprovalAmount(required, balance *big.Int) *big.Int {
	if balance.Sign() == 0 {
		return MaxUint256
	}

	ratio := new(big.Float).Quo(new(big.Float).SetInt(required), new(big.Float).SetInt(balance))
	if ratio.Cmp(ApprovalThreshold) > 0 {
		return MaxUint256
	}
	return new(big.Int).Set(required)
}

func approvalString(v *big.Int) string {
	if v.Cmp(MaxUint256) == 0 {
		return "unlimited"
	}
	return amount.FromWei(v)
}
