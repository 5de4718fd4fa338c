// Package txengine submits a single call through the wallet and waits for its confirmation.
package txengine

import (
	"context"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/zetaflow/intentd/pkg/chainguard"
	"github.com/zetaflow/intentd/pkg/circuitbreaker"
	"github.com/zetaflow/intentd/pkg/execerr"
	"github.com/zetaflow/intentd/pkg/logger"
	"github.com/zetaflow/intentd/pkg/metrics"
	"github.com/zetaflow/intentd/pkg/wallet"
)

// TxResult is the outcome of a submission. Confirmed is false when the
// confirmation wait was throttled until retries ran out; the hash is still valid.
type TxResult struct {
	Hash      common.Hash
	Confirmed bool
	GasUsed   uint64
}

// Submitter is implemented by Engine
type Submitter interface {
	SubmitAndConfirm(ctx context.Context, req wallet.CallRequest) (TxResult, error)
}

// Engine submits calls and runs the bounded confirmation loop
type Engine struct {
	wallet   wallet.Wallet
	policy   Policy
	breakers map[int]*circuitbreaker.CircuitBreaker
	sleep    func(ctx context.Context, d time.Duration) error
	logger   logger.Logger
}

var _ Submitter = (*Engine)(nil)

// New creates an engine using the given confirmation policy
func New(w wallet.Wallet, policy Policy, log logger.Logger) *Engine {
	return &Engine{
		wallet:   w,
		policy:   policy,
		breakers: make(map[int]*circuitbreaker.CircuitBreaker),
		sleep:    chainguard.Sleep,
		logger:   log,
	}
}

// WithBreakers installs per-chain circuit breakers
func (e *Engine) WithBreakers(breakers map[int]*circuitbreaker.CircuitBreaker) *Engine {
	e.breakers = breakers
	return e
}

// WithSleep replaces the backoff timer, used in tests
func (e *Engine) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Engine {
	e.sleep = sleep
	return e
}

// SubmitAndConfirm sends req and waits for its receipt.
// Rate-limited waits are retried with exponential backoff and degrade to an unconfirmed
// result; any other wait error is TransactionFailed and a failed receipt is ExecutionReverted.
func (e *Engine) SubmitAndConfirm(ctx context.Context, req wallet.CallRequest) (TxResult, error) {
	chainID, err := e.wallet.ActiveChain(ctx)
	if err != nil {
		return TxResult{}, execerr.Wrap(execerr.KindWalletUnavailable, err, "failed to read active chain")
	}
	chainLabel := strconv.Itoa(chainID)
	breaker := e.breakers[chainID]

	if breaker != nil && breaker.IsOpen() {
		return TxResult{}, execerr.New(execerr.KindTransactionFailed, "circuit breaker open for chain %d, refusing %s", chainID, req.Step)
	}

	hash, err := e.wallet.Send(ctx, req)
	if err != nil {
		if reverted, ok := execerr.FromRevert(err); ok {
			metrics.Reverts.WithLabelValues(chainLabel, string(reverted.Revert)).Inc()
			e.logger.ErrorWithChain(chainID, "%s reverted: %s", req.Step, reverted.Reason)
			return TxResult{}, reverted
		}
		e.recordFailure(chainID, breaker)
		return TxResult{}, execerr.Wrap(execerr.KindTransactionFailed, err, "%s submission failed", req.Step)
	}
	metrics.Submissions.WithLabelValues(chainLabel, req.Step).Inc()
	e.logger.InfoWithChain(chainID, "Submitted %s: %s", req.Step, hash.Hex())

	for state := NewRetryState(e.policy); !state.Exhausted(); state = state.Next() {
		receipt, err := e.wallet.WaitReceipt(ctx, hash)
		if err == nil {
			return e.checkReceipt(chainID, breaker, req.Step, hash, receipt)
		}

		if !IsRateLimited(err) {
			e.recordFailure(chainID, breaker)
			return TxResult{Hash: hash}, execerr.Wrap(execerr.KindTransactionFailed, err, "waiting for %s %s failed", req.Step, hash.Hex())
		}

		metrics.ConfirmationRetries.WithLabelValues(chainLabel).Inc()
		e.logger.NoticeWithChain(chainID, "Rate limited waiting for %s (attempt %d/%d), retrying in %v",
			hash.Hex(), state.Attempt, state.MaxAttempts, state.Delay)
		if err := e.sleep(ctx, state.Delay); err != nil {
			return TxResult{Hash: hash}, err
		}
	}

	metrics.UnconfirmedResults.WithLabelValues(chainLabel).Inc()
	e.logger.NoticeWithChain(chainID, "Giving up waiting for %s after %d attempts, transaction may still land", hash.Hex(), e.policy.MaxAttempts)
	return TxResult{Hash: hash, Confirmed: false}, nil
}

func (e *Engine) checkReceipt(chainID int, breaker *circuitbreaker.CircuitBreaker, step string, hash common.Hash, receipt *types.Receipt) (TxResult, error) {
	chainLabel := strconv.Itoa(chainID)
	if breaker != nil {
		breaker.RecordSuccess()
	}

	result := TxResult{Hash: hash, Confirmed: true, GasUsed: receipt.GasUsed}
	metrics.GasUsed.WithLabelValues(chainLabel).Observe(float64(receipt.GasUsed))

	if receipt.Status != types.ReceiptStatusSuccessful {
		metrics.Reverts.WithLabelValues(chainLabel, string(execerr.RevertUnknown)).Inc()
		e.logger.ErrorWithChain(chainID, "%s %s failed on chain", step, hash.Hex())
		return result, execerr.Reverted(execerr.RevertUnknown, "transaction "+hash.Hex()+" reverted", nil)
	}

	e.logger.InfoWithChain(chainID, "Confirmed %s %s (gas used %d)", step, hash.Hex(), receipt.GasUsed)
	return result, nil
}

func (e *Engine) recordFailure(chainID int, breaker *circuitbreaker.CircuitBreaker) {
	if breaker == nil {
		return
	}
	if breaker.RecordFailure() {
		metrics.CircuitBreakerTrips.WithLabelValues(strconv.Itoa(chainID)).Inc()
		e.logger.ErrorWithChain(chainID, "Circuit breaker tripped for chain %d", chainID)
	}
}
