// Package orchestrator validates intents and runs them through the chain guard,
// the precondition resolver and the submission engine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zetaflow/intentd/pkg/amount"
	"github.com/zetaflow/intentd/pkg/chainguard"
	"github.com/zetaflow/intentd/pkg/config"
	"github.com/zetaflow/intentd/pkg/contracts"
	"github.com/zetaflow/intentd/pkg/execerr"
	"github.com/zetaflow/intentd/pkg/logger"
	"github.com/zetaflow/intentd/pkg/metrics"
	"github.com/zetaflow/intentd/pkg/precondition"
	"github.com/zetaflow/intentd/pkg/staking"
	"github.com/zetaflow/intentd/pkg/txengine"
	"github.com/zetaflow/intentd/pkg/wallet"
)

const (
	// nativeTransferGas is the gas of a plain value transfer
	nativeTransferGas = 21000
	// tokenTransferGas is the gas limit sent with a WZETA transfer call
	tokenTransferGas = 65000
)

// errCancelled stops an execution after Session.Cancel
var errCancelled = errors.New("intent cancelled")

// Outcome is the result of one Execute call
type Outcome struct {
	IntentID    string         `json:"intent_id"`
	Action      Action         `json:"action"`
	State       ExecutionState `json:"state"`
	TxHash      string         `json:"tx_hash,omitempty"`
	Confirmed   bool           `json:"confirmed"`
	ExplorerURL string         `json:"explorer_url,omitempty"`
	// CancelledAfterSubmit means a transaction was already sent when the cancel arrived;
	// it keeps going on-chain, only local tracking stopped.
	CancelledAfterSubmit bool `json:"cancelled_after_submit,omitempty"`
}

// Orchestrator executes intents for one wallet
type Orchestrator struct {
	wallet    wallet.Wallet
	guard     *chainguard.Guard
	engine    txengine.Submitter
	gasPrices *wallet.GasPriceCache
	chains    *config.ChainRegistry
	contracts config.ContractsConfig
	policy    config.PolicyConfig
	approval  precondition.ApprovalPolicy
	logger    logger.Logger
}

// New creates an orchestrator
func New(
	w wallet.Wallet,
	guard *chainguard.Guard,
	engine txengine.Submitter,
	gasPrices *wallet.GasPriceCache,
	chains *config.ChainRegistry,
	contractsCfg config.ContractsConfig,
	policy config.PolicyConfig,
	approval precondition.ApprovalPolicy,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		wallet:    w,
		guard:     guard,
		engine:    engine,
		gasPrices: gasPrices,
		chains:    chains,
		contracts: contractsCfg,
		policy:    policy,
		approval:  approval,
		logger:    log,
	}
}

// Wallet returns the wallet intents are executed with
func (o *Orchestrator) Wallet() wallet.Wallet {
	return o.wallet
}

// Execute runs intent inside session. A busy session rejects the intent without side effects.
func (o *Orchestrator) Execute(ctx context.Context, session *Session, intent Intent) (Outcome, error) {
	intent = accept(intent)
	intent.Action = normalizedAction(intent.Action)
	outcome := Outcome{IntentID: intent.ID, Action: intent.Action, State: StateIdle}

	if session == nil {
		return outcome, execerr.New(execerr.KindWalletUnavailable, "no session")
	}
	if err := session.Begin(intent.ID); err != nil {
		outcome.State = StateError
		return outcome, err
	}

	start := time.Now()
	o.logger.Info("Executing intent %s: %s %s from %s", intent.ID, intent.Action, intent.Amount, intent.FromChain)

	result, err := o.run(ctx, session, intent)
	outcome.TxHash = result.TxHash
	outcome.Confirmed = result.Confirmed
	outcome.ExplorerURL = result.ExplorerURL

	switch {
	case errors.Is(err, errCancelled):
		err = nil
		outcome.State = StateCancelled
		outcome.CancelledAfterSubmit = session.wasSubmitted()
		o.logger.Notice("Intent %s cancelled (after submit: %t)", intent.ID, outcome.CancelledAfterSubmit)
	case err != nil:
		outcome.State = StateError
		metrics.IntentErrors.WithLabelValues(string(intent.Action), string(execerr.KindOf(err))).Inc()
		o.logger.Error("Intent %s failed: %v", intent.ID, err)
	default:
		outcome.State = StateSuccess
		o.logger.Info("Intent %s succeeded: %s (confirmed: %t)", intent.ID, outcome.TxHash, outcome.Confirmed)
	}

	session.Finish(outcome.State)
	metrics.IntentsExecuted.WithLabelValues(string(intent.Action), string(outcome.State)).Inc()
	metrics.IntentProcessingTime.WithLabelValues(string(intent.Action)).Observe(time.Since(start).Seconds())
	return outcome, err
}

func (o *Orchestrator) run(ctx context.Context, session *Session, intent Intent) (Outcome, error) {
	submitter := &sessionSubmitter{inner: o.engine, session: session}

	switch intent.Action {
	case ActionTransfer:
		return o.transfer(ctx, submitter, intent)
	case ActionCrossChainTransfer:
		return o.crossChainTransfer(ctx, submitter, intent)
	case ActionStake, ActionUnstake, ActionClaim:
		return o.stakingAction(ctx, submitter, intent)
	}
	return Outcome{}, execerr.New(execerr.KindUnsupportedAction, "unsupported action %q", intent.Action)
}

func (o *Orchestrator) originChain(fromChain string, action Action) (config.ChainConfig, error) {
	if fromChain == "" {
		return config.ChainConfig{}, execerr.New(execerr.KindUnsupportedAction, "%s requires fromChain", action)
	}
	chain, ok := o.chains.Lookup(fromChain)
	if !ok {
		return config.ChainConfig{}, execerr.New(execerr.KindUnsupportedAction, "unknown chain %q", fromChain)
	}
	if chain.Identifier != config.OriginChain {
		return config.ChainConfig{}, execerr.New(execerr.KindUnsupportedAction, "%s is only supported from %s, not %s", action, config.OriginChain, fromChain)
	}
	return chain, nil
}

func (o *Orchestrator) transfer(ctx context.Context, submitter txengine.Submitter, intent Intent) (Outcome, error) {
	chain, err := o.originChain(intent.FromChain, intent.Action)
	if err != nil {
		return Outcome{}, err
	}
	wrapped := isWrappedToken(intent.FromToken)
	if !wrapped && !isNativeToken(intent.FromToken) {
		return Outcome{}, execerr.New(execerr.KindUnsupportedAction, "token %q cannot be transferred", intent.FromToken)
	}
	value, err := parseAmount(intent.Amount)
	if err != nil {
		return Outcome{}, err
	}

	if err := o.guard.EnsureChain(ctx, chain); err != nil {
		return Outcome{}, err
	}
	account, err := o.wallet.Address(ctx)
	if err != nil {
		return Outcome{}, execerr.Wrap(execerr.KindWalletUnavailable, err, "failed to get account")
	}
	recipient, err := resolveRecipient(intent.Recipient, account)
	if err != nil {
		return Outcome{}, err
	}

	native, err := o.wallet.BalanceAt(ctx, account)
	if err != nil {
		return Outcome{}, execerr.Wrap(execerr.KindWalletUnavailable, err, "failed to read balance")
	}
	gasPrice := o.gasPrices.Price(ctx, o.wallet)
	fee := new(big.Int).Mul(big.NewInt(nativeTransferGas), gasPrice)

	req := wallet.CallRequest{To: recipient, Value: value, GasLimit: nativeTransferGas, Step: "transfer"}
	if wrapped {
		fee = new(big.Int).Mul(big.NewInt(tokenTransferGas), gasPrice)
		tokenBalance, err := o.tokenBalance(ctx, o.contracts.WZETA, account)
		if err != nil {
			return Outcome{}, err
		}
		if tokenBalance.Cmp(value) < 0 {
			return Outcome{}, execerr.New(execerr.KindInsufficientFunds, "WZETA balance %s is below %s", amount.FromWei(tokenBalance), amount.FromWei(value))
		}
		if native.Cmp(fee) < 0 {
			return Outcome{}, execerr.New(execerr.KindInsufficientFunds, "balance %s does not cover the network fee %s", amount.FromWei(native), amount.FromWei(fee))
		}
		data, err := contracts.PackTransfer(recipient, value)
		if err != nil {
			return Outcome{}, execerr.Wrap(execerr.KindTransactionFailed, err, "failed to encode transfer")
		}
		req = wallet.CallRequest{To: o.contracts.WZETA, Data: data, GasLimit: tokenTransferGas, Step: "transfer"}
	} else {
		required := new(big.Int).Add(value, fee)
		if native.Cmp(required) < 0 {
			return Outcome{}, execerr.New(execerr.KindInsufficientFunds,
				"balance %s %s does not cover %s plus network fee %s",
				amount.FromWei(native), chain.NativeSymbol, amount.FromWei(value), amount.FromWei(fee))
		}
	}

	result, err := submitter.SubmitAndConfirm(ctx, req)
	return o.outcome(chain, result), err
}

func (o *Orchestrator) crossChainTransfer(ctx context.Context, submitter txengine.Submitter, intent Intent) (Outcome, error) {
	chain, err := o.originChain(intent.FromChain, intent.Action)
	if err != nil {
		return Outcome{}, err
	}
	if !o.chains.IsDestination(intent.ToChain) {
		return Outcome{}, execerr.New(execerr.KindUnsupportedAction, "cross-chain transfers to %q are not supported", intent.ToChain)
	}
	destination, ok := o.chains.Lookup(intent.ToChain)
	if !ok {
		return Outcome{}, execerr.New(execerr.KindUnsupportedAction, "unknown chain %q", intent.ToChain)
	}
	value, err := parseAmount(intent.Amount)
	if err != nil {
		return Outcome{}, err
	}
	if minimum := o.policy.MinCrossChainAmount; minimum != nil && value.Cmp(minimum) < 0 {
		return Outcome{}, execerr.New(execerr.KindAmountTooSmall, "cross-chain amount %s is below the minimum %s", amount.FromWei(value), amount.FromWei(minimum))
	}

	if err := o.guard.EnsureChain(ctx, chain); err != nil {
		return Outcome{}, err
	}
	account, err := o.wallet.Address(ctx)
	if err != nil {
		return Outcome{}, execerr.Wrap(execerr.KindWalletUnavailable, err, "failed to get account")
	}
	recipient, err := resolveRecipient(intent.Recipient, account)
	if err != nil {
		return Outcome{}, err
	}

	resolver := precondition.New(o.wallet, submitter, o.approval, o.logger)
	if _, err := resolver.EnsureSpendable(ctx, o.contracts.WZETA, o.contracts.Connector, value); err != nil {
		return Outcome{}, err
	}

	data, err := contracts.PackSend(contracts.SendInput{
		DestinationChainId:  big.NewInt(int64(destination.ChainID)),
		DestinationAddress:  recipient.Bytes(),
		DestinationGasLimit: new(big.Int).SetUint64(o.policy.DestinationGasLimit),
		Message:             []byte{},
		ZetaValueAndGas:     value,
		ZetaParams:          []byte{},
	})
	if err != nil {
		return Outcome{}, execerr.Wrap(execerr.KindTransactionFailed, err, "failed to encode send")
	}

	o.logger.InfoWithChain(chain.ChainID, "Sending %s ZETA to %s on %s", amount.FromWei(value), recipient.Hex(), destination.Name)
	result, err := submitter.SubmitAndConfirm(ctx, wallet.CallRequest{To: o.contracts.Connector, Data: data, Step: "send"})
	return o.outcome(chain, result), err
}

func (o *Orchestrator) stakingAction(ctx context.Context, submitter txengine.Submitter, intent Intent) (Outcome, error) {
	fromChain := intent.FromChain
	if fromChain == "" {
		fromChain = config.OriginChain
	}
	chain, err := o.originChain(fromChain, intent.Action)
	if err != nil {
		return Outcome{}, err
	}
	if intent.FileID == "" {
		return Outcome{}, execerr.New(execerr.KindUnsupportedAction, "%s requires a file id", intent.Action)
	}
	contentID := staking.ContentID(intent.FileID)

	asset := o.contracts.WZETA
	if common.IsHexAddress(intent.FromToken) {
		asset = common.HexToAddress(intent.FromToken)
	}

	var value *big.Int
	if intent.Action != ActionClaim {
		if value, err = parseAmount(intent.Amount); err != nil {
			return Outcome{}, err
		}
	}

	resolver := precondition.New(o.wallet, submitter, o.approval, o.logger)
	workflow := staking.New(o.wallet, o.guard, resolver, submitter, chain, o.contracts.Manager, o.logger)

	var result txengine.TxResult
	switch intent.Action {
	case ActionStake:
		result, err = workflow.Stake(ctx, contentID, asset, value)
	case ActionUnstake:
		result, err = workflow.Unstake(ctx, contentID, asset, value)
	default:
		result, err = workflow.Claim(ctx, contentID, asset)
	}
	return o.outcome(chain, result), err
}

func (o *Orchestrator) outcome(chain config.ChainConfig, result txengine.TxResult) Outcome {
	if result.Hash == (common.Hash{}) {
		return Outcome{}
	}
	hash := result.Hash.Hex()
	return Outcome{TxHash: hash, Confirmed: result.Confirmed, ExplorerURL: chain.TxURL(hash)}
}

func (o *Orchestrator) tokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data, err := contracts.PackBalanceOf(account)
	if err != nil {
		return nil, err
	}
	out, err := o.wallet.CallContract(ctx, token, data)
	if err != nil {
		return nil, execerr.Wrap(execerr.KindWalletUnavailable, err, "failed to read token balance")
	}
	return contracts.UnpackUint256(out)
}

// sessionSubmitter stops submitting once the session is cancelled and tracks whether
// anything reached the wallet
type sessionSubmitter struct {
	inner   txengine.Submitter
	session *Session
}

func (s *sessionSubmitter) SubmitAndConfirm(ctx context.Context, req wallet.CallRequest) (txengine.TxResult, error) {
	if s.session.cancelRequested() {
		return txengine.TxResult{}, fmt.Errorf("%w before %s", errCancelled, req.Step)
	}
	prev := s.session.beginSubmit()
	result, err := s.inner.SubmitAndConfirm(ctx, req)
	if err != nil && result.Hash == (common.Hash{}) && !prev {
		s.session.clearSubmitted()
	}
	if err == nil && s.session.cancelRequested() {
		return result, fmt.Errorf("%w after %s", errCancelled, req.Step)
	}
	return result, err
}
