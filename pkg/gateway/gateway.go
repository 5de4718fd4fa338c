// Package gateway sends TalkToEarn messages from a connected EVM chain to the manager on ZetaChain.
package gateway

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zetaflow/intentd/pkg/contracts"
	"github.com/zetaflow/intentd/pkg/execerr"
	"github.com/zetaflow/intentd/pkg/logger"
	"github.com/zetaflow/intentd/pkg/metrics"
	"github.com/zetaflow/intentd/pkg/txengine"
	"github.com/zetaflow/intentd/pkg/wallet"
)

// StepGatewayCall labels the GatewayEVM.call submission
const StepGatewayCall = "gateway_call"

// Client calls GatewayEVM on whichever chain the wallet is on
type Client struct {
	wallet    wallet.Wallet
	submitter txengine.Submitter
	gateways  map[int]common.Address
	receiver  common.Address
	logger    logger.Logger
}

// New creates a client; gateways maps a source chain id to its GatewayEVM and receiver is the
// universal contract on ZetaChain that handles the message.
func New(w wallet.Wallet, submitter txengine.Submitter, gateways map[int]common.Address, receiver common.Address, log logger.Logger) *Client {
	return &Client{
		wallet:    w,
		submitter: submitter,
		gateways:  gateways,
		receiver:  receiver,
		logger:    log,
	}
}

// GatewayFor returns the gateway configured for chainID
func (c *Client) GatewayFor(chainID int) (common.Address, bool) {
	addr, ok := c.gateways[chainID]
	return addr, ok && addr != (common.Address{})
}

// TalkToEarn forwards message to the receiver through the gateway of the active chain.
// No revert handling is requested.
func (c *Client) TalkToEarn(ctx context.Context, message string) (txengine.TxResult, error) {
	if strings.TrimSpace(message) == "" {
		return txengine.TxResult{}, execerr.New(execerr.KindPreconditionFailed, "message is empty")
	}
	if c.wallet == nil {
		return txengine.TxResult{}, execerr.New(execerr.KindWalletUnavailable, "no wallet connected")
	}
	if _, err := c.wallet.Address(ctx); err != nil {
		return txengine.TxResult{}, execerr.Wrap(execerr.KindWalletUnavailable, err, "wallet has no account")
	}

	chainID, err := c.wallet.ActiveChain(ctx)
	if err != nil {
		return txengine.TxResult{}, execerr.Wrap(execerr.KindWalletUnavailable, err, "failed to read active chain")
	}
	gateway, ok := c.GatewayFor(chainID)
	if !ok {
		return txengine.TxResult{}, execerr.New(execerr.KindUnsupportedAction, "no gateway configured for chain %d", chainID)
	}

	data, err := contracts.PackGatewayCall(c.receiver, []byte(message), contracts.RevertOptions{
		RevertMessage:    []byte{},
		OnRevertGasLimit: new(big.Int),
	})
	if err != nil {
		return txengine.TxResult{}, execerr.Wrap(execerr.KindTransactionFailed, err, "failed to encode gateway call")
	}

	c.logger.InfoWithChain(chainID, "Sending TalkToEarn message through gateway %s", gateway.Hex())
	result, err := c.submitter.SubmitAndConfirm(ctx, wallet.CallRequest{
		To:   gateway,
		Data: data,
		Step: StepGatewayCall,
	})
	if err != nil {
		return txengine.TxResult{}, err
	}
	metrics.IntentsExecuted.WithLabelValues("talk", "success").Inc()
	return result, nil
}
