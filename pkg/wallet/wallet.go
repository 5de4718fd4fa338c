// Package wallet defines the wallet provider boundary used by the orchestrator.
package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrNoAccount is returned when the wallet has no unlocked account
var ErrNoAccount = errors.New("wallet has no account")

// CallRequest describes one state-changing call
type CallRequest struct {
	To    common.Address
	Data  []byte
	Value *big.Int
	// GasLimit of 0 lets the wallet estimate
	GasLimit uint64
	// Step labels the call in logs and metrics (wrap, approve, transfer, send, stake ...)
	Step string
}

// Wallet is the capability set of a connected wallet. Every method is a suspension point.
type Wallet interface {
	Address(ctx context.Context) (common.Address, error)
	ActiveChain(ctx context.Context) (int, error)
	SwitchChain(ctx context.Context, chainID int) error
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// Send signs and broadcasts req on the active chain and returns the hash immediately
	Send(ctx context.Context, req CallRequest) (common.Hash, error)
	// WaitReceipt blocks until the receipt is available; provider errors are returned as-is
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}
