// Package wallettest provides an in-memory wallet that simulates the WZETA,
// connector and manager contracts closely enough to drive orchestrator tests.
package wallettest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/zetaflow/intentd/pkg/contracts"
	"github.com/zetaflow/intentd/pkg/wallet"
)

// DefaultAccount is the account used by NewWallet
var DefaultAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

// SentCall is one Send observed by the wallet
type SentCall struct {
	ChainID  int
	Step     string
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
	Method   string
	Hash     common.Hash
}

// Wallet is a scripted, thread-safe wallet.Wallet
type Wallet struct {
	mu sync.Mutex

	Account common.Address
	Chain   int
	WZETA   common.Address

	// Native balance per chain
	Native map[int]*big.Int
	// Token balances of Account keyed by token contract
	Tokens map[common.Address]*big.Int
	// Allowances keyed by token then spender
	Allowances map[common.Address]map[common.Address]*big.Int
	Stakes     map[[32]byte]*big.Int

	GasPrice    *big.Int
	GasPriceErr error

	// SwitchErr makes SwitchChain fail; SwitchLag makes it succeed without taking effect
	SwitchErr error
	SwitchLag bool

	// SendErrs fails Send for the given step
	SendErrs map[string]error
	// RevertSteps produces a failed receipt for the given step
	RevertSteps map[string]bool
	// WaitErrs are returned by successive WaitReceipt calls before a receipt is produced
	WaitErrs []error

	Calls     []SentCall
	Switches  []int
	WaitCalls int

	// OnSend runs after a call is recorded, before it is applied
	OnSend func(call SentCall)

	nonce uint64
}

var _ wallet.Wallet = (*Wallet)(nil)

// NewWallet returns a wallet on chainID holding native wei
func NewWallet(chainID int, wzeta common.Address, native *big.Int) *Wallet {
	return &Wallet{
		Account:     DefaultAccount,
		Chain:       chainID,
		WZETA:       wzeta,
		Native:      map[int]*big.Int{chainID: new(big.Int).Set(native)},
		Tokens:      make(map[common.Address]*big.Int),
		Allowances:  make(map[common.Address]map[common.Address]*big.Int),
		Stakes:      make(map[[32]byte]*big.Int),
		GasPrice:    big.NewInt(10_000_000_000),
		SendErrs:    make(map[string]error),
		RevertSteps: make(map[string]bool),
	}
}

// SetToken sets the account balance of token
func (w *Wallet) SetToken(token common.Address, amount *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Tokens[token] = new(big.Int).Set(amount)
}

// SetAllowance sets the allowance granted to spender over token
func (w *Wallet) SetAllowance(token, spender common.Address, amount *big.Int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.allowanceLocked(token)[spender] = new(big.Int).Set(amount)
}

// Steps returns the Step label of every sent call, in order
func (w *Wallet) Steps() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	steps := make([]string, 0, len(w.Calls))
	for _, c := range w.Calls {
		steps = append(steps, c.Step)
	}
	return steps
}

// NativeBalance returns the native balance on chainID
func (w *Wallet) NativeBalance(chainID int) *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.nativeLocked(chainID))
}

// TokenBalance returns the account balance of token
func (w *Wallet) TokenBalance(token common.Address) *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.tokenLocked(token))
}

func (w *Wallet) Address(_ context.Context) (common.Address, error) {
	if w.Account == (common.Address{}) {
		return common.Address{}, wallet.ErrNoAccount
	}
	return w.Account, nil
}

func (w *Wallet) ActiveChain(_ context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Chain, nil
}

func (w *Wallet) SwitchChain(_ context.Context, chainID int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Switches = append(w.Switches, chainID)
	if w.SwitchErr != nil {
		return w.SwitchErr
	}
	if !w.SwitchLag {
		w.Chain = chainID
	}
	return nil
}

func (w *Wallet) BalanceAt(_ context.Context, _ common.Address) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return new(big.Int).Set(w.nativeLocked(w.Chain)), nil
}

func (w *Wallet) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	if w.GasPriceErr != nil {
		return nil, w.GasPriceErr
	}
	return w.GasPrice, nil
}

// CallContract answers the balanceOf, allowance and stakes views
func (w *Wallet) CallContract(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(data) >= 4 {
		// NFT balanceOf shares the ERC20 selector, answer it from Tokens keyed by the NFT address
		if balanceOf, _ := contracts.PackBalanceOf(common.Address{}); string(balanceOf[:4]) == string(data[:4]) {
			return word(w.tokenLocked(to)), nil
		}
	}

	call, err := contracts.DecodeCall(data)
	if err != nil {
		return nil, err
	}
	switch call.Method {
	case "allowance":
		spender := call.Args[1].(common.Address)
		return word(w.allowanceOf(to, spender)), nil
	case "stakes":
		contentID := call.Args[0].([32]byte)
		return word(w.stakeLocked(contentID)), nil
	}
	return nil, fmt.Errorf("unsupported view %s", call.Method)
}

// Send records the call and applies its effect to the simulated state
func (w *Wallet) Send(_ context.Context, req wallet.CallRequest) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.SendErrs[req.Step]; err != nil {
		return common.Hash{}, err
	}

	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}
	w.nonce++
	call := SentCall{
		ChainID:  w.Chain,
		Step:     req.Step,
		To:       req.To,
		Value:    value,
		Data:     req.Data,
		GasLimit: req.GasLimit,
		Hash:     common.BigToHash(new(big.Int).SetUint64(w.nonce)),
	}
	if len(req.Data) > 0 {
		if decoded, err := contracts.DecodeCall(req.Data); err == nil {
			call.Method = decoded.Method
			if !w.RevertSteps[req.Step] {
				if err := w.applyLocked(req.To, value, decoded); err != nil {
					return common.Hash{}, err
				}
			}
		}
	} else if !w.RevertSteps[req.Step] {
		native := w.nativeLocked(w.Chain)
		if native.Cmp(value) < 0 {
			return common.Hash{}, errors.New("insufficient funds for transfer")
		}
		native.Sub(native, value)
	}

	w.Calls = append(w.Calls, call)
	if w.OnSend != nil {
		w.OnSend(call)
	}
	return call.Hash, nil
}

// WaitReceipt pops a scripted error if any, otherwise returns a receipt for hash
func (w *Wallet) WaitReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.WaitCalls++
	if len(w.WaitErrs) > 0 {
		err := w.WaitErrs[0]
		w.WaitErrs = w.WaitErrs[1:]
		return nil, err
	}

	status := types.ReceiptStatusSuccessful
	for _, c := range w.Calls {
		if c.Hash == hash && w.RevertSteps[c.Step] {
			status = types.ReceiptStatusFailed
		}
	}
	return &types.Receipt{TxHash: hash, Status: status, GasUsed: 21000}, nil
}

func (w *Wallet) applyLocked(to common.Address, value *big.Int, call contracts.Call) error {
	switch call.Method {
	case "deposit":
		native := w.nativeLocked(w.Chain)
		if native.Cmp(value) < 0 {
			return errors.New("insufficient funds for deposit")
		}
		native.Sub(native, value)
		token := w.tokenLocked(to)
		token.Add(token, value)
	case "approve":
		spender := call.Args[0].(common.Address)
		w.allowanceLocked(to)[spender] = new(big.Int).Set(call.Args[1].(*big.Int))
	case "transfer":
		token := w.tokenLocked(to)
		token.Sub(token, call.Args[1].(*big.Int))
	case "send":
		input := *abi.ConvertType(call.Args[0], new(contracts.SendInput)).(*contracts.SendInput)
		w.spendLocked(w.WZETA, to, input.ZetaValueAndGas)
	case "stake":
		contentID, asset, amt := call.Args[0].([32]byte), call.Args[1].(common.Address), call.Args[2].(*big.Int)
		w.spendLocked(asset, to, amt)
		stake := w.stakeLocked(contentID)
		stake.Add(stake, amt)
	case "unstake":
		contentID, asset, amt := call.Args[0].([32]byte), call.Args[1].(common.Address), call.Args[2].(*big.Int)
		stake := w.stakeLocked(contentID)
		stake.Sub(stake, amt)
		token := w.tokenLocked(asset)
		token.Add(token, amt)
	}
	return nil
}

// spendLocked moves amount of token from the account to spender against the allowance
func (w *Wallet) spendLocked(token, spender common.Address, amt *big.Int) {
	balance := w.tokenLocked(token)
	balance.Sub(balance, amt)
	allowance := w.allowanceOf(token, spender)
	w.allowanceLocked(token)[spender] = new(big.Int).Sub(allowance, amt)
}

func (w *Wallet) nativeLocked(chainID int) *big.Int {
	if w.Native[chainID] == nil {
		w.Native[chainID] = new(big.Int)
	}
	return w.Native[chainID]
}

func (w *Wallet) tokenLocked(token common.Address) *big.Int {
	if w.Tokens[token] == nil {
		w.Tokens[token] = new(big.Int)
	}
	return w.Tokens[token]
}

func (w *Wallet) allowanceLocked(token common.Address) map[common.Address]*big.Int {
	if w.Allowances[token] == nil {
		w.Allowances[token] = make(map[common.Address]*big.Int)
	}
	return w.Allowances[token]
}

func (w *Wallet) allowanceOf(token, spender common.Address) *big.Int {
	if a := w.allowanceLocked(token)[spender]; a != nil {
		return a
	}
	return new(big.Int)
}

func (w *Wallet) stakeLocked(contentID [32]byte) *big.Int {
	if w.Stakes[contentID] == nil {
		w.Stakes[contentID] = new(big.Int)
	}
	return w.Stakes[contentID]
}

func word(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}
