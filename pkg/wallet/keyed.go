package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/zetaflow/intentd/pkg/logger"
)

// Backend is the subset of ethclient used by KeyedWallet
type Backend interface {
	bind.ContractBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// DialFunc connects to an RPC endpoint
type DialFunc func(ctx context.Context, rpcURL string) (Backend, error)

// gasLimitMultiplier pads estimates the same way for every step
const gasLimitMultiplier = 1.2

// DefaultReceiptPollInterval is how often WaitReceipt polls the node
const DefaultReceiptPollInterval = 2 * time.Second

// KeyedWallet is a wallet backed by a local private key and one RPC connection per chain.
// The active chain is the connection currently selected by SwitchChain.
type KeyedWallet struct {
	key          *ecdsa.PrivateKey
	address      common.Address
	rpcURLs      map[int]string
	dial         DialFunc
	pollInterval time.Duration
	logger       logger.Logger

	mu      sync.Mutex
	clients map[int]Backend
	auths   map[int]*bind.TransactOpts
	active  int
}

var _ Wallet = (*KeyedWallet)(nil)

// NewKeyedWallet creates a wallet for privateKeyHex; rpcURLs maps chain ids to endpoints.
// No connection is opened until the first SwitchChain.
func NewKeyedWallet(privateKeyHex string, rpcURLs map[int]string, log logger.Logger) (*KeyedWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %v", err)
	}
	return &KeyedWallet{
		key:          key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		rpcURLs:      rpcURLs,
		dial:         dialEthclient,
		pollInterval: DefaultReceiptPollInterval,
		logger:       log,
		clients:      make(map[int]Backend),
		auths:        make(map[int]*bind.TransactOpts),
	}, nil
}

// WithBackend registers an already connected backend for chainID, mostly for tests
func (w *KeyedWallet) WithBackend(chainID int, backend Backend) *KeyedWallet {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clients[chainID] = backend
	return w
}

// WithPollInterval overrides the receipt poll interval
func (w *KeyedWallet) WithPollInterval(d time.Duration) *KeyedWallet {
	w.pollInterval = d
	return w
}

func dialEthclient(ctx context.Context, rpcURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (w *KeyedWallet) Address(_ context.Context) (common.Address, error) {
	return w.address, nil
}

func (w *KeyedWallet) ActiveChain(_ context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active, nil
}

// SwitchChain selects chainID, dialing it on first use and checking the remote chain id
func (w *KeyedWallet) SwitchChain(ctx context.Context, chainID int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.clients[chainID]; !ok {
		rpcURL, ok := w.rpcURLs[chainID]
		if !ok {
			return fmt.Errorf("chain %d is not configured", chainID)
		}
		backend, err := w.dial(ctx, rpcURL)
		if err != nil {
			return fmt.Errorf("failed to connect to chain %d: %v", chainID, err)
		}
		w.clients[chainID] = backend
	}

	if _, ok := w.auths[chainID]; !ok {
		auth, err := w.createAuthenticator(ctx, w.clients[chainID], chainID)
		if err != nil {
			return err
		}
		w.auths[chainID] = auth
	}

	w.active = chainID
	w.logger.DebugWithChain(chainID, "Wallet %s switched to chain %d", w.address.Hex(), chainID)
	return nil
}

// createAuthenticator builds a transactor and verifies the endpoint serves chainID
func (w *KeyedWallet) createAuthenticator(ctx context.Context, backend Backend, chainID int) (*bind.TransactOpts, error) {
	remoteID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %v", err)
	}
	if remoteID.Int64() != int64(chainID) {
		return nil, fmt.Errorf("endpoint for chain %d reports chain %s", chainID, remoteID)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(w.key, remoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %v", err)
	}
	return auth, nil
}

func (w *KeyedWallet) backend() (Backend, *bind.TransactOpts, int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	backend, ok := w.clients[w.active]
	if !ok || w.active == 0 {
		return nil, nil, 0, fmt.Errorf("no active chain selected")
	}
	return backend, w.auths[w.active], w.active, nil
}

func (w *KeyedWallet) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	backend, _, _, err := w.backend()
	if err != nil {
		return nil, err
	}
	return backend.BalanceAt(ctx, account, nil)
}

func (w *KeyedWallet) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	backend, _, _, err := w.backend()
	if err != nil {
		return nil, err
	}
	return backend.CallContract(ctx, ethereum.CallMsg{From: w.address, To: &to, Data: data}, nil)
}

func (w *KeyedWallet) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	backend, _, _, err := w.backend()
	if err != nil {
		return nil, err
	}
	return backend.SuggestGasPrice(ctx)
}

// Send builds, signs and broadcasts a legacy transaction on the active chain
func (w *KeyedWallet) Send(ctx context.Context, req CallRequest) (common.Hash, error) {
	backend, auth, chainID, err := w.backend()
	if err != nil {
		return common.Hash{}, err
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		to := req.To
		estimate, err := backend.EstimateGas(ctx, ethereum.CallMsg{
			From:     w.address,
			To:       &to,
			GasPrice: gasPrice,
			Value:    value,
			Data:     req.Data,
		})
		if err != nil {
			// keep the provider error intact so revert data survives
			return common.Hash{}, fmt.Errorf("failed to estimate gas for %s: %w", req.Step, err)
		}
		gasLimit = uint64(float64(estimate) * gasLimitMultiplier)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &req.To,
		Value:    value,
		Data:     req.Data,
	})
	signed, err := auth.Signer(w.address, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send %s transaction: %w", req.Step, err)
	}

	w.logger.DebugWithChain(chainID, "Sent %s transaction %s (nonce %d, gas %d)", req.Step, signed.Hash().Hex(), nonce, gasLimit)
	return signed.Hash(), nil
}

// WaitReceipt polls for the receipt until it exists, ctx ends, or the provider fails
func (w *KeyedWallet) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	backend, _, _, err := w.backend()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
