package orchestrator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zetaflow/intentd/pkg/config"
	"github.com/zetaflow/intentd/pkg/contracts"
	"github.com/zetaflow/intentd/pkg/execerr"
)

// Balances is a snapshot of the account on the active chain
type Balances struct {
	ChainID int      `json:"chain_id"`
	Account string   `json:"account"`
	Native  *big.Int `json:"native"`
	Wrapped *big.Int `json:"wrapped"`
	NFT     *big.Int `json:"nft"`
}

// Balances reads native, WZETA and badge NFT balances. Token balances are only
// read on the origin chain and the NFT only on Athens, where it is deployed.
func (o *Orchestrator) Balances(ctx context.Context) (Balances, error) {
	account, err := o.wallet.Address(ctx)
	if err != nil {
		return Balances{}, execerr.Wrap(execerr.KindWalletUnavailable, err, "failed to get account")
	}
	chainID, err := o.wallet.ActiveChain(ctx)
	if err != nil {
		return Balances{}, execerr.Wrap(execerr.KindWalletUnavailable, err, "failed to read active chain")
	}

	b := Balances{
		ChainID: chainID,
		Account: account.Hex(),
		Wrapped: new(big.Int),
		NFT:     new(big.Int),
	}
	if b.Native, err = o.wallet.BalanceAt(ctx, account); err != nil {
		return Balances{}, execerr.Wrap(execerr.KindWalletUnavailable, err, "failed to read balance")
	}

	origin, ok := o.chains.Lookup(config.OriginChain)
	if !ok || origin.ChainID != chainID {
		return b, nil
	}
	if b.Wrapped, err = o.tokenBalance(ctx, o.contracts.WZETA, account); err != nil {
		return Balances{}, err
	}

	if chainID == config.ZetaChainAthensChainID && o.contracts.NFT != (common.Address{}) {
		data, err := contracts.PackNFTBalanceOf(account)
		if err != nil {
			return Balances{}, err
		}
		out, err := o.wallet.CallContract(ctx, o.contracts.NFT, data)
		if err != nil {
			o.logger.ErrorWithChain(chainID, "Failed to read NFT balance: %v", err)
			return b, nil
		}
		if b.NFT, err = contracts.UnpackUint256(out); err != nil {
			return Balances{}, err
		}
	}
	return b, nil
}
