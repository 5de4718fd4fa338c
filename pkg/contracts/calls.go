package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// SendInput is the connector send tuple
type SendInput struct {
	DestinationChainId  *big.Int `abi:"destinationChainId"`
	DestinationAddress  []byte   `abi:"destinationAddress"`
	DestinationGasLimit *big.Int `abi:"destinationGasLimit"`
	Message             []byte   `abi:"message"`
	ZetaValueAndGas     *big.Int `abi:"zetaValueAndGas"`
	ZetaParams          []byte   `abi:"zetaParams"`
}

// RevertOptions is the GatewayEVM revert configuration tuple
type RevertOptions struct {
	RevertAddress    common.Address `abi:"revertAddress"`
	CallOnRevert     bool           `abi:"callOnRevert"`
	AbortAddress     common.Address `abi:"abortAddress"`
	RevertMessage    []byte         `abi:"revertMessage"`
	OnRevertGasLimit *big.Int       `abi:"onRevertGasLimit"`
}

// PackDeposit encodes WZETA.deposit()
func PackDeposit() ([]byte, error) {
	return wzetaABI.Pack("deposit")
}

// PackApprove encodes WZETA.approve(spender, amount)
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return wzetaABI.Pack("approve", spender, amount)
}

// PackAllowance encodes WZETA.allowance(owner, spender)
func PackAllowance(owner, spender common.Address) ([]byte, error) {
	return wzetaABI.Pack("allowance", owner, spender)
}

// PackBalanceOf encodes WZETA.balanceOf(account)
func PackBalanceOf(account common.Address) ([]byte, error) {
	return wzetaABI.Pack("balanceOf", account)
}

// PackTransfer encodes WZETA.transfer(to, amount)
func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return wzetaABI.Pack("transfer", to, amount)
}

// PackSend encodes Connector.send(input)
func PackSend(input SendInput) ([]byte, error) {
	return connectorABI.Pack("send", input)
}

// PackStake encodes Manager.stake(contentId, asset, amount)
func PackStake(contentID [32]byte, asset common.Address, amount *big.Int) ([]byte, error) {
	return managerABI.Pack("stake", contentID, asset, amount)
}

// PackUnstake encodes Manager.unstake(contentId, asset, amount)
func PackUnstake(contentID [32]byte, asset common.Address, amount *big.Int) ([]byte, error) {
	return managerABI.Pack("unstake", contentID, asset, amount)
}

// PackClaim encodes Manager.claim(contentId, asset)
func PackClaim(contentID [32]byte, asset common.Address) ([]byte, error) {
	return managerABI.Pack("claim", contentID, asset)
}

// PackStakes encodes the Manager.stakes(contentId, asset, account) view
func PackStakes(contentID [32]byte, asset, account common.Address) ([]byte, error) {
	return managerABI.Pack("stakes", contentID, asset, account)
}

// PackNFTBalanceOf encodes NFT.balanceOf(owner)
func PackNFTBalanceOf(owner common.Address) ([]byte, error) {
	return nftABI.Pack("balanceOf", owner)
}

// PackGatewayCall encodes GatewayEVM.call(receiver, payload, revertOptions)
func PackGatewayCall(receiver common.Address, payload []byte, opts RevertOptions) ([]byte, error) {
	return gatewayABI.Pack("call", receiver, payload, opts)
}

// UnpackUint256 decodes the single uint256 returned by a view such as balanceOf, allowance or stakes
func UnpackUint256(output []byte) (*big.Int, error) {
	if len(output) < 32 {
		return nil, fmt.Errorf("unexpected return data length %d", len(output))
	}
	return new(big.Int).SetBytes(output[:32]), nil
}

// Call is a decoded contract call
type Call struct {
	Method string
	Args   []interface{}
}

// DecodeCall resolves calldata against every known ABI. Used by the journal and by test wallets.
func DecodeCall(data []byte) (Call, error) {
	if len(data) < 4 {
		return Call{}, fmt.Errorf("calldata too short")
	}
	for _, parsed := range []abi.ABI{wzetaABI, connectorABI, managerABI, gatewayABI} {
		method, err := parsed.MethodById(data[:4])
		if err != nil {
			continue
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return Call{}, fmt.Errorf("failed to unpack %s: %w", method.Name, err)
		}
		return Call{Method: method.Name, Args: args}, nil
	}
	return Call{}, fmt.Errorf("unknown selector %x", data[:4])
}
