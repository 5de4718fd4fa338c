// Package contracts holds the ABIs of the fixed external contracts and typed calldata helpers.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// WZETAABI covers the wrapped ZETA (WETH9-style) functions used by the resolver
const WZETAABI = `[
	{"inputs":[],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// ConnectorABI is the ZetaChain connector send entry point
const ConnectorABI = `[
	{"inputs":[{"components":[
		{"name":"destinationChainId","type":"uint256"},
		{"name":"destinationAddress","type":"bytes"},
		{"name":"destinationGasLimit","type":"uint256"},
		{"name":"message","type":"bytes"},
		{"name":"zetaValueAndGas","type":"uint256"},
		{"name":"zetaParams","type":"bytes"}
	],"name":"input","type":"tuple"}],"name":"send","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// ManagerABI is the TalkToEarn staking manager
const ManagerABI = `[
	{"inputs":[{"name":"contentId","type":"bytes32"},{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"name":"stake","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"contentId","type":"bytes32"},{"name":"asset","type":"address"},{"name":"amount","type":"uint256"}],"name":"unstake","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"contentId","type":"bytes32"},{"name":"asset","type":"address"}],"name":"claim","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"contentId","type":"bytes32"},{"name":"asset","type":"address"},{"name":"account","type":"address"}],"name":"stakes","outputs":[{"name":"amount","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// NFTABI is the read-only subset of the TalkToEarn badge NFT
const NFTABI = `[
	{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// GatewayABI is the GatewayEVM call entry point on connected chains
const GatewayABI = `[
	{"inputs":[
		{"name":"receiver","type":"address"},
		{"name":"payload","type":"bytes"},
		{"components":[
			{"name":"revertAddress","type":"address"},
			{"name":"callOnRevert","type":"bool"},
			{"name":"abortAddress","type":"address"},
			{"name":"revertMessage","type":"bytes"},
			{"name":"onRevertGasLimit","type":"uint256"}
		],"name":"revertOptions","type":"tuple"}
	],"name":"call","outputs":[],"stateMutability":"payable","type":"function"}
]`

var (
	wzetaABI     = mustParse(WZETAABI)
	connectorABI = mustParse(ConnectorABI)
	managerABI   = mustParse(ManagerABI)
	nftABI       = mustParse(NFTABI)
	gatewayABI   = mustParse(GatewayABI)
)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("contracts: invalid ABI: " + err.Error())
	}
	return parsed
}
