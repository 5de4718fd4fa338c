package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zetaflow/intentd/pkg/logger"
)

const testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PRIVATE_KEY", testPrivateKey)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, testnet, cfg.Network)
	zeta, ok := cfg.Chains.Lookup("zetachain")
	require.True(t, ok)
	assert.Equal(t, ZetaChainAthensChainID, zeta.ChainID)
	assert.True(t, cfg.Chains.IsDestination("bsc"))
	assert.False(t, cfg.Chains.IsDestination("zetachain"))

	assert.Equal(t, common.HexToAddress(AthensWZETAAddress), cfg.Contracts.WZETA)
	assert.Equal(t, common.HexToAddress(AthensConnectorAddress), cfg.Contracts.Connector)
	assert.Equal(t, common.HexToAddress(BSCTestnetGatewayAddress), cfg.Contracts.Gateways[BSCTestnetChainID])

	assert.Equal(t, "230000000000000000", cfg.Policy.MinCrossChainAmount.String())
	assert.Equal(t, uint64(500000), cfg.Policy.DestinationGasLimit)
	assert.Equal(t, "10000100000", cfg.Policy.FallbackGasPrice.String())
	assert.Equal(t, 5, cfg.Policy.ConfirmMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Policy.ConfirmInitialDelay)
	assert.Equal(t, "memory", cfg.Notify.Transport)
	assert.Equal(t, logger.InfoLevel, cfg.LoggerConfig.Level)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PRIVATE_KEY", testPrivateKey)
	t.Setenv("MIN_CROSS_CHAIN_AMOUNT", "1e-1")
	t.Setenv("DESTINATION_GAS_LIMIT", "750000")
	t.Setenv("APPROVAL_POLICY", "infinite")
	t.Setenv("CONFIRM_INITIAL_DELAY", "500ms")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ZETACHAIN_RPC_URL", "http://localhost:8545")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "100000000000000000", cfg.Policy.MinCrossChainAmount.String())
	assert.Equal(t, uint64(750000), cfg.Policy.DestinationGasLimit)
	assert.Equal(t, "infinite", cfg.Policy.ApprovalPolicy)
	assert.Equal(t, 500*time.Millisecond, cfg.Policy.ConfirmInitialDelay)
	assert.Equal(t, logger.DebugLevel, cfg.LoggerConfig.Level)
	zeta, _ := cfg.Chains.Lookup(OriginChain)
	assert.Equal(t, "http://localhost:8545", zeta.RPCURL)
}

func TestLoadConfigValidation(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{"missing private key", map[string]string{}},
		{"bad network", map[string]string{"PRIVATE_KEY": testPrivateKey, "NETWORK": "devnet"}},
		{"mainnet without contracts", map[string]string{"PRIVATE_KEY": testPrivateKey, "NETWORK": "mainnet"}},
		{"bad min amount", map[string]string{"PRIVATE_KEY": testPrivateKey, "MIN_CROSS_CHAIN_AMOUNT": "abc"}},
		{"bad approval policy", map[string]string{"PRIVATE_KEY": testPrivateKey, "APPROVAL_POLICY": "always"}},
		{"bad address", map[string]string{"PRIVATE_KEY": testPrivateKey, "WZETA_ADDRESS": "0x123"}},
		{"amqp without url", map[string]string{"PRIVATE_KEY": testPrivateKey, "NOTIFY_TRANSPORT": "amqp"}},
		{"bad duration", map[string]string{"PRIVATE_KEY": testPrivateKey, "CHAIN_SWITCH_SETTLE": "soon"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("PRIVATE_KEY", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestChainsFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	content := `chains:
  zetachain:
    rpc_url: http://127.0.0.1:9545
  bsc:
    chain_id: 56
    name: BNB Smart Chain
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	defaults, err := GetEnvChains(testnet)
	require.NoError(t, err)
	merged, err := applyChainsFile(path, defaults)
	require.NoError(t, err)

	registry := NewChainRegistry(merged, BSCChain)
	zeta, ok := registry.Lookup("ZetaChain")
	require.True(t, ok)
	assert.Equal(t, "http://127.0.0.1:9545", zeta.RPCURL)
	assert.Equal(t, ZetaChainAthensChainID, zeta.ChainID)

	bsc, ok := registry.ByChainID(56)
	require.True(t, ok)
	assert.Equal(t, "BNB Smart Chain", bsc.Name)
	assert.Equal(t, "https://testnet.bscscan.com", bsc.ExplorerURL)

	assert.Len(t, registry.All(), 2)
	assert.Equal(t, "https://testnet.bscscan.com/tx/0xabc", bsc.TxURL("0xabc"))
}
