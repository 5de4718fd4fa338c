package config

import (
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zetaflow/intentd/pkg/amount"
	"github.com/zetaflow/intentd/pkg/logger"
)

const (
	mainnet = "mainnet"
	testnet = "testnet"

	// DefaultNetwork is the default network; the reference contracts are deployed on Athens
	DefaultNetwork = testnet

	// DefaultMinCrossChainAmount is the smallest ZETA amount the connector accepts for a cross-chain send
	DefaultMinCrossChainAmount = "0.23"

	// DefaultDestinationGasLimit is the gas limit forwarded to the destination chain
	DefaultDestinationGasLimit = 500000

	// DefaultFallbackGasPrice is used for fee estimation when the provider cannot suggest one
	DefaultFallbackGasPrice = "10000100000"

	// DefaultApprovalPolicy is the allowance policy of the precondition resolver
	DefaultApprovalPolicy = "exact"

	// DefaultChainSwitchSettle is the wait after a chain switch before it is re-checked
	DefaultChainSwitchSettle = 1200 * time.Millisecond

	// DefaultConfirmMaxAttempts bounds confirmation waits under rate limiting
	DefaultConfirmMaxAttempts = 5

	// DefaultConfirmInitialDelay is the first backoff delay; it doubles on every retry
	DefaultConfirmInitialDelay = 2 * time.Second

	// DefaultGasPriceCacheTTL is how long a suggested gas price is reused
	DefaultGasPriceCacheTTL = 15 * time.Second

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 60 * time.Second

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 5 * time.Minute

	// DefaultNotifyTransport selects the in-process notification transport
	DefaultNotifyTransport = "memory"

	// DefaultIntentQueue and DefaultConfirmQueue name the bridge queues on redis and amqp
	DefaultIntentQueue  = "intentd:intents"
	DefaultConfirmQueue = "intentd:confirmations"

	// DefaultJournalPath is the sqlite file of the execution journal
	DefaultJournalPath = "data/journal.db"

	// Athens testnet contracts

	AthensWZETAAddress     = "0x5F0b1a82749cb4E2278EC87F8BF6B618dC71a8bf"
	AthensConnectorAddress = "0x239e96c8f17C85c30100AC26F635Ea15f23E9c67"
	AthensManagerAddress   = "0xD7BF0f6Ec8Cb9b8f334cfe012D1021d54Dc273b4"
	AthensNFTAddress       = "0xB7277D1C77B6239910f0F67ad72A23cB13a6Df66"

	// GatewayEVM contracts on the BSC side

	BSCTestnetGatewayAddress = "0x0c487a766110c85d301d96e33579c5b317fa4995"
	BSCMainnetGatewayAddress = "0x48B9AACC350b20147001f88821d31731Ba4C30ed"

	// ZetaChain

	ZetaChainMainnetChainID = 7000
	ZetaChainAthensChainID  = 7001

	DefaultZetaChainMainnetRPCURL = "https://zetachain-evm.blockpi.network/v1/rpc/public"
	DefaultZetaChainAthensRPCURL  = "https://zetachain-athens-evm.blockpi.network/v1/rpc/public"

	// Binance Smart Chain (BSC)

	BSCMainnetChainID = 56
	BSCTestnetChainID = 97

	DefaultBSCMainnetRPCURL = "https://bsc-dataseed.bnbchain.org"
	DefaultBSCTestnetRPCURL = "https://data-seed-prebsc-1-s1.bnbchain.org:8545"
)

// GetEnvNetwork returns the configured network from environment variables or defaults to testnet
func GetEnvNetwork() (string, error) {
	network := os.Getenv("NETWORK")
	if network == "" {
		network = DefaultNetwork
	}

	if network != mainnet && network != testnet {
		return "", fmt.Errorf("invalid NETWORK value: %s, must be 'mainnet' or 'testnet'", network)
	}

	return network, nil
}

// GetEnvChains returns the default chain set for network, with RPC URLs overridable by environment
func GetEnvChains(network string) ([]ChainConfig, error) {
	zeta := ChainConfig{
		Identifier:   OriginChain,
		ChainID:      ZetaChainAthensChainID,
		Name:         "ZetaChain Athens Testnet",
		RPCURL:       DefaultZetaChainAthensRPCURL,
		ExplorerURL:  "https://athens.explorer.zetachain.com",
		NativeSymbol: "ZETA",
	}
	bsc := ChainConfig{
		Identifier:   BSCChain,
		ChainID:      BSCTestnetChainID,
		Name:         "BSC Testnet",
		RPCURL:       DefaultBSCTestnetRPCURL,
		ExplorerURL:  "https://testnet.bscscan.com",
		NativeSymbol: "tBNB",
	}
	if network == mainnet {
		zeta.ChainID = ZetaChainMainnetChainID
		zeta.Name = "ZetaChain"
		zeta.RPCURL = DefaultZetaChainMainnetRPCURL
		zeta.ExplorerURL = "https://explorer.zetachain.com"

		bsc.ChainID = BSCMainnetChainID
		bsc.Name = "BNB Smart Chain"
		bsc.RPCURL = DefaultBSCMainnetRPCURL
		bsc.ExplorerURL = "https://bscscan.com"
		bsc.NativeSymbol = "BNB"
	}

	for _, c := range []*ChainConfig{&zeta, &bsc} {
		envKey := strings.ToUpper(c.Identifier) + "_RPC_URL"
		if rpc := os.Getenv(envKey); rpc != "" {
			if _, err := url.ParseRequestURI(rpc); err != nil {
				return nil, fmt.Errorf("invalid %s value: %s, must be a valid URL", envKey, rpc)
			}
			c.RPCURL = rpc
		}
	}

	return []ChainConfig{zeta, bsc}, nil
}

// GetEnvAddress reads a contract address, falling back to def (which may be empty)
func GetEnvAddress(key, def string) (common.Address, error) {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	if value == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s value: %s, must be a valid Ethereum address", key, value)
	}
	return common.HexToAddress(value), nil
}

// GetEnvMinCrossChainAmount returns the minimum cross-chain amount in wei
func GetEnvMinCrossChainAmount() (*big.Int, error) {
	value := os.Getenv("MIN_CROSS_CHAIN_AMOUNT")
	if value == "" {
		value = DefaultMinCrossChainAmount
	}
	wei, err := amount.ToWei(value)
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_CROSS_CHAIN_AMOUNT value: %s, must be a decimal ZETA amount", value)
	}
	return wei, nil
}

// GetEnvDestinationGasLimit returns the gas limit forwarded with cross-chain sends
func GetEnvDestinationGasLimit() (uint64, error) {
	value := os.Getenv("DESTINATION_GAS_LIMIT")
	if value == "" {
		return DefaultDestinationGasLimit, nil
	}
	limit, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid DESTINATION_GAS_LIMIT value: %s, must be an integer", value)
	}
	if limit == 0 {
		return 0, fmt.Errorf("DESTINATION_GAS_LIMIT must be greater than 0")
	}
	return limit, nil
}

// GetEnvFallbackGasPrice returns the fee-per-gas used when the provider cannot suggest one
func GetEnvFallbackGasPrice() (*big.Int, error) {
	value := os.Getenv("FALLBACK_GAS_PRICE")
	if value == "" {
		value = DefaultFallbackGasPrice
	}

	price := new(big.Int)
	if _, ok := price.SetString(value, 10); !ok {
		return nil, fmt.Errorf("invalid FALLBACK_GAS_PRICE value: %s, must be a valid integer string", value)
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("FALLBACK_GAS_PRICE must be greater than 0")
	}
	return price, nil
}

// GetEnvApprovalPolicy returns the allowance policy name
func GetEnvApprovalPolicy() (string, error) {
	value := os.Getenv("APPROVAL_POLICY")
	if value == "" {
		return DefaultApprovalPolicy, nil
	}
	switch value {
	case "exact", "infinite", "adaptive":
		return value, nil
	}
	return "", fmt.Errorf("invalid APPROVAL_POLICY value: %s, must be 'exact', 'infinite' or 'adaptive'", value)
}

// GetEnvDuration parses a duration string, falling back to def
func GetEnvDuration(key string, def time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", key, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return parsed, nil
}

// GetEnvPositiveInt parses a strictly positive integer, falling back to def
func GetEnvPositiveInt(key string, def int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", key, value)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return parsed, nil
}

// GetEnvBool parses 'true' or 'false', falling back to def
func GetEnvBool(key string, def bool) (bool, error) {
	value := os.Getenv(key)
	switch value {
	case "":
		return def, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", key, value)
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvNotifyTransport returns the bridge transport kind
func GetEnvNotifyTransport() (string, error) {
	value := os.Getenv("NOTIFY_TRANSPORT")
	if value == "" {
		return DefaultNotifyTransport, nil
	}
	switch value {
	case "memory", "redis", "amqp":
		return value, nil
	}
	return "", fmt.Errorf("invalid NOTIFY_TRANSPORT value: %s, must be 'memory', 'redis' or 'amqp'", value)
}

// GetEnvRedisDB returns the redis logical database index
func GetEnvRedisDB() (int, error) {
	value := os.Getenv("REDIS_DB")
	if value == "" {
		return 0, nil
	}
	db, err := strconv.Atoi(value)
	if err != nil || db < 0 {
		return 0, fmt.Errorf("invalid REDIS_DB value: %s, must be a non-negative integer", value)
	}
	return db, nil
}

// GetEnvRecordAPIEndpoint returns the stake record endpoint; empty disables record persistence
func GetEnvRecordAPIEndpoint() (string, error) {
	endpoint := os.Getenv("RECORD_API_ENDPOINT")
	if endpoint == "" {
		return "", nil
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return "", fmt.Errorf("invalid RECORD_API_ENDPOINT value: %s, must be a valid URL", endpoint)
	}
	return strings.TrimRight(endpoint, "/"), nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	value := os.Getenv("LOG_LEVEL")
	level, err := logger.ParseLevel(value)
	if err != nil {
		return logger.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value: %s, must be 'debug', 'info', 'notice' or 'error'", value)
	}
	return level, nil
}

// getEnvDefault returns the variable or def when unset
func getEnvDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}
