package config

import (
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/zetaflow/intentd/pkg/logger"
)

// Config holds the configuration for the intent service
type Config struct {
	Network        string
	PrivateKey     string
	Chains         *ChainRegistry
	Contracts      ContractsConfig
	Policy         PolicyConfig
	CircuitBreaker CircuitBreakerConfig
	Notify         NotifyConfig
	MetricsPort    string
	MetricsAPIKey  string
	JournalPath    string
	RecordAPI      string
	LoggerConfig   LoggerConfig
}

// ContractsConfig holds the contract addresses the orchestrator talks to
type ContractsConfig struct {
	WZETA     common.Address
	Connector common.Address
	Manager   common.Address
	NFT       common.Address
	// Gateways maps a source chain id to its GatewayEVM address
	Gateways map[int]common.Address
}

// PolicyConfig holds execution policy values
type PolicyConfig struct {
	MinCrossChainAmount *big.Int
	DestinationGasLimit uint64
	FallbackGasPrice    *big.Int
	ApprovalPolicy      string
	ChainSwitchSettle   time.Duration
	ConfirmMaxAttempts  int
	ConfirmInitialDelay time.Duration
	GasPriceCacheTTL    time.Duration
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// NotifyConfig selects and configures the notification transport
type NotifyConfig struct {
	Transport     string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	AMQPURL       string
	IntentQueue   string
	ConfirmQueue  string
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	network, err := GetEnvNetwork()
	if err != nil {
		return nil, err
	}

	chains, err := GetEnvChains(network)
	if err != nil {
		return nil, err
	}
	if path := os.Getenv("CHAINS_FILE"); path != "" {
		if chains, err = applyChainsFile(path, chains); err != nil {
			return nil, err
		}
	}

	contracts, err := loadContracts(network)
	if err != nil {
		return nil, err
	}

	policy, err := loadPolicy()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvPositiveInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow)
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset)
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	transport, err := GetEnvNotifyTransport()
	if err != nil {
		return nil, err
	}

	redisDB, err := GetEnvRedisDB()
	if err != nil {
		return nil, err
	}

	recordAPI, err := GetEnvRecordAPIEndpoint()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvBool("LOG_COLORING", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Network:    network,
		PrivateKey: os.Getenv("PRIVATE_KEY"),
		Chains:     NewChainRegistry(chains, BSCChain),
		Contracts:  contracts,
		Policy:     policy,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		Notify: NotifyConfig{
			Transport:     transport,
			RedisAddress:  getEnvDefault("REDIS_ADDRESS", "localhost:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       redisDB,
			AMQPURL:       os.Getenv("AMQP_URL"),
			IntentQueue:   getEnvDefault("NOTIFY_INTENT_QUEUE", DefaultIntentQueue),
			ConfirmQueue:  getEnvDefault("NOTIFY_CONFIRM_QUEUE", DefaultConfirmQueue),
		},
		MetricsPort:   metricsPort,
		MetricsAPIKey: os.Getenv("METRICS_API_KEY"),
		JournalPath:   getEnvDefault("JOURNAL_PATH", DefaultJournalPath),
		RecordAPI:     recordAPI,
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadContracts(network string) (ContractsConfig, error) {
	// reference deployments only exist on Athens; mainnet addresses must be supplied
	wzetaDefault, connectorDefault, managerDefault, nftDefault := "", "", "", ""
	gateways := map[int]common.Address{
		BSCMainnetChainID: common.HexToAddress(BSCMainnetGatewayAddress),
	}
	if network == testnet {
		wzetaDefault = AthensWZETAAddress
		connectorDefault = AthensConnectorAddress
		managerDefault = AthensManagerAddress
		nftDefault = AthensNFTAddress
		gateways[BSCTestnetChainID] = common.HexToAddress(BSCTestnetGatewayAddress)
	}

	var c ContractsConfig
	var err error
	if c.WZETA, err = GetEnvAddress("WZETA_ADDRESS", wzetaDefault); err != nil {
		return c, err
	}
	if c.Connector, err = GetEnvAddress("CONNECTOR_ADDRESS", connectorDefault); err != nil {
		return c, err
	}
	if c.Manager, err = GetEnvAddress("MANAGER_ADDRESS", managerDefault); err != nil {
		return c, err
	}
	if c.NFT, err = GetEnvAddress("NFT_ADDRESS", nftDefault); err != nil {
		return c, err
	}
	gateway, err := GetEnvAddress("GATEWAY_ADDRESS", "")
	if err != nil {
		return c, err
	}
	if gateway != (common.Address{}) {
		chainID := BSCTestnetChainID
		if network == mainnet {
			chainID = BSCMainnetChainID
		}
		gateways[chainID] = gateway
	}
	c.Gateways = gateways
	return c, nil
}

func loadPolicy() (PolicyConfig, error) {
	var p PolicyConfig
	var err error
	if p.MinCrossChainAmount, err = GetEnvMinCrossChainAmount(); err != nil {
		return p, err
	}
	if p.DestinationGasLimit, err = GetEnvDestinationGasLimit(); err != nil {
		return p, err
	}
	if p.FallbackGasPrice, err = GetEnvFallbackGasPrice(); err != nil {
		return p, err
	}
	if p.ApprovalPolicy, err = GetEnvApprovalPolicy(); err != nil {
		return p, err
	}
	if p.ChainSwitchSettle, err = GetEnvDuration("CHAIN_SWITCH_SETTLE", DefaultChainSwitchSettle); err != nil {
		return p, err
	}
	if p.ConfirmMaxAttempts, err = GetEnvPositiveInt("CONFIRM_MAX_ATTEMPTS", DefaultConfirmMaxAttempts); err != nil {
		return p, err
	}
	if p.ConfirmInitialDelay, err = GetEnvDuration("CONFIRM_INITIAL_DELAY", DefaultConfirmInitialDelay); err != nil {
		return p, err
	}
	if p.GasPriceCacheTTL, err = GetEnvDuration("GAS_PRICE_CACHE_TTL", DefaultGasPriceCacheTTL); err != nil {
		return p, err
	}
	return p, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY environment variable is required")
	}
	if _, ok := cfg.Chains.Lookup(OriginChain); !ok {
		return fmt.Errorf("chain %s must be configured", OriginChain)
	}
	zero := common.Address{}
	if cfg.Contracts.WZETA == zero {
		return fmt.Errorf("WZETA_ADDRESS is required on %s", cfg.Network)
	}
	if cfg.Contracts.Connector == zero {
		return fmt.Errorf("CONNECTOR_ADDRESS is required on %s", cfg.Network)
	}
	if cfg.Contracts.Manager == zero {
		return fmt.Errorf("MANAGER_ADDRESS is required on %s", cfg.Network)
	}
	if cfg.Notify.Transport == "amqp" && cfg.Notify.AMQPURL == "" {
		return fmt.Errorf("AMQP_URL is required when NOTIFY_TRANSPORT is 'amqp'")
	}
	return nil
}
