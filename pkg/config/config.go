package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Execution modes.
const (
	ModePaper  = "paper"
	ModeLive   = "live"
	ModeDryRun = "dry-run"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Ledger endpoints
	RPCURL     string
	WSURL      string
	RPCTimeout time.Duration

	// Identity and protocol
	KeypairPath      string
	PoolsConfigPath  string
	LendingProgramID string
	PositionSeed     string
	PageStart        int
	PageEnd          int

	// Scheduling
	SchedulerInterval  time.Duration
	EvaluationInterval time.Duration
	Cooldown           time.Duration
	PriceWaitPoll      time.Duration
	SettlementDelay    time.Duration

	// Liquidation
	MaxLiquidationUSD float64
	MaxTradeSlippage  float64
	MinSwapValueUSD   float64
	ClearResidual     bool

	// Swap venue
	SwapAggregatorURL  string
	SwapTimeout        time.Duration
	SwapMaxSlippageBps int

	// Execution
	ExecutionMode       string
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration

	// WebSocket
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSNotificationBuffer    int
	WSRequestTimeout        time.Duration
	WSPoolSize              int

	// Token account cache
	TokenAccountCacheTTL time.Duration

	// Storage
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string

	// Alerts
	TelegramBotToken string
	TelegramChatID   int64

	// Circuit breaker
	CircuitBreakerEnabled         bool
	CircuitBreakerCheckInterval   time.Duration
	CircuitBreakerTradeMultiplier float64
	CircuitBreakerMinAbsolute     float64
	CircuitBreakerHysteresisRatio float64

	// Wallet tracker
	WalletPollInterval time.Duration
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		RPCURL:     getEnvOrDefault("RPC_URL", "https://api.mainnet-beta.solana.com"),
		WSURL:      getEnvOrDefault("WS_URL", "wss://api.mainnet-beta.solana.com"),
		RPCTimeout: getDurationOrDefault("RPC_TIMEOUT", 15*time.Second),

		KeypairPath:      os.Getenv("KEYPAIR_PATH"),
		PoolsConfigPath:  getEnvOrDefault("POOLS_CONFIG_PATH", "pools.json"),
		LendingProgramID: os.Getenv("LENDING_PROGRAM_ID"),
		PositionSeed:     getEnvOrDefault("POSITION_SEED", "position"),
		PageStart:        getIntOrDefault("PAGE_START", 0),
		PageEnd:          getIntOrDefault("PAGE_END", 1),

		SchedulerInterval:  getDurationOrDefault("SCHEDULER_INTERVAL", 250*time.Millisecond),
		EvaluationInterval: getDurationOrDefault("EVALUATION_INTERVAL", 10*time.Second),
		Cooldown:           getDurationOrDefault("COOLDOWN", 20*time.Second),
		PriceWaitPoll:      getDurationOrDefault("PRICE_WAIT_POLL", time.Second),
		SettlementDelay:    getDurationOrDefault("SETTLEMENT_DELAY", 15*time.Second),

		MaxLiquidationUSD: getFloat64OrDefault("MAX_LIQUIDATION_USD", 1000.0),
		MaxTradeSlippage:  getFloat64OrDefault("MAX_TRADE_SLIPPAGE", 0.02),
		MinSwapValueUSD:   getFloat64OrDefault("MIN_SWAP_VALUE_USD", 10.0),
		ClearResidual:     getBoolOrDefault("CLEAR_RESIDUAL", true),

		SwapAggregatorURL:  getEnvOrDefault("SWAP_AGGREGATOR_URL", "https://quote-api.jup.ag/v6"),
		SwapTimeout:        getDurationOrDefault("SWAP_TIMEOUT", 10*time.Second),
		SwapMaxSlippageBps: getIntOrDefault("SWAP_MAX_SLIPPAGE_BPS", 5000),

		ExecutionMode:       getEnvOrDefault("EXECUTION_MODE", ModePaper),
		ConfirmTimeout:      getDurationOrDefault("CONFIRM_TIMEOUT", 60*time.Second),
		ConfirmPollInterval: getDurationOrDefault("CONFIRM_POLL_INTERVAL", 500*time.Millisecond),

		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           getDurationOrDefault("WS_PONG_TIMEOUT", 30*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSNotificationBuffer:    getIntOrDefault("WS_NOTIFICATION_BUFFER", 4096),
		WSRequestTimeout:        getDurationOrDefault("WS_REQUEST_TIMEOUT", 10*time.Second),
		WSPoolSize:              getIntOrDefault("WS_POOL_SIZE", 1),

		TokenAccountCacheTTL: getDurationOrDefault("TOKEN_ACCOUNT_CACHE_TTL", time.Hour),

		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "liquidator"),
		PostgresPass: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "liquidator"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   getInt64OrDefault("TELEGRAM_CHAT_ID", 0),

		CircuitBreakerEnabled:         getBoolOrDefault("CIRCUIT_BREAKER_ENABLED", false),
		CircuitBreakerCheckInterval:   getDurationOrDefault("CIRCUIT_BREAKER_CHECK_INTERVAL", time.Minute),
		CircuitBreakerTradeMultiplier: getFloat64OrDefault("CIRCUIT_BREAKER_TRADE_MULTIPLIER", 3.0),
		CircuitBreakerMinAbsolute:     getFloat64OrDefault("CIRCUIT_BREAKER_MIN_ABSOLUTE", 50.0),
		CircuitBreakerHysteresisRatio: getFloat64OrDefault("CIRCUIT_BREAKER_HYSTERESIS_RATIO", 1.5),

		WalletPollInterval: getDurationOrDefault("WALLET_POLL_INTERVAL", 30*time.Second),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL cannot be empty")
	}

	if c.WSURL == "" {
		return fmt.Errorf("WS_URL cannot be empty")
	}

	if c.WSPoolSize < 1 {
		return fmt.Errorf("WS_POOL_SIZE must be at least 1, got %d", c.WSPoolSize)
	}

	if c.PageStart < 0 {
		return fmt.Errorf("PAGE_START must be >= 0, got %d", c.PageStart)
	}

	if c.PageEnd <= c.PageStart {
		return fmt.Errorf("PAGE_END must be greater than PAGE_START, got [%d, %d)", c.PageStart, c.PageEnd)
	}

	if c.SchedulerInterval <= 0 || c.EvaluationInterval <= 0 || c.PriceWaitPoll <= 0 {
		return fmt.Errorf("scheduler, evaluation and price wait intervals must be positive")
	}

	if c.Cooldown < 0 || c.SettlementDelay < 0 {
		return fmt.Errorf("COOLDOWN and SETTLEMENT_DELAY cannot be negative")
	}

	if c.MaxLiquidationUSD <= 0 {
		return fmt.Errorf("MAX_LIQUIDATION_USD must be positive, got %f", c.MaxLiquidationUSD)
	}

	if c.MaxTradeSlippage < 0 || c.MaxTradeSlippage >= 1.0 {
		return fmt.Errorf("MAX_TRADE_SLIPPAGE must be between 0 and 1.0, got %f", c.MaxTradeSlippage)
	}

	switch c.ExecutionMode {
	case ModePaper, ModeDryRun:
	case ModeLive:
		if c.KeypairPath == "" {
			return fmt.Errorf("KEYPAIR_PATH is required in live mode")
		}
		if c.SwapAggregatorURL == "" {
			return fmt.Errorf("SWAP_AGGREGATOR_URL is required in live mode")
		}
	default:
		return fmt.Errorf("EXECUTION_MODE must be 'paper', 'live' or 'dry-run', got %q", c.ExecutionMode)
	}

	if c.StorageMode != "console" && c.StorageMode != "postgres" {
		return fmt.Errorf("STORAGE_MODE must be 'console' or 'postgres', got %q", c.StorageMode)
	}

	if (c.TelegramBotToken == "") != (c.TelegramChatID == 0) {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
