package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/stakewatch/sentinel/types"
)

// Config holds all configuration for the sentinel
type Config struct {
	// Geyser stream
	GeyserEndpoint string
	GeyserXToken   string
	Commitment     string // processed | confirmed | finalized

	// Solana RPC (bootstrap scan, fee sampling, transaction submission)
	RPCEndpoint string
	KeypairPath string

	// Staking program
	ProgramID            solana.PublicKey
	GovernanceRewardMint solana.PublicKey
	LiquidityRewardMint  solana.PublicKey

	// Owner directory
	DatabaseURL string

	// Priority fees
	FeeRefreshInterval time.Duration
	FeePercentile      uint64

	// Stream keepalive
	PingInterval time.Duration

	// Periodic maintenance (zero disables)
	ValuationInterval  time.Duration
	DistributeInterval time.Duration
	PriceAPIURL        string

	// Telegram (optional)
	TelegramToken  string
	TelegramChatID int64

	// Mode
	Debug bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		GeyserEndpoint: os.Getenv("GEYSER_ENDPOINT"),
		GeyserXToken:   os.Getenv("GEYSER_X_TOKEN"),
		Commitment:     getEnv("COMMITMENT", "processed"),

		RPCEndpoint: os.Getenv("RPC_ENDPOINT"),
		KeypairPath: os.Getenv("KEYPAIR_PATH"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		FeeRefreshInterval: getEnvDuration("FEE_REFRESH_INTERVAL", 5*time.Second),
		FeePercentile:      uint64(getEnvInt("FEE_PERCENTILE", 5000)),

		PingInterval: getEnvDuration("PING_INTERVAL", 30*time.Second),

		ValuationInterval:  getEnvDuration("VALUATION_INTERVAL", 0),
		DistributeInterval: getEnvDuration("DISTRIBUTE_FEES_INTERVAL", 0),
		PriceAPIURL:        os.Getenv("PRICE_API_URL"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		Debug: getEnvBool("DEBUG", false),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	// Validate required fields
	if cfg.GeyserEndpoint == "" {
		return nil, fmt.Errorf("GEYSER_ENDPOINT is required")
	}
	if cfg.RPCEndpoint == "" {
		return nil, fmt.Errorf("RPC_ENDPOINT is required")
	}
	if cfg.KeypairPath == "" {
		return nil, fmt.Errorf("KEYPAIR_PATH is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	switch cfg.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return nil, fmt.Errorf("invalid COMMITMENT %q", cfg.Commitment)
	}

	var err error
	if cfg.ProgramID, err = requirePubkey("PROGRAM_ID"); err != nil {
		return nil, err
	}
	if cfg.GovernanceRewardMint, err = requirePubkey("REWARD_MINT_GOVERNANCE"); err != nil {
		return nil, err
	}
	if cfg.LiquidityRewardMint, err = requirePubkey("REWARD_MINT_LIQUIDITY"); err != nil {
		return nil, err
	}

	if (cfg.DistributeInterval > 0) && cfg.PriceAPIURL == "" {
		return nil, fmt.Errorf("PRICE_API_URL is required when DISTRIBUTE_FEES_INTERVAL is set")
	}

	return cfg, nil
}

// RewardMints maps each stake kind to the mint its claims pay out in.
func (c *Config) RewardMints() map[types.StakeKind]solana.PublicKey {
	return map[types.StakeKind]solana.PublicKey{
		types.StakeKindGovernance: c.GovernanceRewardMint,
		types.StakeKindLiquidity:  c.LiquidityRewardMint,
	}
}

func requirePubkey(key string) (solana.PublicKey, error) {
	value := os.Getenv(key)
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", key)
	}
	pk, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return pk, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
