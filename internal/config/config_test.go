package config

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakewatch/sentinel/types"
)

func setRequiredEnv(t *testing.T) (program, gov, liq solana.PublicKey) {
	t.Helper()
	program = solana.NewWallet().PublicKey()
	gov = solana.NewWallet().PublicKey()
	liq = solana.NewWallet().PublicKey()

	t.Setenv("GEYSER_ENDPOINT", "https://geyser.example.com")
	t.Setenv("RPC_ENDPOINT", "https://rpc.example.com")
	t.Setenv("KEYPAIR_PATH", "/tmp/payer.json")
	t.Setenv("DATABASE_URL", "data/owners.db")
	t.Setenv("PROGRAM_ID", program.String())
	t.Setenv("REWARD_MINT_GOVERNANCE", gov.String())
	t.Setenv("REWARD_MINT_LIQUIDITY", liq.String())
	return program, gov, liq
}

func TestLoadDefaults(t *testing.T) {
	program, gov, liq := setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, program, cfg.ProgramID)
	assert.Equal(t, "processed", cfg.Commitment)
	assert.Equal(t, 5*time.Second, cfg.FeeRefreshInterval)
	assert.Equal(t, uint64(5000), cfg.FeePercentile)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
	assert.Zero(t, cfg.ValuationInterval)
	assert.False(t, cfg.Debug)

	mints := cfg.RewardMints()
	assert.Equal(t, gov, mints[types.StakeKindGovernance])
	assert.Equal(t, liq, mints[types.StakeKindLiquidity])
}

func TestLoadMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GEYSER_ENDPOINT", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEYSER_ENDPOINT")
}

func TestLoadRejectsBadProgramID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PROGRAM_ID", "not-base58!!")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROGRAM_ID")
}

func TestLoadRejectsBadCommitment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("COMMITMENT", "hopeful")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("COMMITMENT", "finalized")
	t.Setenv("FEE_REFRESH_INTERVAL", "10s")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "finalized", cfg.Commitment)
	assert.Equal(t, 10*time.Second, cfg.FeeRefreshInterval)
	assert.True(t, cfg.Debug)
}

func TestLoadDistributeRequiresPriceAPI(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DISTRIBUTE_FEES_INTERVAL", "1h")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRICE_API_URL")
}
