// Sentinel - autonomous keeper for the staking program
//
// Mirrors the program's RewardPool and UserPosition accounts through a
// Yellowstone geyser account stream, derives per-address resolve and claim
// deadlines, and fires the matching transactions the moment they elapse:
//
//  1. Bootstrap-scan both account families into the in-memory mirror
//  2. Subscribe with discriminator/owner filters plus an explicit
//     close-watch list of every known position
//  3. Apply stream events in order, keeping the decision caches current
//  4. After every event (and every keepalive tick) fire due round
//     resolutions and stale-reward auto claims
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stakewatch/sentinel/bot"
	"github.com/stakewatch/sentinel/core"
	"github.com/stakewatch/sentinel/execution"
	"github.com/stakewatch/sentinel/feeds"
	"github.com/stakewatch/sentinel/internal/config"
	"github.com/stakewatch/sentinel/internal/database"
	"github.com/stakewatch/sentinel/mirror"
	"github.com/stakewatch/sentinel/scheduler"
)

const version = "1.2.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("program", cfg.ProgramID.String()).
		Str("commitment", cfg.Commitment).
		Msg("⚡ Staking sentinel starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Owner directory
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Transaction signer
	payer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load payer keypair")
	}
	log.Info().Str("payer", payer.PublicKey().String()).Msg("💳 Payer keypair loaded")

	// Telegram notifications (optional)
	notifier, err := bot.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Telegram notifier")
	}

	// ====== CORE COMPONENTS ======

	rpcClient := rpc.New(cfg.RPCEndpoint)
	accountMirror := mirror.New()
	executor := execution.NewExecutor(rpcClient, payer, cfg.ProgramID)
	sampler := feeds.NewFeeSampler(
		feeds.NewRPCFeeProvider(rpcClient, cfg.ProgramID),
		cfg.FeePercentile,
		cfg.FeeRefreshInterval,
	)
	sched := scheduler.New(accountMirror, executor, db, sampler, cfg.RewardMints(), notifier)

	var maint *scheduler.Maintenance
	if cfg.ValuationInterval > 0 || cfg.DistributeInterval > 0 {
		maint = scheduler.NewMaintenance(
			accountMirror,
			executor,
			execution.NewPriceFetcher(cfg.PriceAPIURL),
			sampler,
			cfg.ValuationInterval,
			cfg.DistributeInterval,
		)
		log.Info().
			Dur("valuation", cfg.ValuationInterval).
			Dur("distribute", cfg.DistributeInterval).
			Msg("🔧 Periodic maintenance enabled")
	}

	supervisor, err := core.NewSupervisor(cfg, accountMirror, rpcClient, sched, sampler, maint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build supervisor")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- supervisor.Run(ctx) }()

	// Wait for shutdown signal or a fatal pipeline failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("🛑 Received shutdown signal")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			notifier.NotifyFatal(err)
			log.Fatal().Err(err).Msg("Pipeline failed fatally")
		}
	}

	log.Info().Msg("👋 Goodbye!")
}
