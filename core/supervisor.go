package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"

	"github.com/stakewatch/sentinel/feeds"
	"github.com/stakewatch/sentinel/internal/config"
	"github.com/stakewatch/sentinel/mirror"
	"github.com/stakewatch/sentinel/scheduler"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONNECTION SUPERVISOR
// ═══════════════════════════════════════════════════════════════════════════════
//
// Owns the connect → bootstrap → subscribe → stream lifecycle and retries it
// with exponential backoff (500ms seed, ×1.5, uncapped) on any retryable
// failure. Each attempt is an epoch: every background task spawned for it
// (fee sampler, ping keepalive, maintenance) hangs off one context that is
// cancelled unconditionally before the next attempt, so retries never leak
// duplicate timers.
//
// The mirror and its caches deliberately survive retries. A fresh bootstrap
// merges on top of them; positions closed during the disconnect window stay
// in the close-watch list and are dropped when their close event arrives on
// the new stream.
//
// ═══════════════════════════════════════════════════════════════════════════════

const backoffInitialInterval = 500 * time.Millisecond

type Supervisor struct {
	cfg        *config.Config
	mirror     *mirror.Mirror
	rpc        *rpc.Client
	sched      *scheduler.Scheduler
	sampler    *feeds.FeeSampler
	maint      *scheduler.Maintenance
	commitment pb.CommitmentLevel
}

// NewSupervisor wires the pipeline. maint may be nil when periodic
// maintenance is disabled.
func NewSupervisor(cfg *config.Config, m *mirror.Mirror, rpcClient *rpc.Client, sched *scheduler.Scheduler, sampler *feeds.FeeSampler, maint *scheduler.Maintenance) (*Supervisor, error) {
	commitment, err := feeds.ParseCommitment(cfg.Commitment)
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		cfg:        cfg,
		mirror:     m,
		rpc:        rpcClient,
		sched:      sched,
		sampler:    sampler,
		maint:      maint,
		commitment: commitment,
	}, nil
}

// Run drives connection attempts until a fatal failure or ctx cancellation.
// Retryable failures re-enter backoff indefinitely.
func (s *Supervisor) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = backoffInitialInterval
	bo.Multiplier = 1.5
	bo.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		if attempt > 0 {
			log.Info().Int("attempt", attempt).Msg("retrying connection")
		}
		attempt++
		err := s.runEpoch(ctx)
		if err != nil && !isPermanent(err) {
			log.Warn().Err(err).Msg("pipeline failed, will retry")
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

// runEpoch is one full connection attempt.
func (s *Supervisor) runEpoch(ctx context.Context) error {
	// Every task spawned below dies with this context before the next
	// attempt. Cancellation is immediate, nothing is drained.
	epoch, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := feeds.Dial(s.cfg.GeyserEndpoint, s.cfg.GeyserXToken)
	if err != nil {
		return err
	}
	defer client.Close()
	log.Info().Msg("1 - geyser connected")

	loader := feeds.NewBootstrapLoader(s.rpc, s.cfg.ProgramID, feeds.ParseRPCCommitment(s.cfg.Commitment), s.mirror)
	if err := loader.Load(epoch); err != nil {
		return err
	}
	log.Info().
		Int("pools", s.mirror.PoolCount()).
		Int("positions", s.mirror.PositionCount()).
		Msg("2 - bootstrap scan merged")

	filters := feeds.BuildAccountFilters(s.cfg.ProgramID, s.mirror.PositionKeys())
	sub, err := client.Subscribe(epoch, feeds.BuildSubscribeRequest(s.commitment, filters))
	if err != nil {
		return err
	}
	log.Info().Msg("3 - subscription open")

	go s.sampler.Run(epoch)
	go sub.KeepAlive(epoch, s.cfg.PingInterval)
	if s.maint != nil {
		go s.maint.Run(epoch)
	}
	log.Info().Msg("4 - background tasks spawned, entering core loop")

	processor := feeds.NewProcessor(s.mirror, s.cfg.ProgramID, s.commitment, sub)
	for {
		update, err := sub.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("stream recv: %w", err)
		}

		if err := processor.Process(update); err != nil {
			if isPermanent(err) {
				log.Error().Err(err).Msg("fatal stream payload, aborting pipeline")
			} else {
				// A failed filter re-send leaves the close watch stale, so the
				// whole epoch restarts with a freshly built filter set.
				log.Warn().Err(err).Msg("stream processing failed, restarting pipeline")
			}
			return err
		}

		// Scheduler runs on every iteration, keepalive ticks included, so
		// deadlines elapse even on a quiet stream.
		s.sched.Tick(epoch)
	}
}

func isPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}
