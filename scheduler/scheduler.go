package scheduler

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/stakewatch/sentinel/mirror"
	"github.com/stakewatch/sentinel/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ACTION SCHEDULER
// ═══════════════════════════════════════════════════════════════════════════════
//
// Runs once per event-loop iteration, including idle keepalive ticks. Scans
// the two decision caches for elapsed deadlines and fires the matching
// action per entry. Entries are independent: one failure is logged and the
// scan moves on. Firing is at-least-once - until the pool or position
// account updates on-chain, the same deadline stays due and re-fires on
// every tick. The program rejects the duplicates cheaply.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ActionExecutor submits the two scheduled transaction kinds.
type ActionExecutor interface {
	ResolveRound(ctx context.Context, pool solana.PublicKey, feeRate uint64) error
	Claim(ctx context.Context, position, owner solana.PublicKey, feeRate uint64, rewardMint solana.PublicKey) error
}

// OwnerDirectory resolves a position address to its owner wallet. The chain
// account doesn't carry the owner, only the off-chain directory does.
type OwnerDirectory interface {
	LookupOwner(ctx context.Context, position solana.PublicKey) (solana.PublicKey, error)
}

// FeeSource supplies the latest sampled priority fee.
type FeeSource interface {
	Fee() uint64
}

// ActionNotifier receives a notification after an action fires. May be nil.
type ActionNotifier interface {
	NotifyAction(action, address string)
}

type Scheduler struct {
	mirror      *mirror.Mirror
	executor    ActionExecutor
	owners      OwnerDirectory
	fees        FeeSource
	rewardMints map[types.StakeKind]solana.PublicKey
	notifier    ActionNotifier

	now func() time.Time
}

func New(m *mirror.Mirror, executor ActionExecutor, owners OwnerDirectory, fees FeeSource, rewardMints map[types.StakeKind]solana.PublicKey, notifier ActionNotifier) *Scheduler {
	return &Scheduler{
		mirror:      m,
		executor:    executor,
		owners:      owners,
		fees:        fees,
		rewardMints: rewardMints,
		notifier:    notifier,
		now:         time.Now,
	}
}

// Tick evaluates both caches against the current time and fires every due
// action. Per-entry failures never abort the tick.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().Unix()
	feeRate := s.fees.Fee()

	for _, pool := range s.mirror.DueResolves(now) {
		if err := s.executor.ResolveRound(ctx, pool, feeRate); err != nil {
			log.Error().Err(err).Str("pool", pool.String()).Msg("resolve round failed")
			continue
		}
		s.notify("resolve_round", pool)
	}

	for _, position := range s.mirror.DueClaims(now, types.AutoClaimThresholdSeconds) {
		if err := s.claim(ctx, position, feeRate); err != nil {
			log.Error().Err(err).Str("position", position.String()).Msg("auto claim failed")
		}
	}
}

func (s *Scheduler) claim(ctx context.Context, position solana.PublicKey, feeRate uint64) error {
	owner, err := s.owners.LookupOwner(ctx, position)
	if err != nil {
		return err
	}

	kind, ok := s.mirror.PositionKind(position)
	if !ok {
		// Closed between the scan and now; nothing to do.
		return nil
	}
	mint, ok := s.rewardMints[kind]
	if !ok {
		log.Warn().Str("position", position.String()).Str("kind", kind.String()).Msg("no reward mint for stake kind, skipping claim")
		return nil
	}

	if err := s.executor.Claim(ctx, position, owner, feeRate, mint); err != nil {
		return err
	}
	s.notify("claim_stakes", position)
	return nil
}

func (s *Scheduler) notify(action string, addr solana.PublicKey) {
	if s.notifier != nil {
		s.notifier.NotifyAction(action, addr.String())
	}
}
