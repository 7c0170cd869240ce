package feeds

import (
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"

	"github.com/stakewatch/sentinel/mirror"
	"github.com/stakewatch/sentinel/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STREAM EVENT PROCESSOR
// ═══════════════════════════════════════════════════════════════════════════════
//
// Applies inbound geyser updates to the mirror, one at a time, in arrival
// order. When the UserPosition key set changes the filter map is rebuilt and
// re-sent on the live stream so the close watch keeps tracking every known
// position.
//
// Error contract (what the supervisor sees):
//   nil                      - applied, keep looping
//   backoff.Permanent(err)   - malformed payload, abort the pipeline
//   plain error              - transport hiccup on the filter re-send, retryable
//
// ═══════════════════════════════════════════════════════════════════════════════

// Sender pushes replacement subscribe requests on the open stream.
type Sender interface {
	Send(*pb.SubscribeRequest) error
}

// Processor mutates the mirror from stream events.
type Processor struct {
	mirror     *mirror.Mirror
	programID  solana.PublicKey
	commitment pb.CommitmentLevel
	sender     Sender
}

func NewProcessor(m *mirror.Mirror, programID solana.PublicKey, commitment pb.CommitmentLevel, sender Sender) *Processor {
	return &Processor{mirror: m, programID: programID, commitment: commitment, sender: sender}
}

// Process applies a single stream update.
func (p *Processor) Process(update *pb.SubscribeUpdate) error {
	acc := update.GetAccount()
	if acc == nil {
		// Ping/pong and other non-account messages keep the loop ticking.
		return nil
	}
	info := acc.GetAccount()
	if info == nil {
		return backoff.Permanent(fmt.Errorf("account update without account payload"))
	}
	if len(info.Pubkey) != solana.PublicKeyLength {
		return backoff.Permanent(fmt.Errorf("account update with %d-byte pubkey", len(info.Pubkey)))
	}
	addr := solana.PublicKeyFromBytes(info.Pubkey)
	data := info.Data

	filtersDirty := false
	switch {
	case info.Lamports == 0 || len(data) == 0:
		// Account drained: this is the close event the explicit watch list
		// exists for.
		if p.mirror.RemovePosition(addr) {
			log.Info().Str("position", addr.String()).Msg("user position closed")
			filtersDirty = true
		}

	case types.MatchesRewardPool(data):
		pool, err := types.DecodeRewardPool(data)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("decode reward pool %s: %w", addr, err))
		}
		p.mirror.UpsertPool(addr, pool)
		log.Debug().
			Str("pool", addr.String()).
			Int64("next_resolve", pool.NextResolveTime()).
			Msg("reward pool updated")

	case types.MatchesUserPosition(data):
		pos, err := types.DecodeUserPosition(data)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("decode user position %s: %w", addr, err))
		}
		if pos.Kind == types.StakeKindUndefined && !p.mirror.HasPosition(addr) {
			// Same exclusion as bootstrap: a position with no stake kind yet
			// cannot be claimed for, so don't start tracking it.
			log.Debug().Str("position", addr.String()).Msg("ignoring position without stake kind")
			return nil
		}
		if p.mirror.UpsertPosition(addr, pos) {
			log.Info().
				Str("position", addr.String()).
				Str("kind", pos.Kind.String()).
				Int("stakes", len(pos.LockedStakes)).
				Msg("user position indexed")
			filtersDirty = true
		}

	default:
		// A watched address re-assigned to unrelated data behaves like a close.
		if p.mirror.RemovePosition(addr) {
			log.Warn().Str("position", addr.String()).Msg("watched position no longer matches discriminator, dropping")
			filtersDirty = true
		}
	}

	if filtersDirty {
		if err := p.refreshFilters(); err != nil {
			return fmt.Errorf("re-send subscription filters: %w", err)
		}
	}
	return nil
}

func (p *Processor) refreshFilters() error {
	filters := BuildAccountFilters(p.programID, p.mirror.PositionKeys())
	if err := p.sender.Send(BuildSubscribeRequest(p.commitment, filters)); err != nil {
		return err
	}
	log.Debug().Int("close_watch", p.mirror.PositionCount()).Msg("subscription filters re-issued")
	return nil
}
