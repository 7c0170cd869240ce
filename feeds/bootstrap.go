package feeds

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"github.com/stakewatch/sentinel/mirror"
	"github.com/stakewatch/sentinel/types"
)

// BootstrapLoader performs the point-in-time program account scan that seeds
// the mirror before the stream takes over. On a reconnect the scan merges
// into the existing mirror; indexed state survives the retry.
type BootstrapLoader struct {
	rpc        *rpc.Client
	programID  solana.PublicKey
	commitment rpc.CommitmentType
	mirror     *mirror.Mirror
}

func NewBootstrapLoader(client *rpc.Client, programID solana.PublicKey, commitment rpc.CommitmentType, m *mirror.Mirror) *BootstrapLoader {
	return &BootstrapLoader{rpc: client, programID: programID, commitment: commitment, mirror: m}
}

// Load scans both account families, merges them into the mirror and rebuilds
// the derived caches. Scan failures are retryable.
func (b *BootstrapLoader) Load(ctx context.Context) error {
	pools, err := b.scan(ctx, types.RewardPoolDiscriminator())
	if err != nil {
		return fmt.Errorf("scan reward pools: %w", err)
	}
	decodedPools := make(map[solana.PublicKey]*types.RewardPool, len(pools))
	for addr, data := range pools {
		pool, err := types.DecodeRewardPool(data)
		if err != nil {
			return fmt.Errorf("decode reward pool %s: %w", addr, err)
		}
		decodedPools[addr] = pool
	}
	b.mirror.MergePools(decodedPools)
	log.Info().Int("count", b.mirror.PoolCount()).Msg("reward pools indexed")

	positions, err := b.scan(ctx, types.UserPositionDiscriminator())
	if err != nil {
		return fmt.Errorf("scan user positions: %w", err)
	}
	decodedPositions := make(map[solana.PublicKey]*types.UserPosition, len(positions))
	for addr, data := range positions {
		pos, err := types.DecodeUserPosition(data)
		if err != nil {
			return fmt.Errorf("decode user position %s: %w", addr, err)
		}
		decodedPositions[addr] = pos
	}
	dropped := b.mirror.MergePositions(decodedPositions)
	if dropped > 0 {
		log.Info().Int("count", dropped).Msg("user positions without a stake kind filtered out")
	}
	log.Info().Int("count", b.mirror.PositionCount()).Msg("user positions indexed")

	b.mirror.RecomputeCaches()
	return nil
}

func (b *BootstrapLoader) scan(ctx context.Context, discriminator []byte) (map[solana.PublicKey][]byte, error) {
	result, err := b.rpc.GetProgramAccountsWithOpts(ctx, b.programID, &rpc.GetProgramAccountsOpts{
		Commitment: b.commitment,
		Filters: []rpc.RPCFilter{
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(discriminator)}},
		},
	})
	if err != nil {
		return nil, err
	}
	accounts := make(map[solana.PublicKey][]byte, len(result))
	for _, keyed := range result {
		accounts[keyed.Pubkey] = keyed.Account.Data.GetBinary()
	}
	return accounts, nil
}

// ParseRPCCommitment maps the config commitment string to the JSON-RPC type.
func ParseRPCCommitment(s string) rpc.CommitmentType {
	switch s {
	case "confirmed":
		return rpc.CommitmentConfirmed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentProcessed
	}
}
