package feeds

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"
)

// DefaultFeePercentile is the 50th percentile in basis points.
const DefaultFeePercentile uint64 = 5000

// FeeProvider estimates a priority fee statistic in micro-lamports per
// compute unit. Percentile is expressed in basis points (5000 = median).
type FeeProvider interface {
	SamplePercentile(ctx context.Context, percentile uint64) (uint64, error)
}

// RPCFeeProvider samples the network's recent prioritization fees.
type RPCFeeProvider struct {
	rpc      *rpc.Client
	accounts []solana.PublicKey
}

func NewRPCFeeProvider(client *rpc.Client, accounts ...solana.PublicKey) *RPCFeeProvider {
	return &RPCFeeProvider{rpc: client, accounts: accounts}
}

func (p *RPCFeeProvider) SamplePercentile(ctx context.Context, percentile uint64) (uint64, error) {
	fees, err := p.rpc.GetRecentPrioritizationFees(ctx, p.accounts)
	if err != nil {
		return 0, fmt.Errorf("getRecentPrioritizationFees: %w", err)
	}
	if len(fees) == 0 {
		return 0, fmt.Errorf("no recent prioritization fee samples")
	}
	values := make([]uint64, 0, len(fees))
	for _, f := range fees {
		values = append(values, f.PrioritizationFee)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	if percentile > 10000 {
		percentile = 10000
	}
	idx := uint64(len(values)-1) * percentile / 10000
	return values[idx], nil
}

// FeeSampler polls the provider on a fixed cadence and publishes the latest
// successful sample. A failed poll keeps the previous value; the main loop
// never waits on it.
type FeeSampler struct {
	provider   FeeProvider
	percentile uint64
	interval   time.Duration
	fee        atomic.Uint64
}

func NewFeeSampler(provider FeeProvider, percentile uint64, interval time.Duration) *FeeSampler {
	return &FeeSampler{provider: provider, percentile: percentile, interval: interval}
}

// Fee returns the most recently published sample. Zero until the first
// successful poll.
func (s *FeeSampler) Fee() uint64 {
	return s.fee.Load()
}

// Run polls until ctx is cancelled. Meant to be spawned once per connection
// epoch; the supervisor cancels it before any retry.
func (s *FeeSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fee, err := s.provider.SamplePercentile(ctx, s.percentile)
			if err != nil {
				log.Debug().Err(err).Msg("priority fee sample failed, keeping previous value")
				continue
			}
			s.fee.Store(fee)
			log.Debug().Uint64("microlamports_per_cu", fee).Msg("priority fee updated")
		}
	}
}
