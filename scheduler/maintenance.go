package scheduler

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/stakewatch/sentinel/execution"
	"github.com/stakewatch/sentinel/mirror"
)

// MaintenanceExecutor submits the periodic housekeeping transactions.
type MaintenanceExecutor interface {
	DistributeFees(ctx context.Context, pool solana.PublicKey, feeRate uint64, prices *execution.PriceBatch) error
	UpdatePoolValuation(ctx context.Context, pool solana.PublicKey, feeRate uint64) error
}

// PriceSource fetches the signed trading-price batch distribute_fees needs.
type PriceSource interface {
	Fetch(ctx context.Context) (*execution.PriceBatch, error)
}

// Maintenance fires the fee-distribution and pool-valuation transactions on
// their own cadences, independent of the stream loop. Spawned once per
// connection epoch, cancelled with it.
type Maintenance struct {
	mirror   *mirror.Mirror
	executor MaintenanceExecutor
	prices   PriceSource
	fees     FeeSource

	valuationInterval  time.Duration
	distributeInterval time.Duration
}

func NewMaintenance(m *mirror.Mirror, executor MaintenanceExecutor, prices PriceSource, fees FeeSource, valuationInterval, distributeInterval time.Duration) *Maintenance {
	return &Maintenance{
		mirror:             m,
		executor:           executor,
		prices:             prices,
		fees:               fees,
		valuationInterval:  valuationInterval,
		distributeInterval: distributeInterval,
	}
}

// Run blocks until ctx is cancelled. A zero interval disables that task.
func (m *Maintenance) Run(ctx context.Context) {
	valuation := newOptionalTicker(m.valuationInterval)
	defer valuation.stop()
	distribute := newOptionalTicker(m.distributeInterval)
	defer distribute.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-valuation.ch:
			m.updateValuations(ctx)
		case <-distribute.ch:
			m.distributeFees(ctx)
		}
	}
}

func (m *Maintenance) updateValuations(ctx context.Context) {
	feeRate := m.fees.Fee()
	for _, pool := range m.mirror.PoolKeys() {
		if err := m.executor.UpdatePoolValuation(ctx, pool, feeRate); err != nil {
			log.Error().Err(err).Str("pool", pool.String()).Msg("update pool valuation failed")
		}
	}
}

func (m *Maintenance) distributeFees(ctx context.Context) {
	batch, err := m.prices.Fetch(ctx)
	if err != nil {
		log.Error().Err(err).Msg("trading price fetch failed, skipping fee distribution")
		return
	}
	feeRate := m.fees.Fee()
	for _, pool := range m.mirror.PoolKeys() {
		if err := m.executor.DistributeFees(ctx, pool, feeRate, batch); err != nil {
			log.Error().Err(err).Str("pool", pool.String()).Msg("distribute fees failed")
		}
	}
}

type optionalTicker struct {
	ch     <-chan time.Time
	ticker *time.Ticker
}

func newOptionalTicker(interval time.Duration) optionalTicker {
	if interval <= 0 {
		return optionalTicker{ch: nil}
	}
	t := time.NewTicker(interval)
	return optionalTicker{ch: t.C, ticker: t}
}

func (t optionalTicker) stop() {
	if t.ticker != nil {
		t.ticker.Stop()
	}
}
