package feeds

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	calls   atomic.Int64
	samples []uint64
	errs    []error
}

func (p *scriptedProvider) SamplePercentile(_ context.Context, _ uint64) (uint64, error) {
	i := int(p.calls.Add(1)) - 1
	if i >= len(p.samples) {
		i = len(p.samples) - 1
	}
	if p.errs[i] != nil {
		return 0, p.errs[i]
	}
	return p.samples[i], nil
}

func TestFeeSamplerPublishesLatestSample(t *testing.T) {
	provider := &scriptedProvider{
		samples: []uint64{1500, 1500},
		errs:    []error{nil, nil},
	}
	sampler := NewFeeSampler(provider, DefaultFeePercentile, 5*time.Millisecond)
	assert.Equal(t, uint64(0), sampler.Fee(), "zero before the first poll")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sampler.Run(ctx)

	require.Eventually(t, func() bool {
		return sampler.Fee() == 1500
	}, time.Second, 5*time.Millisecond)
}

func TestFeeSamplerRetainsValueOnFailure(t *testing.T) {
	provider := &scriptedProvider{
		samples: []uint64{2000, 0, 0},
		errs:    []error{nil, errors.New("rpc down"), errors.New("rpc down")},
	}
	sampler := NewFeeSampler(provider, DefaultFeePercentile, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sampler.Run(ctx)

	require.Eventually(t, func() bool {
		return provider.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2000), sampler.Fee(), "failed polls keep the previous sample")
}

func TestFeeSamplerStopsOnCancel(t *testing.T) {
	provider := &scriptedProvider{samples: []uint64{1}, errs: []error{nil}}
	sampler := NewFeeSampler(provider, DefaultFeePercentile, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sampler.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler did not stop on cancellation")
	}
}
