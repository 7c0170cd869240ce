package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscriminatorsAreDistinct(t *testing.T) {
	pool := RewardPoolDiscriminator()
	position := UserPositionDiscriminator()
	require.Len(t, pool, 8)
	require.Len(t, position, 8)
	assert.NotEqual(t, pool, position)

	// Deterministic across calls.
	assert.Equal(t, pool, RewardPoolDiscriminator())
}

func TestDecodeRewardPool(t *testing.T) {
	pool := &RewardPool{CurrentRoundStartTime: 1_700_000_000, RoundMinDuration: 3600}
	decoded, err := DecodeRewardPool(pool.Marshal())
	require.NoError(t, err)
	assert.Equal(t, pool, decoded)
	assert.Equal(t, int64(1_700_003_600), decoded.NextResolveTime())
}

func TestDecodeRewardPoolRejectsWrongDiscriminator(t *testing.T) {
	data := (&UserPosition{Kind: StakeKindGovernance}).Marshal()
	_, err := DecodeRewardPool(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discriminator")
}

func TestDecodeRewardPoolRejectsTruncated(t *testing.T) {
	data := (&RewardPool{}).Marshal()
	_, err := DecodeRewardPool(data[:12])
	require.Error(t, err)
}

func TestNextResolveTimeFallsBackToProtocolFloor(t *testing.T) {
	pool := &RewardPool{CurrentRoundStartTime: 1000, RoundMinDuration: 0}
	assert.Equal(t, 1000+RoundMinDurationSeconds, pool.NextResolveTime())
}

func TestDecodeUserPosition(t *testing.T) {
	pos := &UserPosition{
		Kind: StakeKindLiquidity,
		LockedStakes: []LockedStake{
			{Amount: 5_000_000, StakeTime: 90, ClaimTime: 100},
			{Amount: 7_500_000, StakeTime: 95, ClaimTime: 0},
		},
	}
	decoded, err := DecodeUserPosition(pos.Marshal())
	require.NoError(t, err)
	assert.Equal(t, pos, decoded)
}

func TestDecodeUserPositionRejectsUnknownKind(t *testing.T) {
	data := (&UserPosition{Kind: StakeKindGovernance}).Marshal()
	data[8] = 9
	_, err := DecodeUserPosition(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stake kind")
}

func TestDecodeUserPositionRejectsShortStakeArray(t *testing.T) {
	pos := &UserPosition{
		Kind:         StakeKindGovernance,
		LockedStakes: []LockedStake{{Amount: 1, ClaimTime: 5}},
	}
	data := pos.Marshal()
	_, err := DecodeUserPosition(data[:len(data)-4])
	require.Error(t, err)
}

func TestEarliestClaimTime(t *testing.T) {
	tests := []struct {
		name    string
		stakes  []LockedStake
		want    int64
		pending bool
	}{
		{"no stakes", nil, 0, false},
		{"all claimed", []LockedStake{{ClaimTime: 0}, {ClaimTime: 0}}, 0, false},
		{"single pending", []LockedStake{{ClaimTime: 42}}, 42, true},
		{"oldest wins", []LockedStake{{ClaimTime: 200}, {ClaimTime: 100}}, 100, true},
		{"claimed entries ignored", []LockedStake{{ClaimTime: 0}, {ClaimTime: 200}}, 200, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &UserPosition{Kind: StakeKindGovernance, LockedStakes: tt.stakes}
			got, ok := u.EarliestClaimTime()
			assert.Equal(t, tt.pending, ok)
			if tt.pending {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestUIAmount(t *testing.T) {
	s := LockedStake{Amount: 1_234_567}
	assert.Equal(t, "1.234567", s.UIAmount(6).String())
}

func TestStakeKindString(t *testing.T) {
	assert.Equal(t, "undefined", StakeKindUndefined.String())
	assert.Equal(t, "governance", StakeKindGovernance.String())
	assert.Equal(t, "liquidity", StakeKindLiquidity.String())
}
