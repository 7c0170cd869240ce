package mirror

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakewatch/sentinel/types"
)

func newAddr() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func positionWithClaims(kind types.StakeKind, claimTimes ...int64) *types.UserPosition {
	stakes := make([]types.LockedStake, 0, len(claimTimes))
	for _, ct := range claimTimes {
		stakes = append(stakes, types.LockedStake{Amount: 1_000_000, ClaimTime: ct})
	}
	return &types.UserPosition{Kind: kind, LockedStakes: stakes}
}

func TestPositionMembershipFollowsEvents(t *testing.T) {
	m := New()
	a, b := newAddr(), newAddr()

	assert.True(t, m.UpsertPosition(a, positionWithClaims(types.StakeKindGovernance, 10)))
	assert.True(t, m.UpsertPosition(b, positionWithClaims(types.StakeKindLiquidity, 20)))
	assert.False(t, m.UpsertPosition(a, positionWithClaims(types.StakeKindGovernance, 15)), "update is not a create")
	assert.ElementsMatch(t, []solana.PublicKey{a, b}, m.PositionKeys())

	assert.True(t, m.RemovePosition(a))
	assert.False(t, m.RemovePosition(a), "second close is a no-op")
	assert.ElementsMatch(t, []solana.PublicKey{b}, m.PositionKeys())

	_, ok := m.ClaimTime(a)
	assert.False(t, ok, "claim cache entry removed with the position")
}

func TestClaimCacheTracksEarliestPending(t *testing.T) {
	m := New()
	addr := newAddr()

	m.UpsertPosition(addr, positionWithClaims(types.StakeKindGovernance, 100, 200))
	got, ok := m.ClaimTime(addr)
	require.True(t, ok)
	assert.Equal(t, int64(100), got)

	// External update clears the first stake's pending claim.
	m.UpsertPosition(addr, positionWithClaims(types.StakeKindGovernance, 0, 200))
	got, ok = m.ClaimTime(addr)
	require.True(t, ok)
	assert.Equal(t, int64(200), got)

	// Everything claimed: entry disappears.
	m.UpsertPosition(addr, positionWithClaims(types.StakeKindGovernance, 0, 0))
	_, ok = m.ClaimTime(addr)
	assert.False(t, ok)
}

func TestResolveCacheIsPureFunctionOfPool(t *testing.T) {
	m := New()
	addr := newAddr()
	pool := &types.RewardPool{CurrentRoundStartTime: 5000, RoundMinDuration: 3600}

	m.UpsertPool(addr, pool)
	first, ok := m.ResolveTime(addr)
	require.True(t, ok)
	assert.Equal(t, int64(8600), first)

	// Recomputing with unchanged inputs yields the same value.
	m.UpsertPool(addr, pool)
	m.RecomputeCaches()
	second, ok := m.ResolveTime(addr)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestMergePositionsDropsUndefinedKind(t *testing.T) {
	m := New()
	defined, undefined := newAddr(), newAddr()

	dropped := m.MergePositions(map[solana.PublicKey]*types.UserPosition{
		defined:   positionWithClaims(types.StakeKindLiquidity, 50),
		undefined: positionWithClaims(types.StakeKindUndefined, 60),
	})
	m.RecomputeCaches()

	assert.Equal(t, 1, dropped)
	assert.True(t, m.HasPosition(defined))
	assert.False(t, m.HasPosition(undefined), "undefined kind excluded from the mirror")
	_, ok := m.ClaimTime(undefined)
	assert.False(t, ok, "and from the claim cache")
	assert.ElementsMatch(t, []solana.PublicKey{defined}, m.PositionKeys(), "and from the close watch")
}

func TestMergeIsAdditive(t *testing.T) {
	m := New()
	stale := newAddr()
	m.UpsertPosition(stale, positionWithClaims(types.StakeKindGovernance, 10))

	fresh := newAddr()
	m.MergePositions(map[solana.PublicKey]*types.UserPosition{
		fresh: positionWithClaims(types.StakeKindLiquidity, 20),
	})
	m.RecomputeCaches()

	// A reconnect bootstrap never clears entries it didn't rescan; the close
	// event for a stale position arrives later on the new stream.
	assert.True(t, m.HasPosition(stale))
	assert.True(t, m.HasPosition(fresh))
}

func TestDueResolvesBoundary(t *testing.T) {
	m := New()
	addr := newAddr()
	m.UpsertPool(addr, &types.RewardPool{CurrentRoundStartTime: 0, RoundMinDuration: 3600})

	assert.Empty(t, m.DueResolves(3599), "one second early never fires")
	assert.ElementsMatch(t, []solana.PublicKey{addr}, m.DueResolves(3600))
	assert.ElementsMatch(t, []solana.PublicKey{addr}, m.DueResolves(9999), "stays due until the pool updates")
}

func TestDueClaimsThreshold(t *testing.T) {
	m := New()
	addr := newAddr()
	m.UpsertPosition(addr, positionWithClaims(types.StakeKindGovernance, 1000))

	threshold := types.AutoClaimThresholdSeconds
	assert.Empty(t, m.DueClaims(1000+threshold-1, threshold))
	assert.ElementsMatch(t, []solana.PublicKey{addr}, m.DueClaims(1000+threshold, threshold))
}

func TestPoolsAreNeverRemoved(t *testing.T) {
	m := New()
	addr := newAddr()
	m.UpsertPool(addr, &types.RewardPool{CurrentRoundStartTime: 1, RoundMinDuration: 3600})
	m.RecomputeCaches()

	assert.Equal(t, 1, m.PoolCount())
	_, ok := m.Pool(addr)
	assert.True(t, ok)
	assert.ElementsMatch(t, []solana.PublicKey{addr}, m.PoolKeys())
}
