package mirror

import (
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/stakewatch/sentinel/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ACCOUNT MIRROR
// ═══════════════════════════════════════════════════════════════════════════════
//
// In-memory mirror of the program's RewardPool and UserPosition accounts plus
// the two decision caches derived from them:
//
//   resolveCache  pool address     -> unix time the current round must resolve
//   claimCache    position address -> oldest pending claim time (absent = none)
//
// One RWMutex guards everything so the caches can never be observed stale
// relative to the mirror. Every mutation recomputes the affected cache entry
// before the lock is released.
//
// ═══════════════════════════════════════════════════════════════════════════════

type Mirror struct {
	mu sync.RWMutex

	pools     map[solana.PublicKey]*types.RewardPool
	positions map[solana.PublicKey]*types.UserPosition

	resolveCache map[solana.PublicKey]int64
	claimCache   map[solana.PublicKey]int64
}

func New() *Mirror {
	return &Mirror{
		pools:        make(map[solana.PublicKey]*types.RewardPool),
		positions:    make(map[solana.PublicKey]*types.UserPosition),
		resolveCache: make(map[solana.PublicKey]int64),
		claimCache:   make(map[solana.PublicKey]int64),
	}
}

// UpsertPool creates or replaces a RewardPool and refreshes its resolve time.
// Pools are never removed.
func (m *Mirror) UpsertPool(addr solana.PublicKey, pool *types.RewardPool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[addr] = pool
	m.resolveCache[addr] = pool.NextResolveTime()
}

// UpsertPosition creates or replaces a UserPosition and refreshes its claim
// cache entry. Returns true when the address was not previously mirrored.
func (m *Mirror) UpsertPosition(addr solana.PublicKey, pos *types.UserPosition) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, known := m.positions[addr]
	m.positions[addr] = pos
	m.refreshClaimLocked(addr, pos)
	return !known
}

// RemovePosition drops a closed UserPosition and its claim cache entry.
// Returns true when the address was actually mirrored.
func (m *Mirror) RemovePosition(addr solana.PublicKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, known := m.positions[addr]
	delete(m.positions, addr)
	delete(m.claimCache, addr)
	return known
}

// MergePools merges a bootstrap scan result. Existing entries are overwritten.
func (m *Mirror) MergePools(pools map[solana.PublicKey]*types.RewardPool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, pool := range pools {
		m.pools[addr] = pool
	}
}

// MergePositions merges a bootstrap scan result, dropping entries whose stake
// kind is still undefined. Returns the number dropped.
func (m *Mirror) MergePositions(positions map[solana.PublicKey]*types.UserPosition) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for addr, pos := range positions {
		if pos.Kind == types.StakeKindUndefined {
			dropped++
			continue
		}
		m.positions[addr] = pos
	}
	return dropped
}

// RecomputeCaches rebuilds both caches from the mirrored accounts. Called
// after a bootstrap merge; incremental mutations keep them current otherwise.
func (m *Mirror) RecomputeCaches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveCache = make(map[solana.PublicKey]int64, len(m.pools))
	for addr, pool := range m.pools {
		m.resolveCache[addr] = pool.NextResolveTime()
	}
	m.claimCache = make(map[solana.PublicKey]int64, len(m.positions))
	for addr, pos := range m.positions {
		m.refreshClaimLocked(addr, pos)
	}
}

func (m *Mirror) refreshClaimLocked(addr solana.PublicKey, pos *types.UserPosition) {
	if t, ok := pos.EarliestClaimTime(); ok {
		m.claimCache[addr] = t
	} else {
		delete(m.claimCache, addr)
	}
}

// Pool returns the mirrored RewardPool for an address.
func (m *Mirror) Pool(addr solana.PublicKey) (*types.RewardPool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[addr]
	return p, ok
}

// Position returns the mirrored UserPosition for an address.
func (m *Mirror) Position(addr solana.PublicKey) (*types.UserPosition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[addr]
	return p, ok
}

// HasPosition reports whether the address is currently mirrored.
func (m *Mirror) HasPosition(addr solana.PublicKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.positions[addr]
	return ok
}

// PositionKind returns the stake kind of a mirrored position.
func (m *Mirror) PositionKind(addr solana.PublicKey) (types.StakeKind, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[addr]
	if !ok {
		return types.StakeKindUndefined, false
	}
	return p.Kind, true
}

// PositionKeys snapshots the mirrored UserPosition addresses. This is what the
// close-watch filter group is built from.
func (m *Mirror) PositionKeys() []solana.PublicKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]solana.PublicKey, 0, len(m.positions))
	for addr := range m.positions {
		keys = append(keys, addr)
	}
	return keys
}

// PoolKeys snapshots the mirrored RewardPool addresses.
func (m *Mirror) PoolKeys() []solana.PublicKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]solana.PublicKey, 0, len(m.pools))
	for addr := range m.pools {
		keys = append(keys, addr)
	}
	return keys
}

func (m *Mirror) PoolCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools)
}

func (m *Mirror) PositionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

// ResolveTime returns the cached resolve deadline for a pool.
func (m *Mirror) ResolveTime(addr solana.PublicKey) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.resolveCache[addr]
	return t, ok
}

// ClaimTime returns the cached oldest pending claim time for a position.
func (m *Mirror) ClaimTime(addr solana.PublicKey) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.claimCache[addr]
	return t, ok
}

// DueResolves returns every pool whose resolve deadline has elapsed at now.
func (m *Mirror) DueResolves(now int64) []solana.PublicKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []solana.PublicKey
	for addr, t := range m.resolveCache {
		if now >= t {
			due = append(due, addr)
		}
	}
	return due
}

// DueClaims returns every position whose oldest pending claim is older than
// the auto-claim threshold at now.
func (m *Mirror) DueClaims(now, threshold int64) []solana.PublicKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []solana.PublicKey
	for addr, t := range m.claimCache {
		if now >= t+threshold {
			due = append(due, addr)
		}
	}
	return due
}
