package types

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ON-CHAIN ACCOUNT MODEL
// ═══════════════════════════════════════════════════════════════════════════════
//
// Two account families owned by the staking program:
//   RewardPool   - global round-timing record, one per staked asset, never closed
//   UserPosition - per-participant locked stakes, created and closed dynamically
//
// Both are anchor accounts: an 8-byte discriminator followed by the
// little-endian payload.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	// RoundMinDurationSeconds is the minimum length of a reward round. Pools
	// carry their own duration on-chain; this is the protocol-wide floor.
	RoundMinDurationSeconds int64 = 3600

	// AutoClaimThresholdSeconds is how stale a position's oldest pending claim
	// may get before we claim on the owner's behalf. The program retains 32
	// rounds of history per position; 25 rounds keeps a safety margin.
	AutoClaimThresholdSeconds int64 = RoundMinDurationSeconds * 25
)

const discriminatorLen = 8

// StakeKind tags which asset a UserPosition stakes, and therefore which
// reward mint a claim pays out in.
type StakeKind uint8

const (
	StakeKindUndefined StakeKind = iota
	StakeKindGovernance
	StakeKindLiquidity
)

func (k StakeKind) String() string {
	switch k {
	case StakeKindGovernance:
		return "governance"
	case StakeKindLiquidity:
		return "liquidity"
	default:
		return "undefined"
	}
}

// Discriminator derives the 8-byte anchor account discriminator for a type name.
func Discriminator(name string) []byte {
	h := sha256.Sum256([]byte("account:" + name))
	return h[:discriminatorLen]
}

// InstructionDiscriminator derives the 8-byte anchor discriminator for a
// global instruction name (snake_case).
func InstructionDiscriminator(name string) []byte {
	h := sha256.Sum256([]byte("global:" + name))
	return h[:discriminatorLen]
}

// RewardPoolDiscriminator returns the discriminator matching RewardPool accounts.
func RewardPoolDiscriminator() []byte { return Discriminator("RewardPool") }

// UserPositionDiscriminator returns the discriminator matching UserPosition accounts.
func UserPositionDiscriminator() []byte { return Discriminator("UserPosition") }

// RewardPool is the global round-timing record for one staked asset.
type RewardPool struct {
	CurrentRoundStartTime int64
	RoundMinDuration      int64
}

// NextResolveTime is the unix time at which the current round must be resolved.
func (p *RewardPool) NextResolveTime() int64 {
	dur := p.RoundMinDuration
	if dur <= 0 {
		dur = RoundMinDurationSeconds
	}
	return p.CurrentRoundStartTime + dur
}

// LockedStake is one locked entry inside a UserPosition. ClaimTime is zero
// once the stake's pending rewards have been claimed.
type LockedStake struct {
	Amount    uint64
	StakeTime int64
	ClaimTime int64
}

// Pending reports whether the stake still has unclaimed rewards.
func (s LockedStake) Pending() bool { return s.ClaimTime != 0 }

// UIAmount renders the raw token amount with the given mint decimals, for logs.
func (s LockedStake) UIAmount(decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(s.Amount), -decimals)
}

// UserPosition is a participant's staking record.
type UserPosition struct {
	Kind         StakeKind
	LockedStakes []LockedStake
}

// EarliestClaimTime returns the oldest pending claim time among the locked
// stakes, or false if none are pending.
func (u *UserPosition) EarliestClaimTime() (int64, bool) {
	var earliest int64
	found := false
	for _, s := range u.LockedStakes {
		if !s.Pending() {
			continue
		}
		if !found || s.ClaimTime < earliest {
			earliest = s.ClaimTime
			found = true
		}
	}
	return earliest, found
}

const (
	rewardPoolDataLen  = discriminatorLen + 16
	lockedStakeDataLen = 24
	userPositionMinLen = discriminatorLen + 1 + 4
)

// DecodeRewardPool parses a RewardPool account's raw data.
func DecodeRewardPool(data []byte) (*RewardPool, error) {
	if err := checkDiscriminator(data, RewardPoolDiscriminator(), "RewardPool"); err != nil {
		return nil, err
	}
	if len(data) < rewardPoolDataLen {
		return nil, fmt.Errorf("reward pool account truncated: %d bytes", len(data))
	}
	body := data[discriminatorLen:]
	return &RewardPool{
		CurrentRoundStartTime: int64(binary.LittleEndian.Uint64(body[0:8])),
		RoundMinDuration:      int64(binary.LittleEndian.Uint64(body[8:16])),
	}, nil
}

// DecodeUserPosition parses a UserPosition account's raw data.
func DecodeUserPosition(data []byte) (*UserPosition, error) {
	if err := checkDiscriminator(data, UserPositionDiscriminator(), "UserPosition"); err != nil {
		return nil, err
	}
	if len(data) < userPositionMinLen {
		return nil, fmt.Errorf("user position account truncated: %d bytes", len(data))
	}
	body := data[discriminatorLen:]
	kind := StakeKind(body[0])
	if kind > StakeKindLiquidity {
		return nil, fmt.Errorf("unknown stake kind %d", body[0])
	}
	count := binary.LittleEndian.Uint32(body[1:5])
	body = body[5:]
	if uint64(len(body)) < uint64(count)*lockedStakeDataLen {
		return nil, fmt.Errorf("user position account truncated: %d stakes declared, %d bytes left", count, len(body))
	}
	stakes := make([]LockedStake, 0, count)
	for i := uint32(0); i < count; i++ {
		off := int(i) * lockedStakeDataLen
		stakes = append(stakes, LockedStake{
			Amount:    binary.LittleEndian.Uint64(body[off : off+8]),
			StakeTime: int64(binary.LittleEndian.Uint64(body[off+8 : off+16])),
			ClaimTime: int64(binary.LittleEndian.Uint64(body[off+16 : off+24])),
		})
	}
	return &UserPosition{Kind: kind, LockedStakes: stakes}, nil
}

// MatchesRewardPool reports whether raw account data carries the RewardPool
// discriminator.
func MatchesRewardPool(data []byte) bool {
	return hasDiscriminator(data, RewardPoolDiscriminator())
}

// MatchesUserPosition reports whether raw account data carries the
// UserPosition discriminator.
func MatchesUserPosition(data []byte) bool {
	return hasDiscriminator(data, UserPositionDiscriminator())
}

// Marshal encodes the pool back into account bytes. Used by fixtures and the
// replay tooling; the sentinel itself only decodes.
func (p *RewardPool) Marshal() []byte {
	out := make([]byte, rewardPoolDataLen)
	copy(out, RewardPoolDiscriminator())
	binary.LittleEndian.PutUint64(out[discriminatorLen:], uint64(p.CurrentRoundStartTime))
	binary.LittleEndian.PutUint64(out[discriminatorLen+8:], uint64(p.RoundMinDuration))
	return out
}

// Marshal encodes the position back into account bytes.
func (u *UserPosition) Marshal() []byte {
	out := make([]byte, userPositionMinLen+len(u.LockedStakes)*lockedStakeDataLen)
	copy(out, UserPositionDiscriminator())
	out[discriminatorLen] = byte(u.Kind)
	binary.LittleEndian.PutUint32(out[discriminatorLen+1:], uint32(len(u.LockedStakes)))
	off := userPositionMinLen
	for _, s := range u.LockedStakes {
		binary.LittleEndian.PutUint64(out[off:], s.Amount)
		binary.LittleEndian.PutUint64(out[off+8:], uint64(s.StakeTime))
		binary.LittleEndian.PutUint64(out[off+16:], uint64(s.ClaimTime))
		off += lockedStakeDataLen
	}
	return out
}

func hasDiscriminator(data, disc []byte) bool {
	if len(data) < discriminatorLen {
		return false
	}
	for i := 0; i < discriminatorLen; i++ {
		if data[i] != disc[i] {
			return false
		}
	}
	return true
}

func checkDiscriminator(data, disc []byte, name string) error {
	if !hasDiscriminator(data, disc) {
		return fmt.Errorf("account data does not match %s discriminator", name)
	}
	return nil
}
