package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PositionState is the lifecycle state of a lock position. Transitions are
// monotonic: Locked -> Unlocked -> Unstaked, never backward.
type PositionState string

const (
	StateLocked   PositionState = "locked"
	StateUnlocked PositionState = "unlocked"
	StateUnstaked PositionState = "unstaked"
)

// LockPosition is a single stake deposit reconstructed from the event log.
// Amount is immutable after creation.
type LockPosition struct {
	User           common.Address
	LockId         *big.Int
	PoolId         uint64
	Amount         *big.Int // wei
	LockPeriod     uint64   // seconds
	UnlockTime     uint64   // unix seconds
	LastClaimBlock uint64   // block of the Locked event, advanced by RewardsClaimed
	State          PositionState
	OriginBlock    uint64
	Rewards        *big.Int // derived, recomputed at snapshot time
}

// Open reports whether the position still contributes to owed totals.
func (p *LockPosition) Open() bool {
	return p.State != StateUnstaked
}

// UserEntitlement is everything one user is owed: their positions plus
// the per-pool principal and reward totals derived from them.
type UserEntitlement struct {
	Address      common.Address
	Positions    []*LockPosition
	TokensByPool map[uint64]*big.Int
	Rewards      *big.Int
}

// RateKey identifies a reward rate: the contract keeps one basis-points rate
// per (pool, lock period) pair.
type RateKey struct {
	PoolId     uint64
	LockPeriod uint64
}

// RewardRateTable maps (pool, lock period) to a basis-points rate.
// Absence of an entry means rate 0.
type RewardRateTable map[RateKey]uint64

// Rate returns the basis-points rate for the key and whether it was present.
func (t RewardRateTable) Rate(poolId, lockPeriod uint64) (uint64, bool) {
	r, ok := t[RateKey{PoolId: poolId, LockPeriod: lockPeriod}]
	return r, ok
}

// PoolInfo describes one staking pool: the token owed to its stakers and
// the reward rates for each supported lock period.
type PoolInfo struct {
	PoolId       uint64
	TokenAddress common.Address
	Symbol       string
	Decimals     int32
	Rates        map[uint64]uint64 // lock period seconds -> basis points
}
