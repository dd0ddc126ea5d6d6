package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind identifies one of the four staking-contract events the
// reconstruction replays.
type EventKind int

const (
	EventLocked EventKind = iota
	EventUnlocked
	EventRewardsClaimed
	EventUnstaked
)

func (k EventKind) String() string {
	switch k {
	case EventLocked:
		return "Locked"
	case EventUnlocked:
		return "Unlocked"
	case EventRewardsClaimed:
		return "RewardsClaimed"
	case EventUnstaked:
		return "Unstaked"
	default:
		return "Unknown"
	}
}

// StakingEvent is a decoded staking-contract log, normalized across the four
// event kinds. Fields that a kind does not carry are left zero.
type StakingEvent struct {
	Kind        EventKind
	User        common.Address
	LockId      *big.Int // Locked, Unlocked
	PoolId      uint64
	Amount      *big.Int
	LockPeriod  uint64 // seconds; Locked only
	UnlockTime  uint64 // unix seconds; Locked only
	BlockNumber uint64
	TxIndex     uint
	LogIndex    uint
	TxHash      common.Hash
}

// Before reports whether e was emitted before other in chain order.
// Block number, then transaction index, then log index.
func (e *StakingEvent) Before(other *StakingEvent) bool {
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber < other.BlockNumber
	}
	if e.TxIndex != other.TxIndex {
		return e.TxIndex < other.TxIndex
	}
	return e.LogIndex < other.LogIndex
}
