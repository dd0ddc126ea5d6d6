/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package events

import (
	"fmt"
	"math/big"

	"stake-recovery-go/internal/models"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Event signature hashes for the four staking-contract events.
var (
	LockedTopic         = crypto.Keccak256Hash([]byte("Locked(address,uint256,uint256,uint256,uint256,uint256)"))
	UnlockedTopic       = crypto.Keccak256Hash([]byte("Unlocked(address,uint256,uint256,uint256)"))
	RewardsClaimedTopic = crypto.Keccak256Hash([]byte("RewardsClaimed(address,uint256,uint256)"))
	UnstakedTopic       = crypto.Keccak256Hash([]byte("Unstaked(address,uint256,uint256,uint256)"))
)

// AllTopics returns the topic filter matching any of the four events, in the
// eth_getLogs convention (position 0, OR across hashes).
func AllTopics() [][]common.Hash {
	return [][]common.Hash{{LockedTopic, UnlockedTopic, RewardsClaimedTopic, UnstakedTopic}}
}

var uint256Type = mustNewType("uint256")

func mustNewType(t string) ethabi.Type {
	ty, err := ethabi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in ABI type %q: %v", t, err))
	}
	return ty
}

// Non-indexed data layouts per event kind, in word order.
var (
	lockedArgs = ethabi.Arguments{
		{Name: "amount", Type: uint256Type},
		{Name: "lockPeriod", Type: uint256Type},
		{Name: "unlockTime", Type: uint256Type},
		{Name: "poolId", Type: uint256Type},
	}
	unlockedArgs = ethabi.Arguments{
		{Name: "amount", Type: uint256Type},
		{Name: "poolId", Type: uint256Type},
	}
	rewardsClaimedArgs = ethabi.Arguments{
		{Name: "amount", Type: uint256Type},
		{Name: "poolId", Type: uint256Type},
	}
	unstakedArgs = ethabi.Arguments{
		{Name: "amount", Type: uint256Type},
		{Name: "poolId", Type: uint256Type},
		{Name: "unstakeTime", Type: uint256Type},
	}
)

// DecodeLog turns one raw log into a typed staking event. The user address is
// always topic 1; Locked and Unlocked additionally index the lock id as
// topic 2. RewardsClaimed and Unstaked carry only the pool id, not a lock id.
func DecodeLog(log *types.Log) (*models.StakingEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log has no topics")
	}

	ev := &models.StakingEvent{
		BlockNumber: log.BlockNumber,
		TxIndex:     log.TxIndex,
		LogIndex:    log.Index,
		TxHash:      log.TxHash,
	}

	switch log.Topics[0] {
	case LockedTopic:
		if len(log.Topics) < 3 {
			return nil, fmt.Errorf("Locked log has %d topics, want 3", len(log.Topics))
		}
		values, err := lockedArgs.Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode Locked data: %w", err)
		}
		ev.Kind = models.EventLocked
		ev.User = common.BytesToAddress(log.Topics[1].Bytes())
		ev.LockId = new(big.Int).SetBytes(log.Topics[2].Bytes())
		ev.Amount = values[0].(*big.Int)
		ev.LockPeriod = values[1].(*big.Int).Uint64()
		ev.UnlockTime = values[2].(*big.Int).Uint64()
		ev.PoolId = values[3].(*big.Int).Uint64()

	case UnlockedTopic:
		if len(log.Topics) < 3 {
			return nil, fmt.Errorf("Unlocked log has %d topics, want 3", len(log.Topics))
		}
		values, err := unlockedArgs.Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode Unlocked data: %w", err)
		}
		ev.Kind = models.EventUnlocked
		ev.User = common.BytesToAddress(log.Topics[1].Bytes())
		ev.LockId = new(big.Int).SetBytes(log.Topics[2].Bytes())
		ev.Amount = values[0].(*big.Int)
		ev.PoolId = values[1].(*big.Int).Uint64()

	case RewardsClaimedTopic:
		if len(log.Topics) < 2 {
			return nil, fmt.Errorf("RewardsClaimed log has %d topics, want 2", len(log.Topics))
		}
		values, err := rewardsClaimedArgs.Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode RewardsClaimed data: %w", err)
		}
		ev.Kind = models.EventRewardsClaimed
		ev.User = common.BytesToAddress(log.Topics[1].Bytes())
		ev.Amount = values[0].(*big.Int)
		ev.PoolId = values[1].(*big.Int).Uint64()

	case UnstakedTopic:
		if len(log.Topics) < 2 {
			return nil, fmt.Errorf("Unstaked log has %d topics, want 2", len(log.Topics))
		}
		values, err := unstakedArgs.Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode Unstaked data: %w", err)
		}
		ev.Kind = models.EventUnstaked
		ev.User = common.BytesToAddress(log.Topics[1].Bytes())
		ev.Amount = values[0].(*big.Int)
		ev.PoolId = values[1].(*big.Int).Uint64()

	default:
		return nil, fmt.Errorf("unknown event topic %s", log.Topics[0].Hex())
	}

	return ev, nil
}

// DecodeAll decodes a batch of logs. A decode failure on one log is logged
// and that log skipped; it never aborts the batch.
func DecodeAll(logs []types.Log) []*models.StakingEvent {
	decoded := make([]*models.StakingEvent, 0, len(logs))
	for i := range logs {
		ev, err := DecodeLog(&logs[i])
		if err != nil {
			zap.L().Warn("Skipping undecodable log",
				zap.Uint64("block", logs[i].BlockNumber),
				zap.Uint("log_index", logs[i].Index),
				zap.String("tx", logs[i].TxHash.Hex()),
				zap.Error(err))
			continue
		}
		decoded = append(decoded, ev)
	}
	return decoded
}
