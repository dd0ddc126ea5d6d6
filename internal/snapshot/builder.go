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

package snapshot

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"stake-recovery-go/internal/ledger"
	"stake-recovery-go/internal/models"
	"stake-recovery-go/internal/rewards"

	"github.com/shopspring/decimal"
)

// TimestampResolver maps a block number to its unix timestamp.
// chain.Client.BlockTimestamp satisfies it; tests supply a fixture.
type TimestampResolver func(ctx context.Context, block uint64) (uint64, error)

// BuildParams carries everything the builder needs besides the ledger.
type BuildParams struct {
	Ledger               *ledger.Ledger
	Calculator           *rewards.Calculator
	Pools                map[uint64]models.PoolInfo
	Timestamps           TimestampResolver
	StartBlock           uint64
	EndBlock             uint64
	EmergencyUnlockBlock uint64 // 0 = none configured
	Contract             string
	ChunkSize            uint64
	Now                  func() time.Time
}

// Build derives both artifacts from a replayed ledger. Rewards are computed
// fresh here, never carried incrementally: accrual runs from each position's
// last claim to min(emergency-unlock timestamp, now), entirely in big.Int.
func Build(ctx context.Context, p BuildParams) (*models.DetailedSnapshot, *models.SummarySnapshot, error) {
	if p.Now == nil {
		p.Now = time.Now
	}

	cutoffTs := uint64(0)
	if p.EmergencyUnlockBlock != 0 {
		ts, err := p.Timestamps(ctx, p.EmergencyUnlockBlock)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve emergency unlock timestamp: %w", err)
		}
		cutoffTs = ts
	} else {
		ts, err := p.Timestamps(ctx, p.EndBlock)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve end block timestamp: %w", err)
		}
		cutoffTs = ts
	}
	nowTs := uint64(p.Now().UTC().Unix())

	poolTokens := make(map[string]string, len(p.Pools))
	for id, pool := range p.Pools {
		poolTokens[poolKey(id)] = pool.TokenAddress.Hex()
	}

	metadata := models.SnapshotMetadata{
		CreatedAt:            p.Now().UTC(),
		StartBlock:           p.StartBlock,
		EndBlock:             p.EndBlock,
		TotalBlocks:          p.EndBlock - p.StartBlock + 1,
		EmergencyUnlockBlock: p.EmergencyUnlockBlock,
		Contract:             p.Contract,
		ChunkSize:            p.ChunkSize,
		PoolTokens:           poolTokens,
	}

	detailed := &models.DetailedSnapshot{
		Metadata:    metadata,
		Users:       make(map[string]models.SnapshotUser),
		TotalStaked: make(map[string]string),
	}
	summary := &models.SummarySnapshot{
		Metadata: metadata,
		Users:    make(map[string]models.SummaryUser),
	}

	totalStaked := make(map[uint64]*big.Int)
	totalRewards := new(big.Int)
	outstandingUsers := 0
	outstandingPositions := 0

	for _, user := range p.Ledger.Users() {
		ent := p.Ledger.Entitlement(user)
		userRewards := new(big.Int)

		positions := make([]models.SnapshotPosition, 0, len(ent.Positions))
		for _, pos := range ent.Positions {
			reward := new(big.Int)
			if pos.Open() {
				lastClaimTs, err := p.Timestamps(ctx, pos.LastClaimBlock)
				if err != nil {
					return nil, nil, fmt.Errorf("failed to resolve last claim timestamp for %s lock %s: %w",
						user.Hex(), pos.LockId.String(), err)
				}
				reward = p.Calculator.PositionReward(pos, lastClaimTs, cutoffTs, nowTs)
				userRewards.Add(userRewards, reward)
				outstandingPositions++
			}
			pos.Rewards = reward

			positions = append(positions, models.SnapshotPosition{
				LockId:         pos.LockId.String(),
				PoolId:         poolKey(pos.PoolId),
				Amount:         pos.Amount.String(),
				LockPeriod:     pos.LockPeriod,
				UnlockTime:     pos.UnlockTime,
				LastClaimBlock: pos.LastClaimBlock,
				State:          string(pos.State),
				OriginBlock:    pos.OriginBlock,
				Rewards:        reward.String(),
			})
		}

		owedTokens := make(map[string]string, len(ent.TokensByPool))
		readable := make(map[string]string, len(ent.TokensByPool))
		hasOutstanding := false
		for poolId, owed := range ent.TokensByPool {
			if owed.Sign() == 0 {
				continue
			}
			hasOutstanding = true
			owedTokens[poolKey(poolId)] = owed.String()
			readable[poolKey(poolId)] = readableAmount(owed, p.Pools[poolId].Decimals)

			total, ok := totalStaked[poolId]
			if !ok {
				total = new(big.Int)
				totalStaked[poolId] = total
			}
			total.Add(total, owed)
		}
		totalRewards.Add(totalRewards, userRewards)
		if hasOutstanding || userRewards.Sign() > 0 {
			outstandingUsers++
		}

		detailed.Users[user.Hex()] = models.SnapshotUser{
			Positions: positions,
			TotalOwed: models.SnapshotTotalOwed{
				Tokens:  owedTokens,
				Rewards: userRewards.String(),
			},
		}
		if hasOutstanding || userRewards.Sign() > 0 {
			summary.Users[user.Hex()] = models.SummaryUser{
				Tokens:          owedTokens,
				TokensReadable:  readable,
				Rewards:         userRewards.String(),
				RewardsReadable: readableAmount(userRewards, rewardDecimals),
			}
		}
	}

	stakedStrings := make(map[string]string, len(totalStaked))
	for poolId, total := range totalStaked {
		stakedStrings[poolKey(poolId)] = total.String()
	}
	stats := models.SnapshotSummaryStats{
		UsersWithOutstandingBalances: outstandingUsers,
		TotalOutstandingPositions:    outstandingPositions,
		TotalStaked:                  stakedStrings,
		TotalRewards:                 totalRewards.String(),
	}

	detailed.TotalStaked = stakedStrings
	detailed.TotalRewards.Total = totalRewards.String()
	detailed.Summary = stats
	summary.Summary = stats

	return detailed, summary, nil
}

// rewardDecimals is the wei scale of the reward token.
const rewardDecimals = 18

func poolKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// readableAmount renders a wei amount at the token's decimals for humans.
// Display only; consumers must re-parse the raw decimal strings.
func readableAmount(amount *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(amount, -decimals).String()
}
