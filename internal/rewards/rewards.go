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

package rewards

import (
	"math/big"

	"stake-recovery-go/internal/models"

	"go.uber.org/zap"
)

var basisPointsDivisor = big.NewInt(10_000)

// Calculator reproduces the contract's linear reward formula in exact integer
// arithmetic. No floating point ever enters the reward path.
type Calculator struct {
	table models.RewardRateTable
}

// NewCalculator builds a calculator over a rate table.
func NewCalculator(table models.RewardRateTable) *Calculator {
	return &Calculator{table: table}
}

// Accrued computes floor(amount * rateBps * elapsedSeconds / (lockPeriodSeconds * 10000)).
// A zero lock period yields zero; the formula is undefined for it and the
// contract never emits one.
func Accrued(amount *big.Int, rateBps, lockPeriodSeconds, elapsedSeconds uint64) *big.Int {
	if lockPeriodSeconds == 0 || rateBps == 0 || elapsedSeconds == 0 || amount.Sign() == 0 {
		return new(big.Int)
	}

	reward := new(big.Int).Mul(amount, new(big.Int).SetUint64(rateBps))
	reward.Mul(reward, new(big.Int).SetUint64(elapsedSeconds))
	divisor := new(big.Int).Mul(new(big.Int).SetUint64(lockPeriodSeconds), basisPointsDivisor)
	return reward.Div(reward, divisor)
}

// Elapsed returns the accrual window in seconds: min(cutoff, now) minus the
// last claim, clamped at zero. The cutoff models accrual stopping at the
// emergency-unlock boundary.
func Elapsed(lastClaim, cutoff, now uint64) uint64 {
	end := now
	if cutoff != 0 && cutoff < end {
		end = cutoff
	}
	if end <= lastClaim {
		return 0
	}
	return end - lastClaim
}

// PositionReward computes the reward owed on one position given resolved
// timestamps. A missing rate entry forces the reward to 0 with a warning,
// never an error.
func (c *Calculator) PositionReward(pos *models.LockPosition, lastClaimTs, cutoffTs, nowTs uint64) *big.Int {
	rate, ok := c.table.Rate(pos.PoolId, pos.LockPeriod)
	if !ok {
		zap.L().Warn("No reward rate configured - forcing reward to 0",
			zap.String("user", pos.User.Hex()),
			zap.String("lock_id", pos.LockId.String()),
			zap.Uint64("pool_id", pos.PoolId),
			zap.Uint64("lock_period", pos.LockPeriod))
		return new(big.Int)
	}

	elapsed := Elapsed(lastClaimTs, cutoffTs, nowTs)
	return Accrued(pos.Amount, rate, pos.LockPeriod, elapsed)
}
