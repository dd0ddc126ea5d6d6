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

package ledger

import (
	"math/big"
	"sort"

	"stake-recovery-go/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Ledger rebuilds per-user lock-position state by replaying staking events in
// chain order. Replay is deterministic: the same ordered event stream always
// produces the same ledger.
type Ledger struct {
	// positions per user, in creation order. Creation order matters: an
	// Unstaked event consumes the first not-yet-unstaked position for its
	// (user, pool), so matching must be stable.
	positions map[common.Address][]*models.LockPosition
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		positions: make(map[common.Address][]*models.LockPosition),
	}
}

// Replay applies events in ascending chain order (block, tx index, log index).
// The input slice is not modified.
func (l *Ledger) Replay(evs []*models.StakingEvent) {
	ordered := make([]*models.StakingEvent, len(evs))
	copy(ordered, evs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Before(ordered[j])
	})

	for _, ev := range ordered {
		l.apply(ev)
	}
}

func (l *Ledger) apply(ev *models.StakingEvent) {
	switch ev.Kind {
	case models.EventLocked:
		l.applyLocked(ev)
	case models.EventUnlocked:
		l.applyUnlocked(ev)
	case models.EventRewardsClaimed:
		l.applyRewardsClaimed(ev)
	case models.EventUnstaked:
		l.applyUnstaked(ev)
	}
}

// applyLocked creates a position in state Locked. Reward accrual starts at
// the creation block, so LastClaimBlock begins there.
func (l *Ledger) applyLocked(ev *models.StakingEvent) {
	if existing := l.find(ev.User, ev.LockId); existing != nil {
		zap.L().Warn("Duplicate Locked event for existing position - keeping the original",
			zap.String("user", ev.User.Hex()),
			zap.String("lock_id", ev.LockId.String()),
			zap.Uint64("block", ev.BlockNumber))
		return
	}

	l.positions[ev.User] = append(l.positions[ev.User], &models.LockPosition{
		User:           ev.User,
		LockId:         new(big.Int).Set(ev.LockId),
		PoolId:         ev.PoolId,
		Amount:         new(big.Int).Set(ev.Amount),
		LockPeriod:     ev.LockPeriod,
		UnlockTime:     ev.UnlockTime,
		LastClaimBlock: ev.BlockNumber,
		State:          models.StateLocked,
		OriginBlock:    ev.BlockNumber,
	})
}

// applyUnlocked transitions the matching position to Unlocked. It does not
// clear the position; the principal is still owed. State never moves backward,
// so an already-unstaked position is left alone.
func (l *Ledger) applyUnlocked(ev *models.StakingEvent) {
	pos := l.find(ev.User, ev.LockId)
	if pos == nil {
		zap.L().Warn("Unlocked event for unknown position - skipping",
			zap.String("user", ev.User.Hex()),
			zap.String("lock_id", ev.LockId.String()),
			zap.Uint64("block", ev.BlockNumber))
		return
	}
	if pos.State != models.StateLocked {
		zap.L().Warn("Unlocked event for position not in Locked state - skipping",
			zap.String("user", ev.User.Hex()),
			zap.String("lock_id", ev.LockId.String()),
			zap.String("state", string(pos.State)))
		return
	}
	pos.State = models.StateUnlocked
}

// applyRewardsClaimed advances the last-claim block on ALL of the user's open
// positions in the matching pool. The event carries only the pool id, not a
// lock id, so per-lock claim granularity cannot be recovered from the event
// stream; the per-pool advance is a deliberate, coarser approximation.
func (l *Ledger) applyRewardsClaimed(ev *models.StakingEvent) {
	touched := 0
	for _, pos := range l.positions[ev.User] {
		if pos.PoolId == ev.PoolId && pos.Open() {
			pos.LastClaimBlock = ev.BlockNumber
			touched++
		}
	}
	if touched == 0 {
		zap.L().Warn("RewardsClaimed event with no open positions in pool",
			zap.String("user", ev.User.Hex()),
			zap.Uint64("pool_id", ev.PoolId),
			zap.Uint64("block", ev.BlockNumber))
	}
}

// applyUnstaked consumes at most one not-yet-unstaked position for the
// (user, pool): the first unmatched one in creation order. A position consumed
// once is never consumed again.
func (l *Ledger) applyUnstaked(ev *models.StakingEvent) {
	for _, pos := range l.positions[ev.User] {
		if pos.PoolId == ev.PoolId && pos.Open() {
			pos.State = models.StateUnstaked
			return
		}
	}
	zap.L().Warn("Unstaked event with no matching open position - skipping",
		zap.String("user", ev.User.Hex()),
		zap.Uint64("pool_id", ev.PoolId),
		zap.Uint64("block", ev.BlockNumber))
}

func (l *Ledger) find(user common.Address, lockId *big.Int) *models.LockPosition {
	for _, pos := range l.positions[user] {
		if pos.LockId.Cmp(lockId) == 0 {
			return pos
		}
	}
	return nil
}

// Positions returns one user's positions in creation order.
func (l *Ledger) Positions(user common.Address) []*models.LockPosition {
	return l.positions[user]
}

// Users returns all user addresses sorted lexically, for deterministic output.
func (l *Ledger) Users() []common.Address {
	users := make([]common.Address, 0, len(l.positions))
	for user := range l.positions {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Hex() < users[j].Hex()
	})
	return users
}

// Entitlement aggregates one user's outstanding principal per pool. Unstaked
// positions never contribute. Rewards are filled in separately at snapshot
// time.
func (l *Ledger) Entitlement(user common.Address) *models.UserEntitlement {
	ent := &models.UserEntitlement{
		Address:      user,
		Positions:    l.positions[user],
		TokensByPool: make(map[uint64]*big.Int),
		Rewards:      new(big.Int),
	}
	for _, pos := range ent.Positions {
		if !pos.Open() {
			continue
		}
		owed, ok := ent.TokensByPool[pos.PoolId]
		if !ok {
			owed = new(big.Int)
			ent.TokensByPool[pos.PoolId] = owed
		}
		owed.Add(owed, pos.Amount)
	}
	return ent
}
