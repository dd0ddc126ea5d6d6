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
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strconv"

	"stake-recovery-go/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// ParsedSummary is a summary snapshot with every decimal string re-parsed as
// a big integer and every pool id validated against the configured pools.
type ParsedSummary struct {
	Raw          *models.SummarySnapshot
	TokensByPool map[uint64][]models.Recipient
	Rewards      []models.Recipient
}

// LoadSummary reads a summary artifact and validates it. Amounts round-trip
// through decimal strings only, never floating point; a pool id not present
// in pools, a non-integer amount, or a malformed address is an error.
func LoadSummary(path string, pools map[uint64]models.PoolInfo) (*ParsedSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read snapshot %s: %w", path, err)
	}

	var raw models.SummarySnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unable to parse snapshot %s: %w", path, err)
	}

	parsed := &ParsedSummary{
		Raw:          &raw,
		TokensByPool: make(map[uint64][]models.Recipient),
	}

	for addr, user := range raw.Users {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("snapshot user %q is not a valid address", addr)
		}
		recipient := common.HexToAddress(addr)

		for poolKey, amountStr := range user.Tokens {
			poolId, err := strconv.ParseUint(poolKey, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("snapshot user %s has invalid pool id %q", addr, poolKey)
			}
			if _, ok := pools[poolId]; !ok {
				return nil, fmt.Errorf("snapshot user %s references unconfigured pool %d", addr, poolId)
			}
			amount, ok := new(big.Int).SetString(amountStr, 10)
			if !ok {
				return nil, fmt.Errorf("snapshot user %s pool %d has invalid amount %q", addr, poolId, amountStr)
			}
			parsed.TokensByPool[poolId] = append(parsed.TokensByPool[poolId], models.Recipient{
				Address: recipient,
				Amount:  amount,
			})
		}

		if user.Rewards != "" {
			reward, ok := new(big.Int).SetString(user.Rewards, 10)
			if !ok {
				return nil, fmt.Errorf("snapshot user %s has invalid rewards %q", addr, user.Rewards)
			}
			if reward.Sign() > 0 {
				parsed.Rewards = append(parsed.Rewards, models.Recipient{
					Address: recipient,
					Amount:  reward,
				})
			}
		}
	}

	// Map iteration order is random; give callers a stable base order.
	for poolId := range parsed.TokensByPool {
		sortRecipients(parsed.TokensByPool[poolId])
	}
	sortRecipients(parsed.Rewards)

	return parsed, nil
}

func sortRecipients(rs []models.Recipient) {
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].Address.Hex() < rs[j].Address.Hex()
	})
}
