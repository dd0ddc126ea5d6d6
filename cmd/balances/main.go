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

package main

import (
	"context"
	"flag"
	"fmt"
	"sort"

	"stake-recovery-go/internal/chain"
	"stake-recovery-go/internal/common"
	"stake-recovery-go/internal/config"
	"stake-recovery-go/internal/models"
	"stake-recovery-go/internal/rewards"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type balanceStats struct {
	tokensQueried int
	queryFailures int
}

func printBalance(symbol string, token ethcommon.Address, balance string) {
	fmt.Printf("  %-8s %s  %s\n", symbol, token.Hex(), balance)
}

func queryToken(ctx context.Context, client *chain.Client, holder ethcommon.Address,
	pool models.PoolInfo, stats *balanceStats) {
	balance, err := client.TokenBalance(ctx, pool.TokenAddress, holder)
	if err != nil {
		stats.queryFailures++
		zap.L().Error("Failed to read token balance",
			zap.String("symbol", pool.Symbol),
			zap.String("token", pool.TokenAddress.Hex()),
			zap.Error(err))
		printBalance(pool.Symbol, pool.TokenAddress, "(query failed)")
		return
	}

	stats.tokensQueried++
	readable := decimal.NewFromBigInt(balance, -pool.Decimals).String()
	printBalance(pool.Symbol, pool.TokenAddress, fmt.Sprintf("%s (%s wei)", readable, balance))
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	holderFlag := flag.String("holder", "", "Holder address to query (default: the funding key's address)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	pools, err := rewards.LoadPools(cfg.Scan.PoolsFile)
	if err != nil {
		zap.L().Fatal("Failed to load pools file", zap.Error(err))
	}

	var holder ethcommon.Address
	if *holderFlag != "" {
		if !ethcommon.IsHexAddress(*holderFlag) {
			zap.L().Fatal("Invalid holder address", zap.String("holder", *holderFlag))
		}
		holder = ethcommon.HexToAddress(*holderFlag)
	} else {
		_, addr, err := common.LoadFundingKey()
		if err != nil {
			zap.L().Fatal("No --holder given and no funding key configured", zap.Error(err))
		}
		holder = addr
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	common.PrintHeader("HOLDER BALANCE REPORT", common.DefaultWidth)
	fmt.Printf("Holder: %s\n", holder.Hex())
	common.PrintSeparator("-", common.DefaultWidth)

	stats := &balanceStats{}

	poolIds := make([]uint64, 0, len(pools.Pools))
	for id := range pools.Pools {
		poolIds = append(poolIds, id)
	}
	sort.Slice(poolIds, func(i, j int) bool { return poolIds[i] < poolIds[j] })

	for _, id := range poolIds {
		queryToken(ctx, services.Chain, holder, pools.Pools[id], stats)
	}
	if pools.RewardToken != nil {
		queryToken(ctx, services.Chain, holder, *pools.RewardToken, stats)
	}

	summary := fmt.Sprintf("SUMMARY: %d token(s) queried, %d failure(s)",
		stats.tokensQueried, stats.queryFailures)
	common.PrintFooter(summary, common.DefaultWidth)

	zap.L().Info("Balance report completed",
		zap.Int("tokens_queried", stats.tokensQueried),
		zap.Int("query_failures", stats.queryFailures))
}
