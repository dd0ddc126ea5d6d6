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
	"math/big"

	"stake-recovery-go/internal/common"
	"stake-recovery-go/internal/config"
	"stake-recovery-go/internal/distribute"
	"stake-recovery-go/internal/models"
	"stake-recovery-go/internal/rewards"
	"stake-recovery-go/internal/runlog"
	"stake-recovery-go/internal/snapshot"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	snapshotFlag := flag.String("snapshot", "", "Summary snapshot file (required)")
	doitFlag := flag.Bool("doit", false, "Execute real transfers; absence means simulation-only")
	resendFlag := flag.Bool("resend", false, "Pay recipients even if a prior execution run already paid them")
	poolOrderFlag := flag.String("pool-order", "", "Override the configured pool processing order, e.g. 1,0,2")
	flag.Parse()

	if *snapshotFlag == "" {
		zap.L().Fatal("--snapshot is required")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}
	if *poolOrderFlag != "" {
		order, perr := config.ParsePoolOrder(*poolOrderFlag)
		if perr != nil {
			zap.L().Fatal("Invalid --pool-order", zap.Error(perr))
		}
		cfg.Distribute.PoolOrder = order
	}

	pools, err := rewards.LoadPools(cfg.Scan.PoolsFile)
	if err != nil {
		zap.L().Fatal("Failed to load pools file", zap.Error(err))
	}

	parsed, err := snapshot.LoadSummary(*snapshotFlag, pools.Pools)
	if err != nil {
		zap.L().Fatal("Failed to load snapshot", zap.Error(err))
	}

	key, holder, err := common.LoadFundingKey()
	if err != nil {
		zap.L().Fatal("Failed to load funding credential", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	threshold, ok := new(big.Int).SetString(cfg.Distribute.MinAmountWei, 10)
	if !ok {
		zap.L().Fatal("Invalid MIN_DISTRIBUTION_WEI", zap.String("value", cfg.Distribute.MinAmountWei))
	}

	mode := runlog.ModeSimulation
	var transferrer distribute.Transferrer = distribute.SimTransferrer{}
	if *doitFlag {
		mode = runlog.ModeExecution
		eth, terr := distribute.NewEthTransferrer(ctx, services.Chain.Eth(), key,
			cfg.Distribute.ReceiptInterval, cfg.Distribute.ReceiptTimeout)
		if terr != nil {
			zap.L().Fatal("Failed to initialize transfer signer", zap.Error(terr))
		}
		transferrer = eth
	}

	executor := &distribute.Executor{
		Confirmer:   distribute.NewTerminalConfirmer(),
		Transferrer: transferrer,
		Balances:    services.Chain,
		Runlog:      services.Runlog,
		Mode:        mode,
		Holder:      holder,
		Threshold:   threshold,
		Cooldown:    cfg.Distribute.ErrorCooldown,
		Resend:      *resendFlag,
	}

	total := models.RunStats{}
	for _, poolId := range cfg.Distribute.PoolOrder {
		pool, ok := pools.Pools[poolId]
		if !ok {
			zap.L().Warn("POOL_ORDER names a pool missing from the pools file - skipping",
				zap.Uint64("pool_id", poolId))
			continue
		}
		recipients := parsed.TokensByPool[poolId]
		if len(recipients) == 0 {
			fmt.Printf("Pool %d: no recipients in snapshot, skipping.\n", poolId)
			continue
		}

		stats, err := executor.Run(ctx, distribute.RunParams{
			Label:      fmt.Sprintf("pool %d principal (%s)", poolId, pool.Symbol),
			Token:      pool.TokenAddress,
			Symbol:     pool.Symbol,
			Decimals:   pool.Decimals,
			Recipients: recipients,
		})
		if err != nil {
			zap.L().Fatal("Distribution run failed", zap.Uint64("pool_id", poolId), zap.Error(err))
		}

		total.Successful += stats.Successful
		total.Failed += stats.Failed
		total.SkippedByOperator += stats.SkippedByOperator
		total.SkippedByThreshold += stats.SkippedByThreshold
		total.AlreadySent += stats.AlreadySent

		if stats.Cancelled {
			fmt.Println("Remaining pools left untouched after operator cancel.")
			break
		}
	}

	common.PrintFooter(fmt.Sprintf(
		"ALL POOLS: %d successful, %d failed, %d skipped by operator, %d below threshold, %d already sent",
		total.Successful, total.Failed, total.SkippedByOperator,
		total.SkippedByThreshold, total.AlreadySent), common.DefaultWidth)
}
