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
	flag.Parse()

	if *snapshotFlag == "" {
		zap.L().Fatal("--snapshot is required")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	pools, err := rewards.LoadPools(cfg.Scan.PoolsFile)
	if err != nil {
		zap.L().Fatal("Failed to load pools file", zap.Error(err))
	}
	if pools.RewardToken == nil {
		zap.L().Fatal("Pools file does not define a rewardToken")
	}

	parsed, err := snapshot.LoadSummary(*snapshotFlag, pools.Pools)
	if err != nil {
		zap.L().Fatal("Failed to load snapshot", zap.Error(err))
	}
	if len(parsed.Rewards) == 0 {
		fmt.Println("Snapshot contains no outstanding rewards; nothing to distribute.")
		return
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

	stats, err := executor.Run(ctx, distribute.RunParams{
		Label:      fmt.Sprintf("accrued rewards (%s)", pools.RewardToken.Symbol),
		Token:      pools.RewardToken.TokenAddress,
		Symbol:     pools.RewardToken.Symbol,
		Decimals:   pools.RewardToken.Decimals,
		Recipients: parsed.Rewards,
	})
	if err != nil {
		zap.L().Fatal("Distribution run failed", zap.Error(err))
	}

	zap.L().Info("Reward distribution finished",
		zap.Int("successful", stats.Successful),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped_by_operator", stats.SkippedByOperator),
		zap.Int("skipped_by_threshold", stats.SkippedByThreshold),
		zap.Int("already_sent", stats.AlreadySent),
		zap.Bool("cancelled", stats.Cancelled))
}
