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

	"stake-recovery-go/internal/chain"
	"stake-recovery-go/internal/common"
	"stake-recovery-go/internal/config"
	"stake-recovery-go/internal/events"
	"stake-recovery-go/internal/ledger"
	"stake-recovery-go/internal/retry"
	"stake-recovery-go/internal/rewards"
	"stake-recovery-go/internal/snapshot"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type snapshotRequest struct {
	startBlock uint64
	endBlock   uint64
	outPath    string
	summary    string
}

func parseAndValidateFlags() (*snapshotRequest, error) {
	startFlag := flag.Uint64("start", 0, "First block of the scan range (required)")
	endFlag := flag.Uint64("end", 0, "Last block of the scan range (default: chain head)")
	outFlag := flag.String("out", "snapshot-detailed.json", "Detailed snapshot output path")
	summaryFlag := flag.String("summary-out", "snapshot-summary.json", "Summary snapshot output path")
	flag.Parse()

	if *startFlag == 0 {
		return nil, fmt.Errorf("--start is required and must be a positive block number")
	}
	if *endFlag != 0 && *endFlag < *startFlag {
		return nil, fmt.Errorf("--end (%d) must not be below --start (%d)", *endFlag, *startFlag)
	}

	return &snapshotRequest{
		startBlock: *startFlag,
		endBlock:   *endFlag,
		outPath:    *outFlag,
		summary:    *summaryFlag,
	}, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.Chain.RpcUrl == "" {
		zap.L().Fatal("Missing required RPC endpoint: set RPC_URL")
	}
	if !ethcommon.IsHexAddress(cfg.Chain.ContractAddress) {
		zap.L().Fatal("Missing or invalid staking contract address: set STAKING_CONTRACT",
			zap.String("value", cfg.Chain.ContractAddress))
	}
	contract := ethcommon.HexToAddress(cfg.Chain.ContractAddress)

	pools, err := rewards.LoadPools(cfg.Scan.PoolsFile)
	if err != nil {
		zap.L().Fatal("Failed to load pools file", zap.Error(err))
	}

	retryCfg := retry.Config{
		MaxAttempts: cfg.Scan.MaxAttempts,
		BaseBackoff: cfg.Scan.BaseBackoff,
		MaxBackoff:  cfg.Scan.MaxBackoff,
	}
	client, err := chain.Dial(cfg.Chain.RpcUrl, retryCfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to RPC endpoint", zap.Error(err))
	}
	defer client.Close()

	endBlock := req.endBlock
	if endBlock == 0 {
		endBlock, err = client.LatestBlock(ctx)
		if err != nil {
			zap.L().Fatal("Failed to fetch chain head", zap.Error(err))
		}
		zap.L().Info("Using chain head as end block", zap.Uint64("end_block", endBlock))
	}

	common.PrintHeader("ENTITLEMENT SNAPSHOT", common.DefaultWidth)
	fmt.Printf("Contract:   %s\n", contract.Hex())
	fmt.Printf("Blocks:     %d - %d (%d total)\n", req.startBlock, endBlock, endBlock-req.startBlock+1)
	if cfg.Scan.EmergencyUnlock != 0 {
		fmt.Printf("Emergency unlock block: %d (reward accrual cutoff)\n", cfg.Scan.EmergencyUnlock)
	}
	common.PrintSeparator("-", common.DefaultWidth)

	fetcher := chain.NewFetcher(client.Eth(), contract, cfg.Scan.ChunkSize, cfg.Scan.MinChunkSize, retryCfg)
	logs, err := fetcher.FetchRange(ctx, events.AllTopics(), req.startBlock, endBlock)
	if err != nil {
		zap.L().Fatal("Log scan failed", zap.Error(err))
	}
	fmt.Printf("Fetched %d logs\n", len(logs))

	decoded := events.DecodeAll(logs)
	if skipped := len(logs) - len(decoded); skipped > 0 {
		fmt.Printf("Skipped %d undecodable log(s) - see structured log for details\n", skipped)
	}

	led := ledger.New()
	led.Replay(decoded)

	detailed, summary, err := snapshot.Build(ctx, snapshot.BuildParams{
		Ledger:               led,
		Calculator:           rewards.NewCalculator(pools.Table),
		Pools:                pools.Pools,
		Timestamps:           client.BlockTimestamp,
		StartBlock:           req.startBlock,
		EndBlock:             endBlock,
		EmergencyUnlockBlock: cfg.Scan.EmergencyUnlock,
		Contract:             contract.Hex(),
		ChunkSize:            cfg.Scan.ChunkSize,
	})
	if err != nil {
		zap.L().Fatal("Snapshot build failed", zap.Error(err))
	}

	if err := snapshot.WriteFile(req.outPath, detailed); err != nil {
		zap.L().Fatal("Failed to write detailed snapshot", zap.Error(err))
	}
	if err := snapshot.WriteFile(req.summary, summary); err != nil {
		zap.L().Fatal("Failed to write summary snapshot", zap.Error(err))
	}

	common.PrintHeader("SNAPSHOT COMPLETE", common.DefaultWidth)
	fmt.Printf("Users with outstanding balances: %d\n", summary.Summary.UsersWithOutstandingBalances)
	fmt.Printf("Outstanding positions:           %d\n", summary.Summary.TotalOutstandingPositions)
	for poolId, total := range summary.Summary.TotalStaked {
		fmt.Printf("Total staked (pool %s):           %s\n", poolId, total)
	}
	fmt.Printf("Total rewards:                   %s\n", summary.Summary.TotalRewards)
	fmt.Printf("Detailed artifact: %s\n", req.outPath)
	fmt.Printf("Summary artifact:  %s\n", req.summary)
	common.PrintSeparator("=", common.DefaultWidth)
}
