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
	"stake-recovery-go/internal/runlog"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type csvRequest struct {
	csvPath  string
	token    ethcommon.Address
	symbol   string
	decimals int
	doit     bool
	resend   bool
}

func parseAndValidateFlags() (*csvRequest, error) {
	csvFlag := flag.String("csv", "", "CSV file of Address,Quantity rows (required)")
	tokenFlag := flag.String("token", "", "ERC-20 token address to distribute (required)")
	symbolFlag := flag.String("symbol", "TOKEN", "Token symbol for operator display")
	decimalsFlag := flag.Int("decimals", 18, "Token decimals used to scale quantities to wei")
	doitFlag := flag.Bool("doit", false, "Execute real transfers; absence means simulation-only")
	resendFlag := flag.Bool("resend", false, "Pay recipients even if a prior execution run already paid them")
	flag.Parse()

	if *csvFlag == "" {
		return nil, fmt.Errorf("--csv is required")
	}
	if !ethcommon.IsHexAddress(*tokenFlag) {
		return nil, fmt.Errorf("--token must be a valid address, got %q", *tokenFlag)
	}
	if *decimalsFlag < 0 || *decimalsFlag > 36 {
		return nil, fmt.Errorf("--decimals out of range: %d", *decimalsFlag)
	}

	return &csvRequest{
		csvPath:  *csvFlag,
		token:    ethcommon.HexToAddress(*tokenFlag),
		symbol:   *symbolFlag,
		decimals: *decimalsFlag,
		doit:     *doitFlag,
		resend:   *resendFlag,
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

	recipients, err := distribute.LoadRecipientsCSV(req.csvPath, int32(req.decimals))
	if err != nil {
		zap.L().Fatal("Failed to load CSV", zap.Error(err))
	}
	if len(recipients) == 0 {
		fmt.Println("CSV contains no usable recipients; nothing to distribute.")
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
	if req.doit {
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
		Resend:      req.resend,
	}

	stats, err := executor.Run(ctx, distribute.RunParams{
		Label:      fmt.Sprintf("CSV export (%s)", req.csvPath),
		Token:      req.token,
		Symbol:     req.symbol,
		Decimals:   int32(req.decimals),
		Recipients: recipients,
	})
	if err != nil {
		zap.L().Fatal("Distribution run failed", zap.Error(err))
	}

	zap.L().Info("CSV distribution finished",
		zap.Int("successful", stats.Successful),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped_by_operator", stats.SkippedByOperator),
		zap.Int("skipped_by_threshold", stats.SkippedByThreshold),
		zap.Int("already_sent", stats.AlreadySent),
		zap.Bool("cancelled", stats.Cancelled))
}
