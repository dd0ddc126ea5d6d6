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

package distribute

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"stake-recovery-go/internal/common"
	"stake-recovery-go/internal/models"
	"stake-recovery-go/internal/runlog"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BalanceReader reads an ERC-20 balance. chain.Client satisfies it.
type BalanceReader interface {
	TokenBalance(ctx context.Context, token, holder ethcommon.Address) (*big.Int, error)
}

// Executor replays a list of entitlements as ERC-20 transfers under operator
// supervision. Simulation and execution runs share the identical loop shape,
// prompts included; only the Transferrer differs. Processing is strictly
// sequential: one transfer completes (or fails) before the next is considered.
type Executor struct {
	Confirmer   Confirmer
	Transferrer Transferrer
	Balances    BalanceReader
	Runlog      *runlog.Service
	Mode        string // runlog.ModeSimulation or runlog.ModeExecution
	Holder      ethcommon.Address
	Threshold   *big.Int // recipients strictly below this are skipped
	Cooldown    time.Duration
	Resend      bool // pay even recipients a prior execution run already paid
}

// RunParams describe one distribution pass over a single token.
type RunParams struct {
	Label      string // operator-facing name, e.g. "pool 1 principal"
	Token      ethcommon.Address
	Symbol     string
	Decimals   int32
	Recipients []models.Recipient
}

// Run processes all recipients and returns the per-run outcome counters.
// Per-recipient failures are counted, never propagated: the only errors
// returned are context cancellation and run-ledger write failures. Operator
// cancellation ends the run normally with the remaining recipients untouched.
func (e *Executor) Run(ctx context.Context, p RunParams) (*models.RunStats, error) {
	stats := &models.RunStats{}

	runId := ""
	if e.Runlog != nil {
		var err error
		runId, err = e.Runlog.StartRun(ctx, e.Mode, p.Token.Hex())
		if err != nil {
			return nil, err
		}
	}

	eligible, belowThreshold := e.splitByThreshold(p.Recipients)
	// Smallest transfers first.
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Amount.Cmp(eligible[j].Amount) < 0
	})

	e.printRunHeader(p, len(eligible), len(belowThreshold))

	for _, r := range belowThreshold {
		stats.SkippedByThreshold++
		if err := e.record(ctx, runId, p.Token, r, models.OutcomeSkippedByThreshold, "", ""); err != nil {
			return stats, err
		}
	}

	proceed, err := e.checkCoverage(ctx, p, eligible)
	if err != nil {
		return stats, err
	}
	if !proceed {
		fmt.Println("Run stopped by operator after coverage check.")
		stats.Cancelled = true
		return stats, e.finish(ctx, runId, stats)
	}

	autoConfirm := false
	for i, r := range eligible {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if e.Mode == runlog.ModeExecution && !e.Resend && e.Runlog != nil {
			sent, err := e.Runlog.HasSuccessfulSend(ctx, p.Token.Hex(), r.Address.Hex())
			if err != nil {
				return stats, err
			}
			if sent {
				stats.AlreadySent++
				fmt.Printf("  %s~ %s already paid in a prior run - skipping%s\n",
					colorYellow, r.Address.Hex(), colorReset)
				if err := e.record(ctx, runId, p.Token, r, models.OutcomeAlreadySent, "", ""); err != nil {
					return stats, err
				}
				continue
			}
		}

		if !autoConfirm {
			prompt := fmt.Sprintf("Send %s %s to %s (%d/%d)?",
				readable(r.Amount, p.Decimals), p.Symbol, recipientLabel(r), i+1, len(eligible))
			answer, err := e.Confirmer.Ask(prompt)
			if err != nil {
				return stats, err
			}
			switch answer {
			case AnswerCancel:
				fmt.Printf("\n%sRun cancelled by operator. %d recipient(s) left untouched.%s\n",
					colorYellow, len(eligible)-i, colorReset)
				zap.L().Info("Distribution cancelled by operator",
					zap.Int("processed", i),
					zap.Int("remaining", len(eligible)-i))
				stats.Cancelled = true
				return stats, e.finish(ctx, runId, stats)
			case AnswerNo:
				stats.SkippedByOperator++
				if err := e.record(ctx, runId, p.Token, r, models.OutcomeSkippedByOperator, "", ""); err != nil {
					return stats, err
				}
				continue
			case AnswerAll:
				autoConfirm = true
			}
		}

		txHash, sendErr := e.Transferrer.Transfer(ctx, p.Token, r.Address, r.Amount)
		if sendErr != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			// Any error turns auto-confirm back off: the operator must
			// explicitly continue.
			autoConfirm = false
			fmt.Printf("  %s✗ %s %s to %s failed: %s%s\n",
				colorRed, readable(r.Amount, p.Decimals), p.Symbol, r.Address.Hex(), sendErr, colorReset)
			zap.L().Error("Transfer failed",
				zap.String("recipient", r.Address.Hex()),
				zap.String("amount", r.Amount.String()),
				zap.Error(sendErr))
			if err := e.record(ctx, runId, p.Token, r, models.OutcomeFailure, txHash, sendErr.Error()); err != nil {
				return stats, err
			}
			if err := e.cooldown(ctx); err != nil {
				return stats, err
			}
			continue
		}

		stats.Successful++
		if e.Mode == runlog.ModeSimulation {
			fmt.Printf("  %s✓ [SIMULATION] %s %s to %s%s\n",
				colorCyan, readable(r.Amount, p.Decimals), p.Symbol, recipientLabel(r), colorReset)
		} else {
			fmt.Printf("  %s✓ %s %s to %s | %s%s\n",
				colorGreen, readable(r.Amount, p.Decimals), p.Symbol, recipientLabel(r), txHash, colorReset)
		}
		if err := e.record(ctx, runId, p.Token, r, models.OutcomeSuccess, txHash, ""); err != nil {
			return stats, err
		}
	}

	e.printRunSummary(p, stats)
	return stats, e.finish(ctx, runId, stats)
}

// splitByThreshold separates recipients below the configured minimum.
func (e *Executor) splitByThreshold(recipients []models.Recipient) (eligible, below []models.Recipient) {
	for _, r := range recipients {
		if e.Threshold != nil && r.Amount.Cmp(e.Threshold) < 0 {
			below = append(below, r)
			continue
		}
		eligible = append(eligible, r)
	}
	return eligible, below
}

// checkCoverage compares the holder balance against the total owed and
// reports coverage as a percentage. Insufficiency never blocks the run by
// itself; it requires one explicit operator override. Returns false when the
// operator declines.
func (e *Executor) checkCoverage(ctx context.Context, p RunParams, eligible []models.Recipient) (bool, error) {
	total := new(big.Int)
	for _, r := range eligible {
		total.Add(total, r.Amount)
	}
	if total.Sign() == 0 {
		return true, nil
	}
	if e.Balances == nil {
		fmt.Println("  (no RPC connection - skipping balance sufficiency check)")
		return true, nil
	}

	balance, err := e.Balances.TokenBalance(ctx, p.Token, e.Holder)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		zap.L().Warn("Could not read holder balance", zap.Error(err))
		answer, aerr := e.Confirmer.Ask("Could not verify holder balance. Continue anyway?")
		if aerr != nil {
			return false, aerr
		}
		return answer == AnswerYes || answer == AnswerAll, nil
	}

	coverage := decimal.NewFromBigInt(balance, 0).
		Div(decimal.NewFromBigInt(total, 0)).
		Mul(decimal.NewFromInt(100))
	sufficient := balance.Cmp(total) >= 0

	fmt.Printf("Holder balance:  %s %s\n", readable(balance, p.Decimals), p.Symbol)
	fmt.Printf("Total owed:      %s %s\n", readable(total, p.Decimals), p.Symbol)
	fmt.Printf("Coverage:        %s%%\n", coverage.StringFixed(2))

	if sufficient {
		return true, nil
	}

	fmt.Printf("%s⚠ Holder balance does NOT cover the total owed.%s\n", colorRed, colorReset)
	zap.L().Warn("Insufficient holder balance",
		zap.String("balance", balance.String()),
		zap.String("total_owed", total.String()),
		zap.String("coverage_pct", coverage.StringFixed(2)))

	answer, err := e.Confirmer.Ask("Balance is insufficient. Continue anyway?")
	if err != nil {
		return false, err
	}
	return answer == AnswerYes || answer == AnswerAll, nil
}

// cooldown waits the fixed post-error delay, cancellable.
func (e *Executor) cooldown(ctx context.Context) error {
	if e.Cooldown <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.Cooldown):
		return nil
	}
}

func (e *Executor) record(ctx context.Context, runId string, token ethcommon.Address,
	r models.Recipient, outcome models.ItemOutcome, txHash, errMsg string) error {
	if e.Runlog == nil {
		return nil
	}
	return e.Runlog.RecordItem(ctx, runlog.ItemParams{
		RunId:     runId,
		Mode:      e.Mode,
		Token:     token.Hex(),
		Recipient: r.Address.Hex(),
		Amount:    r.Amount.String(),
		Outcome:   outcome,
		TxHash:    txHash,
		Error:     errMsg,
	})
}

func (e *Executor) finish(ctx context.Context, runId string, stats *models.RunStats) error {
	if e.Runlog == nil {
		return nil
	}
	return e.Runlog.FinishRun(ctx, runId, *stats)
}

func (e *Executor) printRunHeader(p RunParams, eligible, belowThreshold int) {
	title := fmt.Sprintf("DISTRIBUTION - %s", p.Label)
	if e.Mode == runlog.ModeSimulation {
		title += " [SIMULATION]"
	}
	common.PrintHeader(title, common.DefaultWidth)
	fmt.Printf("Token:      %s (%s)\n", p.Symbol, p.Token.Hex())
	fmt.Printf("Recipients: %d eligible, %d below threshold\n", eligible, belowThreshold)
	common.PrintSeparator("-", common.DefaultWidth)
}

func (e *Executor) printRunSummary(p RunParams, stats *models.RunStats) {
	common.PrintFooter(fmt.Sprintf(
		"%s: %d successful, %d failed, %d skipped by operator, %d below threshold, %d already sent",
		p.Label, stats.Successful, stats.Failed, stats.SkippedByOperator,
		stats.SkippedByThreshold, stats.AlreadySent), common.DefaultWidth)
}

func recipientLabel(r models.Recipient) string {
	if r.Nametag != "" {
		return fmt.Sprintf("%s (%s)", r.Address.Hex(), r.Nametag)
	}
	return r.Address.Hex()
}

// readable renders a wei amount for operator display only.
func readable(amount *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// ANSI color helpers for console output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)
