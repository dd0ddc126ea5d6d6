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

package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stake-recovery-go/internal/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Service is the durable ledger of distribution outcomes. Every recipient
// processed by any run is recorded here, and execution runs consult it so a
// re-run after a crash never double-pays an already-successful transfer.
type Service struct {
	db *sql.DB
}

// NewService opens (or creates) the run-ledger database.
func NewService(ctx context.Context, cfg models.RunlogConfig) (*Service, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("runlog path cannot be empty")
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}

	zap.L().Info("Opening run-ledger database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("unable to open run-ledger database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping run-ledger database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to initialize run-ledger schema: %w", err)
	}
	return service, nil
}

func (s *Service) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			token TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			successful INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			skipped_by_operator INTEGER NOT NULL DEFAULT 0,
			skipped_by_threshold INTEGER NOT NULL DEFAULT 0,
			already_sent INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			token TEXT NOT NULL,
			recipient TEXT NOT NULL,
			amount TEXT NOT NULL,
			outcome TEXT NOT NULL,
			tx_hash TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);

		CREATE INDEX IF NOT EXISTS idx_items_lookup
			ON items(token, recipient, outcome, mode);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close run-ledger database", zap.Error(err))
	}
}

// Run modes.
const (
	ModeSimulation = "simulation"
	ModeExecution  = "execution"
)

// StartRun records a new run and returns its id.
func (s *Service) StartRun(ctx context.Context, mode, token string) (string, error) {
	runId := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, token, started_at) VALUES (?, ?, ?, ?)`,
		runId, mode, token, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("unable to record run start: %w", err)
	}
	return runId, nil
}

// ItemParams describe one classified recipient outcome.
type ItemParams struct {
	RunId     string
	Mode      string
	Token     string
	Recipient string
	Amount    string
	Outcome   models.ItemOutcome
	TxHash    string
	Error     string
}

// RecordItem appends one outcome row.
func (s *Service) RecordItem(ctx context.Context, p ItemParams) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items (id, run_id, mode, token, recipient, amount, outcome, tx_hash, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), p.RunId, p.Mode, p.Token, p.Recipient, p.Amount,
		string(p.Outcome), p.TxHash, p.Error, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("unable to record item outcome: %w", err)
	}
	return nil
}

// HasSuccessfulSend reports whether a prior EXECUTION run already paid this
// recipient for this token. Simulation rows never count.
func (s *Service) HasSuccessfulSend(ctx context.Context, token, recipient string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM items
		 WHERE token = ? AND recipient = ? AND outcome = ? AND mode = ?`,
		token, recipient, string(models.OutcomeSuccess), ModeExecution).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("unable to query prior sends: %w", err)
	}
	return count > 0, nil
}

// FinishRun stamps the run's end time and final counters.
func (s *Service) FinishRun(ctx context.Context, runId string, stats models.RunStats) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, successful = ?, failed = ?,
		        skipped_by_operator = ?, skipped_by_threshold = ?, already_sent = ?
		 WHERE id = ?`,
		time.Now().UTC(), stats.Successful, stats.Failed,
		stats.SkippedByOperator, stats.SkippedByThreshold, stats.AlreadySent, runId)
	if err != nil {
		return fmt.Errorf("unable to record run finish: %w", err)
	}
	return nil
}
