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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"stake-recovery-go/internal/models"
)

func Load() (*models.Config, error) {
	requestTimeout, err := getEnvDuration("RPC_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	baseBackoff, err := getEnvDuration("RETRY_BASE_BACKOFF", 1*time.Second)
	if err != nil {
		return nil, err
	}

	maxBackoff, err := getEnvDuration("RETRY_MAX_BACKOFF", 30*time.Second)
	if err != nil {
		return nil, err
	}

	errorCooldown, err := getEnvDuration("ERROR_COOLDOWN", 5*time.Second)
	if err != nil {
		return nil, err
	}

	receiptInterval, err := getEnvDuration("RECEIPT_POLL_INTERVAL", 3*time.Second)
	if err != nil {
		return nil, err
	}

	receiptTimeout, err := getEnvDuration("RECEIPT_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("RUNLOG_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	// The per-pool processing order was an operational decision during the
	// incident response; it stays configurable, never hard-coded.
	poolOrder, err := ParsePoolOrder(getEnvString("POOL_ORDER", "1,0,2"))
	if err != nil {
		return nil, err
	}

	emergencyUnlock, err := getEnvUint64("EMERGENCY_UNLOCK_BLOCK", 0)
	if err != nil {
		return nil, err
	}

	chunkSize, err := getEnvUint64("SCAN_CHUNK_SIZE", 50_000)
	if err != nil {
		return nil, err
	}

	minChunkSize, err := getEnvUint64("SCAN_MIN_CHUNK_SIZE", 1_000)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Chain: models.ChainConfig{
			RpcUrl:          getEnvString("RPC_URL", ""),
			ContractAddress: getEnvString("STAKING_CONTRACT", ""),
			RequestTimeout:  requestTimeout,
		},
		Scan: models.ScanConfig{
			ChunkSize:       chunkSize,
			MinChunkSize:    minChunkSize,
			MaxAttempts:     getEnvInt("RETRY_MAX_ATTEMPTS", 5),
			BaseBackoff:     baseBackoff,
			MaxBackoff:      maxBackoff,
			PoolsFile:       getEnvString("POOLS_FILE", "pools.yaml"),
			EmergencyUnlock: emergencyUnlock,
		},
		Distribute: models.DistributeConfig{
			MinAmountWei:    getEnvString("MIN_DISTRIBUTION_WEI", "1000000000000"),
			ErrorCooldown:   errorCooldown,
			PoolOrder:       poolOrder,
			ReceiptInterval: receiptInterval,
			ReceiptTimeout:  receiptTimeout,
		},
		Runlog: models.RunlogConfig{
			Path:        getEnvString("RUNLOG_PATH", "distribution-runs.db"),
			PingTimeout: pingTimeout,
		},
	}, nil
}

func ParsePoolOrder(raw string) ([]uint64, error) {
	parts := strings.Split(raw, ",")
	order := make([]uint64, 0, len(parts))
	seen := make(map[uint64]bool)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid pool id %q in POOL_ORDER: %w", part, err)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate pool id %d in POOL_ORDER", id)
		}
		seen[id] = true
		order = append(order, id)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("POOL_ORDER is empty")
	}
	return order, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) (uint64, error) {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: %q (%w)", key, value, err)
		}
		return parsed, nil
	}
	return defaultValue, nil
}
