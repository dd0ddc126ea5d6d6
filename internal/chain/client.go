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

package chain

import (
	"context"
	"fmt"
	"math/big"

	"stake-recovery-go/internal/retry"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// LogSource is the read surface the fetcher needs. *ethclient.Client satisfies
// it; tests supply a fake.
type LogSource interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// HeaderSource is the block-header surface the timestamp cache needs.
type HeaderSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Client wraps an ethclient connection with the retry policy and the
// block-number -> timestamp cache shared by one run. The cache is insert-only
// and owned by a single logical worker.
type Client struct {
	ec         *ethclient.Client
	headers    HeaderSource
	retryCfg   retry.Config
	timestamps map[uint64]uint64
}

// Dial connects to the RPC endpoint.
func Dial(rpcUrl string, retryCfg retry.Config) (*Client, error) {
	ec, err := ethclient.Dial(rpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC endpoint: %w", err)
	}
	return &Client{
		ec:         ec,
		headers:    ec,
		retryCfg:   retryCfg,
		timestamps: make(map[uint64]uint64),
	}, nil
}

// NewClientForTest builds a Client around fake sources.
func NewClientForTest(headers HeaderSource, retryCfg retry.Config) *Client {
	return &Client{
		headers:    headers,
		retryCfg:   retryCfg,
		timestamps: make(map[uint64]uint64),
	}
}

func (c *Client) Close() {
	if c.ec != nil {
		c.ec.Close()
	}
}

// Eth exposes the underlying ethclient for transaction submission.
func (c *Client) Eth() *ethclient.Client {
	return c.ec
}

// BlockTimestamp returns the unix timestamp of the given block, fetching the
// header with backoff on the first request and serving from the cache after.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := c.timestamps[number]; ok {
		return ts, nil
	}

	var header *types.Header
	err := retry.Do(ctx, c.retryCfg, func() error {
		var ferr error
		header, ferr = c.headers.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return ferr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch header for block %d: %w", number, err)
	}

	c.timestamps[number] = header.Time
	zap.L().Debug("Cached block timestamp",
		zap.Uint64("block", number),
		zap.Uint64("timestamp", header.Time))
	return header.Time, nil
}

// LatestBlock returns the current chain head number.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	var number uint64
	err := retry.Do(ctx, c.retryCfg, func() error {
		var ferr error
		number, ferr = c.ec.BlockNumber(ctx)
		return ferr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch latest block number: %w", err)
	}
	return number, nil
}
