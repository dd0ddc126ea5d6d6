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
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Fetcher scans a contract's logs over a block range in fixed-size chunks so
// each request stays under provider limits. Every chunk call runs under the
// retry policy; when a chunk still fails after exhausting its attempts the
// chunk size is halved and the same starting block is retried, so no range is
// ever skipped. Scanning [A,B] chunked yields the same log set as one
// unchunked scan, and the operation is safe to re-run.
type Fetcher struct {
	source       LogSource
	contract     common.Address
	chunkSize    uint64
	minChunkSize uint64
	retryCfg     retry.Config
}

// NewFetcher builds a fetcher for one contract address.
func NewFetcher(source LogSource, contract common.Address, chunkSize, minChunkSize uint64, retryCfg retry.Config) *Fetcher {
	if chunkSize == 0 {
		chunkSize = 50_000
	}
	if minChunkSize == 0 {
		minChunkSize = 1_000
	}
	if minChunkSize > chunkSize {
		minChunkSize = chunkSize
	}
	return &Fetcher{
		source:       source,
		contract:     contract,
		chunkSize:    chunkSize,
		minChunkSize: minChunkSize,
		retryCfg:     retryCfg,
	}
}

// FetchRange returns all logs matching the topic filter in [startBlock,
// endBlock] inclusive, in the order the provider returns them (ascending by
// block). The topics filter follows the eth_getLogs convention: position 0 is
// the event signature hash, later positions are indexed-argument filters.
func (f *Fetcher) FetchRange(ctx context.Context, topics [][]common.Hash, startBlock, endBlock uint64) ([]types.Log, error) {
	if startBlock > endBlock {
		return nil, fmt.Errorf("invalid block range: start %d > end %d", startBlock, endBlock)
	}

	zap.L().Info("Scanning log range",
		zap.Uint64("start_block", startBlock),
		zap.Uint64("end_block", endBlock),
		zap.Uint64("chunk_size", f.chunkSize))

	var collected []types.Log
	size := f.chunkSize
	from := startBlock

	for from <= endBlock {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		to := from + size - 1
		if to > endBlock || to < from { // second clause guards uint64 overflow
			to = endBlock
		}

		query := ethereum.FilterQuery{
			Addresses: []common.Address{f.contract},
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(to),
			Topics:    topics,
		}

		var logs []types.Log
		err := retry.Do(ctx, f.retryCfg, func() error {
			var ferr error
			logs, ferr = f.source.FilterLogs(ctx, query)
			return ferr
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if size > f.minChunkSize {
				size /= 2
				if size < f.minChunkSize {
					size = f.minChunkSize
				}
				zap.L().Warn("Chunk fetch failed after retries - shrinking chunk and retrying same start",
					zap.Uint64("from_block", from),
					zap.Uint64("new_chunk_size", size),
					zap.Error(err))
				continue
			}
			return nil, fmt.Errorf("failed to fetch logs for blocks [%d,%d]: %w", from, to, err)
		}

		collected = append(collected, logs...)
		zap.L().Debug("Fetched chunk",
			zap.Uint64("from_block", from),
			zap.Uint64("to_block", to),
			zap.Int("logs", len(logs)),
			zap.Int("total", len(collected)))

		from = to + 1
	}

	zap.L().Info("Log range scan complete",
		zap.Uint64("start_block", startBlock),
		zap.Uint64("end_block", endBlock),
		zap.Int("logs", len(collected)))

	return collected, nil
}
