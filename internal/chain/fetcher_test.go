package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"stake-recovery-go/internal/retry"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var testRetry = retry.Config{MaxAttempts: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

type rangeCall struct {
	from, to uint64
}

// fakeLogSource serves one synthetic log per block in [haveFrom, haveTo] and
// records every requested range. failRanges marks ranges that always error.
type fakeLogSource struct {
	haveFrom, haveTo uint64
	calls            []rangeCall
	failWider        uint64 // ranges wider than this always fail (0 = never)
}

func (f *fakeLogSource) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	from := q.FromBlock.Uint64()
	to := q.ToBlock.Uint64()
	f.calls = append(f.calls, rangeCall{from, to})

	if f.failWider > 0 && to-from+1 > f.failWider {
		return nil, errors.New("query returned more than 10000 results")
	}

	var logs []types.Log
	for b := from; b <= to; b++ {
		if b < f.haveFrom || b > f.haveTo {
			continue
		}
		logs = append(logs, types.Log{BlockNumber: b})
	}
	return logs, nil
}

func TestFetchRangeChunkedMatchesUnchunked(t *testing.T) {
	source := &fakeLogSource{haveFrom: 100, haveTo: 350}
	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")

	fetcher := NewFetcher(source, contract, 100, 10, testRetry)
	logs, err := fetcher.FetchRange(context.Background(), nil, 100, 350)
	if err != nil {
		t.Fatalf("FetchRange failed: %v", err)
	}

	if len(logs) != 251 {
		t.Fatalf("Expected 251 logs, got %d", len(logs))
	}
	seen := make(map[uint64]bool)
	for i, log := range logs {
		if seen[log.BlockNumber] {
			t.Errorf("Duplicate log for block %d", log.BlockNumber)
		}
		seen[log.BlockNumber] = true
		if want := uint64(100 + i); log.BlockNumber != want {
			t.Errorf("Log %d out of order: got block %d, want %d", i, log.BlockNumber, want)
		}
	}
}

func TestFetchRangeChunksAreContiguous(t *testing.T) {
	source := &fakeLogSource{haveFrom: 1, haveTo: 0}
	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")

	fetcher := NewFetcher(source, contract, 100, 10, testRetry)
	if _, err := fetcher.FetchRange(context.Background(), nil, 0, 249); err != nil {
		t.Fatalf("FetchRange failed: %v", err)
	}

	expected := []rangeCall{{0, 99}, {100, 199}, {200, 249}}
	if len(source.calls) != len(expected) {
		t.Fatalf("Expected %d chunk calls, got %d: %v", len(expected), len(source.calls), source.calls)
	}
	for i, want := range expected {
		if source.calls[i] != want {
			t.Errorf("Chunk %d: got [%d,%d], want [%d,%d]",
				i, source.calls[i].from, source.calls[i].to, want.from, want.to)
		}
	}
}

func TestFetchRangeShrinksChunkAndRetriesSameStart(t *testing.T) {
	// Anything wider than 25 blocks fails, so the fetcher must halve
	// 100 -> 50 -> 25 while re-requesting the same starting block.
	source := &fakeLogSource{haveFrom: 0, haveTo: 99, failWider: 25}
	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")

	fetcher := NewFetcher(source, contract, 100, 10, testRetry)
	logs, err := fetcher.FetchRange(context.Background(), nil, 0, 99)
	if err != nil {
		t.Fatalf("FetchRange failed: %v", err)
	}
	if len(logs) != 100 {
		t.Fatalf("Expected 100 logs, got %d", len(logs))
	}

	for _, call := range source.calls {
		if call.to-call.from+1 > 25 && call.from != 0 {
			t.Errorf("Oversized chunk retried at a new start: [%d,%d]", call.from, call.to)
		}
	}
	// The first successful call must still begin at block 0.
	var firstOK *rangeCall
	for i := range source.calls {
		if source.calls[i].to-source.calls[i].from+1 <= 25 {
			firstOK = &source.calls[i]
			break
		}
	}
	if firstOK == nil || firstOK.from != 0 {
		t.Errorf("Expected first successful chunk to start at block 0, calls: %v", source.calls)
	}
}

func TestFetchRangeFailsBelowMinChunkSize(t *testing.T) {
	source := &fakeLogSource{failWider: 1}
	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")

	fetcher := NewFetcher(source, contract, 100, 50, testRetry)
	if _, err := fetcher.FetchRange(context.Background(), nil, 0, 999); err == nil {
		t.Fatal("Expected error once the minimum chunk size still fails")
	}
}

func TestFetchRangeRejectsInvertedRange(t *testing.T) {
	fetcher := NewFetcher(&fakeLogSource{}, common.Address{}, 100, 10, testRetry)
	if _, err := fetcher.FetchRange(context.Background(), nil, 10, 5); err == nil {
		t.Fatal("Expected error for start > end")
	}
}

type fakeHeaderSource struct {
	calls int
	times map[uint64]uint64
}

func (f *fakeHeaderSource) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	f.calls++
	ts, ok := f.times[number.Uint64()]
	if !ok {
		return nil, fmt.Errorf("no header for block %d", number.Uint64())
	}
	return &types.Header{Number: new(big.Int).Set(number), Time: ts}, nil
}

func TestBlockTimestampCachesHeaders(t *testing.T) {
	source := &fakeHeaderSource{times: map[uint64]uint64{500: 1_700_000_000}}
	client := NewClientForTest(source, testRetry)

	for i := 0; i < 3; i++ {
		ts, err := client.BlockTimestamp(context.Background(), 500)
		if err != nil {
			t.Fatalf("BlockTimestamp failed on call %d: %v", i, err)
		}
		if ts != 1_700_000_000 {
			t.Errorf("Expected timestamp 1700000000, got %d", ts)
		}
	}
	if source.calls != 1 {
		t.Errorf("Expected 1 header fetch, got %d", source.calls)
	}
}

func TestBlockTimestampPropagatesFetchError(t *testing.T) {
	source := &fakeHeaderSource{times: map[uint64]uint64{}}
	client := NewClientForTest(source, testRetry)

	if _, err := client.BlockTimestamp(context.Background(), 42); err == nil {
		t.Fatal("Expected error for unknown block")
	}
	if source.calls != testRetry.MaxAttempts {
		t.Errorf("Expected %d attempts, got %d", testRetry.MaxAttempts, source.calls)
	}
}
