package snapshot

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stake-recovery-go/internal/ledger"
	"stake-recovery-go/internal/models"
	"stake-recovery-go/internal/rewards"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0x1000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func wei(tokens int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(tokens), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// fixedTimestamps resolves block numbers from a fixture map.
func fixedTimestamps(times map[uint64]uint64) TimestampResolver {
	return func(_ context.Context, block uint64) (uint64, error) {
		return times[block], nil
	}
}

func testPools() map[uint64]models.PoolInfo {
	return map[uint64]models.PoolInfo{
		0: {
			PoolId:       0,
			TokenAddress: common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			Symbol:       "TOKA",
			Decimals:     18,
			Rates:        map[uint64]uint64{4_320_000: 100},
		},
		1: {
			PoolId:       1,
			TokenAddress: common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
			Symbol:       "TOKB",
			Decimals:     6,
			Rates:        map[uint64]uint64{4_320_000: 200},
		},
	}
}

func testTable(pools map[uint64]models.PoolInfo) models.RewardRateTable {
	table := make(models.RewardRateTable)
	for id, pool := range pools {
		for period, rate := range pool.Rates {
			table[models.RateKey{PoolId: id, LockPeriod: period}] = rate
		}
	}
	return table
}

func buildTestLedger() *ledger.Ledger {
	l := ledger.New()
	l.Replay([]*models.StakingEvent{
		{Kind: models.EventLocked, User: alice, LockId: big.NewInt(1), PoolId: 0,
			Amount: wei(100), LockPeriod: 4_320_000, BlockNumber: 100},
		{Kind: models.EventLocked, User: alice, LockId: big.NewInt(2), PoolId: 1,
			Amount: big.NewInt(5_000_000), LockPeriod: 4_320_000, BlockNumber: 110},
		{Kind: models.EventLocked, User: bob, LockId: big.NewInt(3), PoolId: 0,
			Amount: wei(40), LockPeriod: 4_320_000, BlockNumber: 120},
		{Kind: models.EventUnstaked, User: bob, PoolId: 0, Amount: big.NewInt(0), BlockNumber: 130},
	})
	return l
}

func buildTestSnapshot(t *testing.T) (*models.DetailedSnapshot, *models.SummarySnapshot) {
	t.Helper()
	pools := testPools()
	detailed, summary, err := Build(context.Background(), BuildParams{
		Ledger:     buildTestLedger(),
		Calculator: rewards.NewCalculator(testTable(pools)),
		Pools:      pools,
		Timestamps: fixedTimestamps(map[uint64]uint64{
			100: 1_000_000, 110: 1_000_000, 120: 1_000_000, 200: 3_160_000,
		}),
		StartBlock: 100,
		EndBlock:   200,
		Contract:   "0xcccccccccccccccccccccccccccccccccccccccc",
		ChunkSize:  50_000,
		Now:        func() time.Time { return time.Unix(5_000_000, 0) },
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return detailed, summary
}

func TestBuildTotalsMatchOpenPositions(t *testing.T) {
	detailed, summary := buildTestSnapshot(t)

	// Bob's pool-0 position was unstaked, so only Alice's 100 remains.
	if got := detailed.TotalStaked["0"]; got != wei(100).String() {
		t.Errorf("Pool 0 total staked %s, want %s", got, wei(100))
	}
	if got := detailed.TotalStaked["1"]; got != "5000000" {
		t.Errorf("Pool 1 total staked %s, want 5000000", got)
	}

	if summary.Summary.UsersWithOutstandingBalances != 1 {
		t.Errorf("Expected 1 outstanding user, got %d", summary.Summary.UsersWithOutstandingBalances)
	}
	if summary.Summary.TotalOutstandingPositions != 2 {
		t.Errorf("Expected 2 outstanding positions, got %d", summary.Summary.TotalOutstandingPositions)
	}

	// Per-user token sums must add up to the pool totals.
	for _, poolKey := range []string{"0", "1"} {
		sum := new(big.Int)
		for _, user := range summary.Users {
			if s, ok := user.Tokens[poolKey]; ok {
				v, _ := new(big.Int).SetString(s, 10)
				sum.Add(sum, v)
			}
		}
		if sum.String() != detailed.TotalStaked[poolKey] {
			t.Errorf("Pool %s: user token sum %s != total staked %s", poolKey, sum, detailed.TotalStaked[poolKey])
		}
	}
}

func TestBuildRewardsStopAtCutoff(t *testing.T) {
	pools := testPools()
	run := func(emergencyBlock uint64) *models.DetailedSnapshot {
		detailed, _, err := Build(context.Background(), BuildParams{
			Ledger:     buildTestLedger(),
			Calculator: rewards.NewCalculator(testTable(pools)),
			Pools:      pools,
			Timestamps: fixedTimestamps(map[uint64]uint64{
				100: 1_000_000, 110: 1_000_000, 120: 1_000_000,
				150: 2_000_000, 200: 3_160_000,
			}),
			StartBlock:           100,
			EndBlock:             200,
			EmergencyUnlockBlock: emergencyBlock,
			Contract:             "0xcccccccccccccccccccccccccccccccccccccccc",
			ChunkSize:            50_000,
			Now:                  func() time.Time { return time.Unix(5_000_000, 0) },
		})
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		return detailed
	}

	withEmergency := run(150)
	withoutEmergency := run(0)

	a, _ := new(big.Int).SetString(withEmergency.TotalRewards.Total, 10)
	b, _ := new(big.Int).SetString(withoutEmergency.TotalRewards.Total, 10)
	if a.Cmp(b) >= 0 {
		t.Errorf("Expected earlier cutoff to reduce rewards: emergency=%s end=%s", a, b)
	}

	// Alice pool-0: 100 tokens at 100 bps, 1_000_000s elapsed of 4_320_000.
	want := rewards.Accrued(wei(100), 100, 4_320_000, 1_000_000)
	user := withEmergency.Users[alice.Hex()]
	got, _ := new(big.Int).SetString(user.Positions[0].Rewards, 10)
	if got.Cmp(want) != 0 {
		t.Errorf("Position reward %s, want %s", got, want)
	}
}

func TestBuildUnstakedPositionsEarnNothing(t *testing.T) {
	detailed, summary := buildTestSnapshot(t)

	user := detailed.Users[bob.Hex()]
	if len(user.Positions) != 1 {
		t.Fatalf("Expected 1 position for bob, got %d", len(user.Positions))
	}
	if user.Positions[0].Rewards != "0" {
		t.Errorf("Unstaked position accrued rewards: %s", user.Positions[0].Rewards)
	}
	if _, ok := summary.Users[bob.Hex()]; ok {
		t.Error("User with nothing outstanding appeared in the summary")
	}
}

func TestWriteFileIsAtomicAndRereadable(t *testing.T) {
	detailed, summary := buildTestSnapshot(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "snapshot.json")
	if err := WriteFile(path, detailed); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var reread models.DetailedSnapshot
	if err := json.Unmarshal(data, &reread); err != nil {
		t.Fatalf("Written artifact is not valid JSON: %v", err)
	}
	if reread.TotalRewards.Total != detailed.TotalRewards.Total {
		t.Errorf("Round-trip changed total rewards: %s != %s",
			reread.TotalRewards.Total, detailed.TotalRewards.Total)
	}

	// No temp files may be left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected exactly the artifact in the directory, found %d entries", len(entries))
	}

	summaryPath := filepath.Join(dir, "summary.json")
	if err := WriteFile(summaryPath, summary); err != nil {
		t.Fatalf("WriteFile failed for summary: %v", err)
	}
}

func TestLoadSummaryRoundTrip(t *testing.T) {
	_, summary := buildTestSnapshot(t)
	pools := testPools()

	path := filepath.Join(t.TempDir(), "summary.json")
	if err := WriteFile(path, summary); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	parsed, err := LoadSummary(path, pools)
	if err != nil {
		t.Fatalf("LoadSummary failed: %v", err)
	}

	pool0 := parsed.TokensByPool[0]
	if len(pool0) != 1 {
		t.Fatalf("Expected 1 pool-0 recipient, got %d", len(pool0))
	}
	if pool0[0].Address != alice {
		t.Errorf("Expected recipient %s, got %s", alice.Hex(), pool0[0].Address.Hex())
	}
	if pool0[0].Amount.Cmp(wei(100)) != 0 {
		t.Errorf("Expected amount %s, got %s", wei(100), pool0[0].Amount)
	}
	if len(parsed.Rewards) != 1 {
		t.Fatalf("Expected 1 reward recipient, got %d", len(parsed.Rewards))
	}
}

func TestLoadSummaryRejectsUnknownPool(t *testing.T) {
	_, summary := buildTestSnapshot(t)

	path := filepath.Join(t.TempDir(), "summary.json")
	if err := WriteFile(path, summary); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// Drop pool 1 from the configuration; the artifact still references it.
	pools := testPools()
	delete(pools, 1)
	if _, err := LoadSummary(path, pools); err == nil {
		t.Fatal("Expected error for artifact referencing an unconfigured pool")
	}
}

func TestLoadSummaryRejectsBadAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	artifact := []byte(`{"users": {"not-an-address": {"tokens": {"0": "1"}, "rewards": "0"}}}`)
	if err := os.WriteFile(path, artifact, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := LoadSummary(path, testPools()); err == nil {
		t.Fatal("Expected error for malformed user address")
	}
}

func TestLoadSummaryRejectsNonIntegerAmount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	artifact := []byte(`{"users": {"0x1000000000000000000000000000000000000001": {"tokens": {"0": "1.5"}, "rewards": "0"}}}`)
	if err := os.WriteFile(path, artifact, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := LoadSummary(path, testPools()); err == nil {
		t.Fatal("Expected error for non-integer amount")
	}
}
