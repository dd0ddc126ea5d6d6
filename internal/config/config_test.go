package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scan.ChunkSize != 50_000 {
		t.Errorf("Expected default chunk size 50000, got %d", cfg.Scan.ChunkSize)
	}
	if cfg.Scan.MinChunkSize != 1_000 {
		t.Errorf("Expected default min chunk size 1000, got %d", cfg.Scan.MinChunkSize)
	}
	if cfg.Chain.RequestTimeout != 30*time.Second {
		t.Errorf("Expected default request timeout 30s, got %v", cfg.Chain.RequestTimeout)
	}
	if cfg.Distribute.MinAmountWei != "1000000000000" {
		t.Errorf("Expected default minimum 1000000000000 wei, got %s", cfg.Distribute.MinAmountWei)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCAN_CHUNK_SIZE", "2500")
	t.Setenv("RPC_REQUEST_TIMEOUT", "90s")
	t.Setenv("POOL_ORDER", "2,1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scan.ChunkSize != 2500 {
		t.Errorf("Expected chunk size 2500, got %d", cfg.Scan.ChunkSize)
	}
	if cfg.Chain.RequestTimeout != 90*time.Second {
		t.Errorf("Expected request timeout 90s, got %v", cfg.Chain.RequestTimeout)
	}
	if len(cfg.Distribute.PoolOrder) != 2 || cfg.Distribute.PoolOrder[0] != 2 || cfg.Distribute.PoolOrder[1] != 1 {
		t.Errorf("Expected pool order [2 1], got %v", cfg.Distribute.PoolOrder)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("RETRY_BASE_BACKOFF", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatal("Expected error for malformed duration")
	}
}

func TestParsePoolOrder(t *testing.T) {
	order, err := ParsePoolOrder("1, 0,2")
	if err != nil {
		t.Fatalf("ParsePoolOrder failed: %v", err)
	}
	want := []uint64{1, 0, 2}
	if len(order) != len(want) {
		t.Fatalf("Expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, order)
		}
	}
}

func TestParsePoolOrderRejectsDuplicates(t *testing.T) {
	if _, err := ParsePoolOrder("1,0,1"); err == nil {
		t.Fatal("Expected error for duplicate pool id")
	}
}

func TestParsePoolOrderRejectsEmpty(t *testing.T) {
	if _, err := ParsePoolOrder(" , ,"); err == nil {
		t.Fatal("Expected error for empty pool order")
	}
}

func TestParsePoolOrderRejectsNonNumeric(t *testing.T) {
	if _, err := ParsePoolOrder("1,a"); err == nil {
		t.Fatal("Expected error for non-numeric pool id")
	}
}
