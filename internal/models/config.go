package models

import "time"

// Config represents the application configuration
type Config struct {
	Chain      ChainConfig
	Scan       ScanConfig
	Distribute DistributeConfig
	Runlog     RunlogConfig
}

// ChainConfig holds RPC endpoint and contract settings
type ChainConfig struct {
	RpcUrl          string
	ContractAddress string
	RequestTimeout  time.Duration
}

// ScanConfig holds log-scan settings
type ScanConfig struct {
	ChunkSize       uint64
	MinChunkSize    uint64
	MaxAttempts     int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	PoolsFile       string
	EmergencyUnlock uint64 // block number; 0 means no emergency unlock configured
}

// DistributeConfig holds fund-distribution settings
type DistributeConfig struct {
	MinAmountWei    string // decimal wei string; recipients below this are skipped
	ErrorCooldown   time.Duration
	PoolOrder       []uint64
	ReceiptInterval time.Duration
	ReceiptTimeout  time.Duration
}

// RunlogConfig holds distribution run-ledger database settings
type RunlogConfig struct {
	Path        string
	PingTimeout time.Duration
}
