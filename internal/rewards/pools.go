package rewards

import (
	"fmt"
	"os"
	"path/filepath"

	"stake-recovery-go/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

type poolEntry struct {
	PoolId   uint64            `yaml:"poolId"`
	Token    string            `yaml:"token"`
	Symbol   string            `yaml:"symbol"`
	Decimals int32             `yaml:"decimals"`
	Rates    map[uint64]uint64 `yaml:"rates"` // lock period seconds -> basis points
}

type tokenEntry struct {
	Token    string `yaml:"token"`
	Symbol   string `yaml:"symbol"`
	Decimals int32  `yaml:"decimals"`
}

type poolsFile struct {
	Pools       []poolEntry `yaml:"pools"`
	RewardToken *tokenEntry `yaml:"rewardToken"`
}

// PoolsConfig is the parsed pools file: per-pool token metadata, the
// (pool, lock period) -> basis-points rate table, and the reward token.
type PoolsConfig struct {
	Pools       map[uint64]models.PoolInfo
	Table       models.RewardRateTable
	RewardToken *models.PoolInfo // PoolId is unused for the reward token
}

// LoadPools reads and validates the pools file.
func LoadPools(file string) (*PoolsConfig, error) {
	var path string
	if filepath.IsAbs(file) {
		path = file
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, file)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", file, err)
	}

	var parsed poolsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", file, err)
	}
	if len(parsed.Pools) == 0 {
		return nil, fmt.Errorf("%s defines no pools", file)
	}

	cfg := &PoolsConfig{
		Pools: make(map[uint64]models.PoolInfo, len(parsed.Pools)),
		Table: make(models.RewardRateTable),
	}

	for i, entry := range parsed.Pools {
		if entry.Token == "" {
			return nil, fmt.Errorf("pool at index %d missing token address", i)
		}
		if !common.IsHexAddress(entry.Token) {
			return nil, fmt.Errorf("pool %d has invalid token address %q", entry.PoolId, entry.Token)
		}
		if entry.Symbol == "" {
			return nil, fmt.Errorf("pool at index %d missing symbol", i)
		}
		if _, dup := cfg.Pools[entry.PoolId]; dup {
			return nil, fmt.Errorf("duplicate pool id %d", entry.PoolId)
		}

		cfg.Pools[entry.PoolId] = models.PoolInfo{
			PoolId:       entry.PoolId,
			TokenAddress: common.HexToAddress(entry.Token),
			Symbol:       entry.Symbol,
			Decimals:     entry.Decimals,
			Rates:        entry.Rates,
		}
		for period, bps := range entry.Rates {
			cfg.Table[models.RateKey{PoolId: entry.PoolId, LockPeriod: period}] = bps
		}
	}

	if parsed.RewardToken != nil {
		if !common.IsHexAddress(parsed.RewardToken.Token) {
			return nil, fmt.Errorf("rewardToken has invalid address %q", parsed.RewardToken.Token)
		}
		cfg.RewardToken = &models.PoolInfo{
			TokenAddress: common.HexToAddress(parsed.RewardToken.Token),
			Symbol:       parsed.RewardToken.Symbol,
			Decimals:     parsed.RewardToken.Decimals,
		}
	}

	return cfg, nil
}
