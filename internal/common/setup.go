package common

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"os"
	"strings"

	"stake-recovery-go/internal/chain"
	"stake-recovery-go/internal/models"
	"stake-recovery-go/internal/retry"
	"stake-recovery-go/internal/runlog"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services bundles the shared dependencies of the CLI tools.
type Services struct {
	Chain  *chain.Client
	Runlog *runlog.Service
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices dials the RPC endpoint and opens the run-ledger.
// A missing RPC endpoint is a fatal startup error.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	if cfg.Chain.RpcUrl == "" {
		return nil, fmt.Errorf("missing required RPC endpoint: set RPC_URL")
	}

	retryCfg := retry.Config{
		MaxAttempts: cfg.Scan.MaxAttempts,
		BaseBackoff: cfg.Scan.BaseBackoff,
		MaxBackoff:  cfg.Scan.MaxBackoff,
	}

	zap.L().Info("Connecting to RPC endpoint")
	chainClient, err := chain.Dial(cfg.Chain.RpcUrl, retryCfg)
	if err != nil {
		return nil, err
	}

	runlogService, err := runlog.NewService(ctx, cfg.Runlog)
	if err != nil {
		chainClient.Close()
		return nil, err
	}

	return &Services{
		Chain:  chainClient,
		Runlog: runlogService,
	}, nil
}

func (cs *Services) Close() {
	if cs.Runlog != nil {
		cs.Runlog.Close()
	}
	if cs.Chain != nil {
		cs.Chain.Close()
	}
}

// LoadFundingKey reads the funding credential from the environment. A missing
// or malformed key is a fatal startup error for the distribution tools.
func LoadFundingKey() (*ecdsa.PrivateKey, ethcommon.Address, error) {
	raw := strings.TrimSpace(os.Getenv("PRIVATE_KEY"))
	if raw == "" {
		return nil, ethcommon.Address{}, fmt.Errorf("missing required funding credential: set PRIVATE_KEY")
	}
	raw = strings.TrimPrefix(raw, "0x")

	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, ethcommon.Address{}, fmt.Errorf("invalid PRIVATE_KEY: %w", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
