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

package distribute

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"stake-recovery-go/internal/chain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// TxBackend is the chain surface transfer submission needs.
// *ethclient.Client satisfies it; tests supply a fake.
type TxBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Transferrer submits one ERC-20 transfer and waits for it to be mined.
// The execution implementation talks to the chain; the simulation
// implementation performs no chain calls at all.
type Transferrer interface {
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int) (txHash string, err error)
}

// SimTransferrer rehearses transfers without touching the chain.
type SimTransferrer struct{}

func (SimTransferrer) Transfer(_ context.Context, token, to common.Address, amount *big.Int) (string, error) {
	zap.L().Info("Simulated transfer",
		zap.String("token", token.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()))
	return "", nil
}

// EthTransferrer signs and submits real ERC-20 transfers, one at a time.
// Sequential submission keeps the nonce sequence simple: one transfer is
// mined (or failed) before the next is considered.
type EthTransferrer struct {
	client          TxBackend
	key             *ecdsa.PrivateKey
	from            common.Address
	chainId         *big.Int
	receiptInterval time.Duration
	receiptTimeout  time.Duration
}

// NewEthTransferrer resolves the chain id once up front.
func NewEthTransferrer(ctx context.Context, client TxBackend, key *ecdsa.PrivateKey,
	receiptInterval, receiptTimeout time.Duration) (*EthTransferrer, error) {
	chainId, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}
	if receiptInterval <= 0 {
		receiptInterval = 3 * time.Second
	}
	if receiptTimeout <= 0 {
		receiptTimeout = 5 * time.Minute
	}
	return &EthTransferrer{
		client:          client,
		key:             key,
		from:            crypto.PubkeyToAddress(key.PublicKey),
		chainId:         chainId,
		receiptInterval: receiptInterval,
		receiptTimeout:  receiptTimeout,
	}, nil
}

// From returns the funding address derived from the signing key.
func (t *EthTransferrer) From() common.Address {
	return t.from
}

// Transfer submits transfer(to, amount) on the token contract. If submission
// fails with a nonce conflict the current transaction count is re-fetched and
// the send retried exactly once with the refreshed nonce.
func (t *EthTransferrer) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) (string, error) {
	nonce, err := t.client.PendingNonceAt(ctx, t.from)
	if err != nil {
		return "", fmt.Errorf("failed to fetch nonce: %w", err)
	}

	tx, err := t.submit(ctx, token, to, amount, nonce)
	if err != nil && isNonceConflict(err) {
		zap.L().Warn("Nonce conflict on submit - refreshing nonce and retrying once",
			zap.Uint64("stale_nonce", nonce),
			zap.Error(err))
		nonce, nerr := t.client.PendingNonceAt(ctx, t.from)
		if nerr != nil {
			return "", fmt.Errorf("failed to refresh nonce: %w", nerr)
		}
		tx, err = t.submit(ctx, token, to, amount, nonce)
	}
	if err != nil {
		return "", err
	}

	receipt, err := t.waitMined(ctx, tx.Hash())
	if err != nil {
		return tx.Hash().Hex(), err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash().Hex(), fmt.Errorf("transfer %s reverted", tx.Hash().Hex())
	}
	return tx.Hash().Hex(), nil
}

func (t *EthTransferrer) submit(ctx context.Context, token, to common.Address, amount *big.Int, nonce uint64) (*types.Transaction, error) {
	data, err := chain.PackTransfer(to, amount)
	if err != nil {
		return nil, err
	}

	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	gasLimit, err := t.client.EstimateGas(ctx, ethereum.CallMsg{
		From: t.from,
		To:   &token,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &token,
		Value:    new(big.Int),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(t.chainId), t.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transfer: %w", err)
	}

	if err := t.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transfer: %w", err)
	}
	return signed, nil
}

// waitMined polls for the receipt, cancellable between polls.
func (t *EthTransferrer) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	deadline := time.Now().Add(t.receiptTimeout)
	ticker := time.NewTicker(t.receiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			zap.L().Debug("Receipt poll failed", zap.String("tx", hash.Hex()), zap.Error(err))
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for transfer %s to be mined", hash.Hex())
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// isNonceConflict matches the provider error strings for a stale or raced
// nonce.
func isNonceConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "nonce too high") ||
		strings.Contains(msg, "invalid nonce") ||
		strings.Contains(msg, "replacement transaction underpriced") ||
		strings.Contains(msg, "already known")
}
