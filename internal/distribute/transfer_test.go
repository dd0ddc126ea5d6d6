package distribute

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// fakeTxBackend scripts nonce responses and per-send errors so the nonce
// conflict retry path is deterministic.
type fakeTxBackend struct {
	nonces     []uint64
	nonceCalls int
	sendErrs   []error
	sentNonces []uint64
	receipts   map[common.Hash]*types.Receipt
	revert     bool
}

func (f *fakeTxBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(1337), nil
}

func (f *fakeTxBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	if f.nonceCalls >= len(f.nonces) {
		return 0, errors.New("unexpected nonce request")
	}
	n := f.nonces[f.nonceCalls]
	f.nonceCalls++
	return n, nil
}

func (f *fakeTxBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeTxBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 60_000, nil
}

func (f *fakeTxBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	call := len(f.sentNonces)
	f.sentNonces = append(f.sentNonces, tx.Nonce())
	if call < len(f.sendErrs) && f.sendErrs[call] != nil {
		return f.sendErrs[call]
	}
	if f.receipts == nil {
		f.receipts = make(map[common.Hash]*types.Receipt)
	}
	status := types.ReceiptStatusSuccessful
	if f.revert {
		status = types.ReceiptStatusFailed
	}
	f.receipts[tx.Hash()] = &types.Receipt{Status: status}
	return nil
}

func (f *fakeTxBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func newTestTransferrer(t *testing.T, backend TxBackend) *EthTransferrer {
	t.Helper()
	key, err := crypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatalf("Bad test key: %v", err)
	}
	transferrer, err := NewEthTransferrer(context.Background(), backend, key,
		time.Millisecond, time.Second)
	if err != nil {
		t.Fatalf("NewEthTransferrer failed: %v", err)
	}
	return transferrer
}

var (
	testToken     = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testRecipient = common.HexToAddress("0x1000000000000000000000000000000000000001")
)

func TestTransferSubmitsAndWaitsForReceipt(t *testing.T) {
	backend := &fakeTxBackend{nonces: []uint64{7}}
	transferrer := newTestTransferrer(t, backend)

	hash, err := transferrer.Transfer(context.Background(), testToken, testRecipient, big.NewInt(100))
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if hash == "" {
		t.Error("Expected a transaction hash")
	}
	if len(backend.sentNonces) != 1 || backend.sentNonces[0] != 7 {
		t.Errorf("Expected one send at nonce 7, got %v", backend.sentNonces)
	}
}

func TestTransferRetriesOnceOnNonceConflict(t *testing.T) {
	backend := &fakeTxBackend{
		nonces:   []uint64{7, 9},
		sendErrs: []error{errors.New("nonce too low")},
	}
	transferrer := newTestTransferrer(t, backend)

	hash, err := transferrer.Transfer(context.Background(), testToken, testRecipient, big.NewInt(100))
	if err != nil {
		t.Fatalf("Transfer failed after nonce refresh: %v", err)
	}
	if hash == "" {
		t.Error("Expected a transaction hash")
	}
	if len(backend.sentNonces) != 2 {
		t.Fatalf("Expected 2 sends, got %d", len(backend.sentNonces))
	}
	if backend.sentNonces[0] != 7 || backend.sentNonces[1] != 9 {
		t.Errorf("Expected sends at nonces [7 9], got %v", backend.sentNonces)
	}
	if backend.nonceCalls != 2 {
		t.Errorf("Expected the nonce to be fetched twice, got %d", backend.nonceCalls)
	}
}

func TestTransferDoesNotRetryTwice(t *testing.T) {
	backend := &fakeTxBackend{
		nonces:   []uint64{7, 8},
		sendErrs: []error{errors.New("nonce too low"), errors.New("nonce too low")},
	}
	transferrer := newTestTransferrer(t, backend)

	if _, err := transferrer.Transfer(context.Background(), testToken, testRecipient, big.NewInt(100)); err == nil {
		t.Fatal("Expected error after second nonce conflict")
	}
	if len(backend.sentNonces) != 2 {
		t.Errorf("Expected exactly 2 sends, got %d", len(backend.sentNonces))
	}
}

func TestTransferDoesNotRetryOtherErrors(t *testing.T) {
	backend := &fakeTxBackend{
		nonces:   []uint64{7},
		sendErrs: []error{errors.New("insufficient funds for gas * price + value")},
	}
	transferrer := newTestTransferrer(t, backend)

	if _, err := transferrer.Transfer(context.Background(), testToken, testRecipient, big.NewInt(100)); err == nil {
		t.Fatal("Expected error")
	}
	if len(backend.sentNonces) != 1 {
		t.Errorf("Expected exactly 1 send, got %d", len(backend.sentNonces))
	}
	if backend.nonceCalls != 1 {
		t.Errorf("Expected no nonce refresh, got %d fetches", backend.nonceCalls)
	}
}

func TestTransferReportsRevertedReceipt(t *testing.T) {
	backend := &fakeTxBackend{nonces: []uint64{7}, revert: true}
	transferrer := newTestTransferrer(t, backend)

	hash, err := transferrer.Transfer(context.Background(), testToken, testRecipient, big.NewInt(100))
	if err == nil {
		t.Fatal("Expected error for reverted transfer")
	}
	if hash == "" {
		t.Error("Expected the hash of the reverted transaction")
	}
}

func TestIsNonceConflict(t *testing.T) {
	conflicts := []string{
		"nonce too low",
		"Nonce too HIGH",
		"invalid nonce for account",
		"replacement transaction underpriced",
		"already known",
	}
	for _, msg := range conflicts {
		if !isNonceConflict(errors.New(msg)) {
			t.Errorf("Expected %q to be a nonce conflict", msg)
		}
	}
	others := []string{
		"insufficient funds",
		"gas required exceeds allowance",
		"execution reverted",
	}
	for _, msg := range others {
		if isNonceConflict(errors.New(msg)) {
			t.Errorf("Expected %q not to be a nonce conflict", msg)
		}
	}
	if isNonceConflict(nil) {
		t.Error("nil error must not be a nonce conflict")
	}
}
