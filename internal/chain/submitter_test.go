package chain

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumpay/gateway/internal/audit"
	"github.com/quantumpay/gateway/internal/chain/rpc"
	"github.com/quantumpay/gateway/internal/config"
	"github.com/quantumpay/gateway/internal/domain/model"
)

type stubRPC struct {
	mu      sync.Mutex
	nonce   uint64
	sent    []string
	receipt *rpc.Receipt
}

func (s *stubRPC) GetTransactionCount(context.Context, string, string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce, nil
}

func (s *stubRPC) GasPrice(context.Context) (string, error) { return "0x1", nil }

func (s *stubRPC) SendRawTransaction(_ context.Context, rawTx string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, rawTx)
	s.nonce++
	return "0xdeadbeef", nil
}

func (s *stubRPC) GetTransactionReceipt(context.Context, string) (*rpc.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receipt, nil
}

func testSubmitter(t *testing.T, client rpc.RPCClient) *Submitter {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := config.NewChainRegistry(map[model.Chain]config.ChainEntry{
		model.ChainEthereum: {
			ChainID:         1,
			RPCURL:          "http://localhost:8545",
			ContractAddress: "0x1111111111111111111111111111111111111111",
			TokenAddress:    "0x2222222222222222222222222222222222222222",
			TokenDecimals:   6,
			GasLimit:        200000,
			GasPriceGwei:    20,
		},
		model.ChainBase: {
			ChainID:         8453,
			RPCURL:          "http://localhost:8546",
			ContractAddress: "0x4444444444444444444444444444444444444444",
			GasLimit:        200000,
			GasPriceGwei:    1,
		},
	})

	signer, err := NewKeySigner(testKeyHex)
	require.NoError(t, err)

	sub := NewSubmitter(registry, signer, time.Millisecond, time.Second,
		audit.NewWriter(io.Discard, logger), logger)
	sub.SetClientFactory(func(string, string) rpc.RPCClient { return client })
	return sub
}

func TestSubmitPaymentConfirmed(t *testing.T) {
	t.Parallel()

	client := &stubRPC{receipt: &rpc.Receipt{Status: "0x1"}}
	sub := testSubmitter(t, client)

	hash, err := sub.SubmitPayment(context.Background(), model.ChainEthereum, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", hash)
	assert.Len(t, client.sent, 1)
}

func TestSubmitPaymentReverted(t *testing.T) {
	t.Parallel()

	client := &stubRPC{receipt: &rpc.Receipt{Status: "0x0"}}
	sub := testSubmitter(t, client)

	_, err := sub.SubmitPayment(context.Background(), model.ChainEthereum, big.NewInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution reverted")
}

func TestSubmitPaymentUnknownChain(t *testing.T) {
	t.Parallel()

	sub := testSubmitter(t, &stubRPC{receipt: &rpc.Receipt{Status: "0x1"}})

	_, err := sub.SubmitPayment(context.Background(), model.ChainArbitrum, big.NewInt(1))
	require.ErrorIs(t, err, config.ErrMissingChainConfig)
}

func TestSubmitTokenTransferRequiresToken(t *testing.T) {
	t.Parallel()

	sub := testSubmitter(t, &stubRPC{receipt: &rpc.Receipt{Status: "0x1"}})

	_, err := sub.SubmitTokenTransfer(context.Background(), model.ChainBase,
		"0x3333333333333333333333333333333333333333", big.NewInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no settlement token")
}

func TestConcurrentSubmitsGetDistinctNonces(t *testing.T) {
	t.Parallel()

	client := &stubRPC{receipt: &rpc.Receipt{Status: "0x1"}}
	sub := testSubmitter(t, client)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sub.SubmitPayment(context.Background(), model.ChainEthereum, big.NewInt(10))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// The stub bumps its nonce per broadcast; distinct raw transactions
	// prove no nonce was reused under concurrency.
	seen := make(map[string]bool)
	for _, raw := range client.sent {
		assert.False(t, seen[raw], "nonce reuse produced a duplicate raw tx")
		seen[raw] = true
	}
	assert.Len(t, client.sent, 5)
}
