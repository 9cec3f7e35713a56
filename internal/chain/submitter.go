package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/quantumpay/gateway/internal/audit"
	"github.com/quantumpay/gateway/internal/chain/rpc"
	"github.com/quantumpay/gateway/internal/config"
	"github.com/quantumpay/gateway/internal/domain/model"
	"github.com/quantumpay/gateway/internal/metrics"
)

// Submitter builds, signs, broadcasts, and awaits on-chain transfers for any
// registered chain. One instance is shared by the settlement executor and
// the fee allocator; the nonce sequencer inside keeps their concurrent
// submissions collision-free.
type Submitter struct {
	registry *config.ChainRegistry
	signer   Signer
	nonces   *NonceSequencer

	mu        sync.Mutex
	clients   map[model.Chain]rpc.RPCClient
	newClient func(rpcURL, chain string) rpc.RPCClient

	receiptInterval time.Duration
	receiptTimeout  time.Duration

	logger *slog.Logger
	audit  *audit.Logger
}

func NewSubmitter(registry *config.ChainRegistry, signer Signer, receiptInterval, receiptTimeout time.Duration, auditLog *audit.Logger, logger *slog.Logger) *Submitter {
	return &Submitter{
		registry: registry,
		signer:   signer,
		nonces:   NewNonceSequencer(),
		clients:  make(map[model.Chain]rpc.RPCClient),
		newClient: func(rpcURL, chain string) rpc.RPCClient {
			return rpc.NewClient(rpcURL, chain, logger)
		},
		receiptInterval: receiptInterval,
		receiptTimeout:  receiptTimeout,
		logger:          logger.With("component", "chain_submitter"),
		audit:           auditLog,
	}
}

// SetClientFactory swaps the RPC client constructor (tests, fakes).
func (s *Submitter) SetClientFactory(f func(rpcURL, chain string) rpc.RPCClient) {
	s.newClient = f
}

// SubmitPayment calls processPayment(token, amount) on the chain's
// registered payment contract and waits for the receipt.
func (s *Submitter) SubmitPayment(ctx context.Context, chainName model.Chain, amountUnits *big.Int) (string, error) {
	entry, err := s.registry.Lookup(chainName)
	if err != nil {
		return "", err
	}
	data, err := ProcessPaymentData(entry.TokenAddress, amountUnits)
	if err != nil {
		return "", fmt.Errorf("build payment calldata: %w", err)
	}
	return s.submit(ctx, chainName, entry, entry.ContractAddress, data)
}

// SubmitTokenTransfer sends transfer(recipient, amount) on the chain's
// settlement token and waits for the receipt. The fee leg uses this to move
// the protocol fee to the treasury.
func (s *Submitter) SubmitTokenTransfer(ctx context.Context, chainName model.Chain, recipient string, amountUnits *big.Int) (string, error) {
	entry, err := s.registry.Lookup(chainName)
	if err != nil {
		return "", err
	}
	if entry.TokenAddress == "" {
		return "", fmt.Errorf("chain %s has no settlement token configured", chainName)
	}
	data, err := ERC20TransferData(recipient, amountUnits)
	if err != nil {
		return "", fmt.Errorf("build transfer calldata: %w", err)
	}
	return s.submit(ctx, chainName, entry, entry.TokenAddress, data)
}

func (s *Submitter) submit(ctx context.Context, chainName model.Chain, entry config.ChainEntry, to string, data []byte) (string, error) {
	client := s.clientFor(chainName, entry)

	// Nonce read and broadcast happen under the per-account lock so a
	// concurrent order on the same chain cannot reuse the nonce.
	unlock := s.nonces.Lock(chainName, s.signer.Address())
	metrics.NonceWaits.WithLabelValues(chainName.String()).Inc()

	txHash, err := func() (string, error) {
		defer unlock()

		nonce, err := client.GetTransactionCount(ctx, s.signer.Address(), "pending")
		if err != nil {
			return "", fmt.Errorf("fetch nonce: %w", err)
		}

		tx := &LegacyTx{
			Nonce:    nonce,
			GasPrice: new(big.Int).Mul(big.NewInt(entry.GasPriceGwei), big.NewInt(1e9)),
			Gas:      entry.GasLimit,
			To:       to,
			Value:    big.NewInt(0),
			Data:     data,
		}
		rawTx, err := s.signer.Sign(tx, entry.ChainID)
		if err != nil {
			return "", fmt.Errorf("sign transaction: %w", err)
		}

		hash, err := client.SendRawTransaction(ctx, rawTx)
		if err != nil {
			return "", fmt.Errorf("broadcast transaction: %w", err)
		}
		s.logger.Info("broadcast transaction", "chain", chainName, "nonce", nonce, "tx_hash", hash)
		return hash, nil
	}()
	if err != nil {
		return "", err
	}

	if err := s.awaitReceipt(ctx, client, txHash); err != nil {
		return "", err
	}
	s.audit.Event("Chain", "confirmed transaction on %s: %s", chainName, txHash)
	return txHash, nil
}

func (s *Submitter) awaitReceipt(ctx context.Context, client rpc.RPCClient, txHash string) error {
	deadline := time.Now().Add(s.receiptTimeout)
	ticker := time.NewTicker(s.receiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.GetTransactionReceipt(ctx, txHash)
		if err != nil {
			s.logger.Warn("receipt poll failed", "tx_hash", txHash, "error", err)
		} else if receipt != nil {
			if !receipt.Succeeded() {
				return fmt.Errorf("transaction %s: execution reverted", txHash)
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("transaction %s: receipt timeout after %s", txHash, s.receiptTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Submitter) clientFor(chainName model.Chain, entry config.ChainEntry) rpc.RPCClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if client, ok := s.clients[chainName]; ok {
		return client
	}
	client := s.newClient(entry.RPCURL, chainName.String())
	s.clients[chainName] = client
	return client
}
