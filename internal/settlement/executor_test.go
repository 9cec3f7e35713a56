package settlement

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumpay/gateway/internal/audit"
	"github.com/quantumpay/gateway/internal/chain"
	"github.com/quantumpay/gateway/internal/chain/rpc"
	"github.com/quantumpay/gateway/internal/config"
	"github.com/quantumpay/gateway/internal/domain/model"
	"github.com/quantumpay/gateway/internal/payment/pinet"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAddresser struct {
	addr DepositAddress
	err  error
}

func (f fakeAddresser) CreateDepositAddress(context.Context, string, model.Asset, string) (DepositAddress, error) {
	return f.addr, f.err
}

type fakeConverter struct {
	calls int
	err   error
}

func (f *fakeConverter) ConvertToStable(context.Context, string, model.Asset, decimal.Decimal) (string, error) {
	f.calls++
	return "conv-1", f.err
}

type fakePinet struct {
	req pinet.PaymentRequest
	err error
}

func (f *fakePinet) Pay(_ context.Context, req pinet.PaymentRequest) (pinet.PaymentResult, error) {
	f.req = req
	if f.err != nil {
		return pinet.PaymentResult{}, f.err
	}
	return pinet.PaymentResult{PaymentID: "pay-1", TxID: "tx-pi", Network: "Pi Testnet"}, nil
}

type okRPC struct{}

func (okRPC) GetTransactionCount(context.Context, string, string) (uint64, error) { return 0, nil }
func (okRPC) GasPrice(context.Context) (string, error)                            { return "0x1", nil }
func (okRPC) SendRawTransaction(context.Context, string) (string, error) {
	return "0xchainhash", nil
}
func (okRPC) GetTransactionReceipt(context.Context, string) (*rpc.Receipt, error) {
	return &rpc.Receipt{Status: "0x1"}, nil
}

func newTestExecutor(t *testing.T, addresser DepositAddresser, converter StableConverter, pinetClient pinet.Client) *Executor {
	t.Helper()
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
	})
	signer, err := chain.NewKeySigner("4646464646464646464646464646464646464646464646464646464646464646")
	require.NoError(t, err)
	submitter := chain.NewSubmitter(registry, signer, time.Millisecond, time.Second,
		audit.NewWriter(io.Discard, discardLogger()), discardLogger())
	submitter.SetClientFactory(func(string, string) rpc.RPCClient { return okRPC{} })

	return NewExecutor(addresser, converter, submitter, registry, pinetClient,
		audit.NewWriter(io.Discard, discardLogger()), discardLogger())
}

func btcQuote() model.VenueQuote {
	return model.VenueQuote{VenueName: "kraken", Price: decimal.NewFromInt(50000)}
}

func TestSettleExchangeRail(t *testing.T) {
	t.Parallel()

	e := newTestExecutor(t, fakeAddresser{addr: DepositAddress{Address: "bc1qdeposit"}}, nil, nil)

	got, err := e.Settle(context.Background(), model.Order{
		OrderID: "o1",
		Amount:  decimal.NewFromInt(100),
		Asset:   model.AssetBTC,
	}, btcQuote())
	require.NoError(t, err)

	assert.Equal(t, model.RailExchange, got.Rail)
	assert.Equal(t, "bc1qdeposit", got.ExternalRef)
	assert.Equal(t, "kraken", got.Venue)
	assert.True(t, decimal.RequireFromString("0.002").Equal(got.SettledAmount), "got %s", got.SettledAmount)
}

func TestSettleExchangeRailWithTag(t *testing.T) {
	t.Parallel()

	e := newTestExecutor(t, fakeAddresser{addr: DepositAddress{Address: "rLedger", Tag: "12345"}}, nil, nil)

	got, err := e.Settle(context.Background(), model.Order{
		OrderID: "o1",
		Amount:  decimal.NewFromInt(100),
		Asset:   model.AssetSOL,
	}, btcQuote())
	require.NoError(t, err)
	assert.Equal(t, "rLedger?tag=12345", got.ExternalRef)
}

func TestSettleOnchainRail(t *testing.T) {
	t.Parallel()

	e := newTestExecutor(t, fakeAddresser{}, nil, nil)

	got, err := e.Settle(context.Background(), model.Order{
		OrderID: "o2",
		Amount:  decimal.NewFromInt(100),
		Asset:   model.AssetUSDC,
	}, model.VenueQuote{VenueName: "binance", Price: decimal.NewFromInt(1)})
	require.NoError(t, err)

	assert.Equal(t, model.RailOnchain, got.Rail)
	assert.Equal(t, "0xchainhash", got.ExternalRef)
}

func TestSettleOnchainMissingChain(t *testing.T) {
	t.Parallel()

	e := newTestExecutor(t, fakeAddresser{}, nil, nil)

	_, err := e.Settle(context.Background(), model.Order{
		OrderID: "o3",
		Amount:  decimal.NewFromInt(100),
		Asset:   model.AssetUSDC,
		Chain:   model.ChainPolygon,
	}, model.VenueQuote{VenueName: "binance", Price: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, config.ErrMissingChainConfig)
}

func TestSettleThirdpartyRail(t *testing.T) {
	t.Parallel()

	pi := &fakePinet{}
	e := newTestExecutor(t, fakeAddresser{}, nil, pi)

	got, err := e.Settle(context.Background(), model.Order{
		OrderID: "o4",
		Amount:  decimal.NewFromInt(100),
		Asset:   model.AssetPI,
		UserRef: "pi-user-9",
	}, model.VenueQuote{VenueName: "binance", Price: decimal.NewFromInt(2)})
	require.NoError(t, err)

	assert.Equal(t, model.RailThirdparty, got.Rail)
	assert.Equal(t, "tx-pi", got.ExternalRef)
	assert.Equal(t, "pi-user-9", pi.req.UserUID)
	assert.True(t, decimal.NewFromInt(50).Equal(pi.req.Amount), "got %s", pi.req.Amount)
}

func TestSettleThirdpartyRequiresUserRef(t *testing.T) {
	t.Parallel()

	e := newTestExecutor(t, fakeAddresser{}, nil, &fakePinet{})

	_, err := e.Settle(context.Background(), model.Order{
		OrderID: "o5",
		Amount:  decimal.NewFromInt(100),
		Asset:   model.AssetPI,
	}, btcQuote())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires userRef")
}

func TestConvertToStableFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	conv := &fakeConverter{err: errors.New("market closed")}
	logger := discardLogger()
	var auditBuf bytes.Buffer
	e := NewExecutor(fakeAddresser{}, conv, nil, nil, nil,
		audit.NewWriter(&auditBuf, logger), logger)

	e.ConvertToStable(context.Background(), model.Order{OrderID: "o6", Asset: model.AssetBTC},
		model.SettlementResult{Rail: model.RailExchange, Venue: "kraken", SettledAmount: decimal.NewFromInt(1)})

	assert.Equal(t, 1, conv.calls)
	assert.Contains(t, auditBuf.String(), "fiat conversion failed for order o6")
}

func TestConvertToStableSkipsNonExchangeAndStable(t *testing.T) {
	t.Parallel()

	conv := &fakeConverter{}
	e := NewExecutor(fakeAddresser{}, conv, nil, nil, nil,
		audit.NewWriter(io.Discard, discardLogger()), discardLogger())

	e.ConvertToStable(context.Background(), model.Order{Asset: model.AssetUSDC},
		model.SettlementResult{Rail: model.RailExchange})
	e.ConvertToStable(context.Background(), model.Order{Asset: model.AssetETH},
		model.SettlementResult{Rail: model.RailOnchain})

	assert.Zero(t, conv.calls)
}
