package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/quantumpay/gateway/internal/audit"
	"github.com/quantumpay/gateway/internal/chain"
	"github.com/quantumpay/gateway/internal/config"
	"github.com/quantumpay/gateway/internal/domain/model"
	"github.com/quantumpay/gateway/internal/metrics"
	"github.com/quantumpay/gateway/internal/payment/pinet"
)

// defaultOnchainChain is used when an on-chain asset arrives without an
// explicit chain designation.
const defaultOnchainChain = model.ChainEthereum

// Executor dispatches the actual transfer on the order's rail. Exactly one
// of the three branches runs per order.
type Executor struct {
	addresser DepositAddresser
	converter StableConverter
	submitter *chain.Submitter
	registry  *config.ChainRegistry
	pinet     pinet.Client
	logger    *slog.Logger
	audit     *audit.Logger
}

func NewExecutor(addresser DepositAddresser, converter StableConverter, submitter *chain.Submitter, registry *config.ChainRegistry, pinetClient pinet.Client, auditLog *audit.Logger, logger *slog.Logger) *Executor {
	return &Executor{
		addresser: addresser,
		converter: converter,
		submitter: submitter,
		registry:  registry,
		pinet:     pinetClient,
		logger:    logger.With("component", "settlement"),
		audit:     auditLog,
	}
}

// Settle executes the transfer for order on the rail its asset classifies
// to, priced by the selected venue quote.
func (e *Executor) Settle(ctx context.Context, order model.Order, selection model.VenueQuote) (model.SettlementResult, error) {
	rail := order.RailFor()
	settled := order.Amount.DivRound(selection.Price, 18)

	result, err := e.dispatch(ctx, order, selection, rail, settled)
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues(rail.String(), "failed").Inc()
		return model.SettlementResult{}, err
	}
	metrics.SettlementsTotal.WithLabelValues(rail.String(), "ok").Inc()
	return result, nil
}

func (e *Executor) dispatch(ctx context.Context, order model.Order, selection model.VenueQuote, rail model.Rail, settled decimal.Decimal) (model.SettlementResult, error) {
	switch rail {
	case model.RailExchange:
		return e.settleExchange(ctx, order, selection, settled)
	case model.RailOnchain:
		return e.settleOnchain(ctx, order, selection, settled)
	case model.RailThirdparty:
		return e.settleThirdparty(ctx, order, settled)
	default:
		return model.SettlementResult{}, fmt.Errorf("unknown rail %q", rail)
	}
}

// settleExchange requests a deposit address from the chosen venue. Funds
// arrive asynchronously; confirmation comes later via the webhook boundary.
func (e *Executor) settleExchange(ctx context.Context, order model.Order, selection model.VenueQuote, settled decimal.Decimal) (model.SettlementResult, error) {
	addr, err := e.addresser.CreateDepositAddress(ctx, selection.VenueName, order.Asset, order.OrderID)
	if err != nil {
		return model.SettlementResult{}, err
	}

	ref := addr.Address
	if addr.Tag != "" {
		ref = ref + "?tag=" + addr.Tag
	}
	return model.SettlementResult{
		Rail:          model.RailExchange,
		ExternalRef:   ref,
		SettledAmount: settled,
		Venue:         selection.VenueName,
	}, nil
}

// settleOnchain signs and broadcasts a payment-contract call on the target
// chain and waits for the receipt.
func (e *Executor) settleOnchain(ctx context.Context, order model.Order, selection model.VenueQuote, settled decimal.Decimal) (model.SettlementResult, error) {
	chainName := order.Chain
	if chainName == "" {
		chainName = defaultOnchainChain
	}

	entry, err := e.registry.Lookup(chainName)
	if err != nil {
		return model.SettlementResult{}, err
	}

	units := settled.Shift(entry.TokenDecimals).Round(0).BigInt()
	if units.Sign() <= 0 {
		return model.SettlementResult{}, fmt.Errorf("settled amount %s rounds to zero token units", settled)
	}

	txHash, err := e.submitter.SubmitPayment(ctx, chainName, units)
	if err != nil {
		return model.SettlementResult{}, fmt.Errorf("onchain settlement on %s: %w", chainName, err)
	}
	e.audit.Event("Chain", "settled order %s on %s: %s %s, tx %s",
		order.OrderID, chainName, settled, order.Asset, txHash)

	return model.SettlementResult{
		Rail:          model.RailOnchain,
		ExternalRef:   txHash,
		SettledAmount: settled,
		Venue:         selection.VenueName,
	}, nil
}

// settleThirdparty delegates to the payment network's three-step A2U
// protocol.
func (e *Executor) settleThirdparty(ctx context.Context, order model.Order, settled decimal.Decimal) (model.SettlementResult, error) {
	if order.UserRef == "" {
		return model.SettlementResult{}, fmt.Errorf("thirdparty settlement requires userRef")
	}

	result, err := e.pinet.Pay(ctx, pinet.PaymentRequest{
		OrderID: order.OrderID,
		Amount:  settled,
		UserUID: order.UserRef,
	})
	if err != nil {
		return model.SettlementResult{}, fmt.Errorf("payment network settlement: %w", err)
	}

	return model.SettlementResult{
		Rail:          model.RailThirdparty,
		ExternalRef:   result.TxID,
		SettledAmount: settled,
		Venue:         result.Network,
	}, nil
}

// ConvertToStable optionally market-sells the settled asset into the stable
// settlement currency after a successful exchange settlement. Failures are
// logged and swallowed; the primary settlement stands either way.
func (e *Executor) ConvertToStable(ctx context.Context, order model.Order, result model.SettlementResult) {
	if e.converter == nil || result.Rail != model.RailExchange || order.Asset == model.AssetUSDC {
		return
	}
	ref, err := e.converter.ConvertToStable(ctx, result.Venue, order.Asset, result.SettledAmount)
	if err != nil {
		e.logger.Warn("stable conversion failed", "order_id", order.OrderID, "error", err)
		e.audit.Event("Exchange", "fiat conversion failed for order %s: %v", order.OrderID, err)
		return
	}
	e.logger.Info("converted settlement to stable", "order_id", order.OrderID, "venue_order", ref)
}
