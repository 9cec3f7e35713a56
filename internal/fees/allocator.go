package fees

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
	"github.com/quantumpay/gateway/internal/venue"
)

// treasuryAsset is the stable asset the protocol fee settles in.
const treasuryAsset = model.AssetUSDC

// Allocator computes the protocol fee, routes the fee leg through the venue
// optimizer, and settles it on-chain to the treasury. A fee-leg failure does
// not reverse the primary settlement.
type Allocator struct {
	rate          decimal.Decimal
	treasury      string
	treasuryChain model.Chain
	collector     *venue.Collector
	optimizer     *venue.Optimizer
	submitter     *chain.Submitter
	registry      *config.ChainRegistry
	logger        *slog.Logger
	audit         *audit.Logger
}

func NewAllocator(rate float64, treasury string, treasuryChain model.Chain, collector *venue.Collector, optimizer *venue.Optimizer, submitter *chain.Submitter, registry *config.ChainRegistry, auditLog *audit.Logger, logger *slog.Logger) *Allocator {
	return &Allocator{
		rate:          decimal.NewFromFloat(rate),
		treasury:      treasury,
		treasuryChain: treasuryChain,
		collector:     collector,
		optimizer:     optimizer,
		submitter:     submitter,
		registry:      registry,
		logger:        logger.With("component", "fees"),
		audit:         auditLog,
	}
}

// Split computes the fee/net partition without settling anything.
// FeeAmount + NetAmount always equals the order amount exactly.
func (a *Allocator) Split(amount decimal.Decimal) (fee, net decimal.Decimal) {
	fee = amount.Mul(a.rate).Round(2)
	net = amount.Sub(fee)
	return fee, net
}

// Allocate settles the protocol fee for order to the treasury and returns
// the allocation record.
func (a *Allocator) Allocate(ctx context.Context, order model.Order) (model.FeeAllocation, error) {
	fee, net := a.Split(order.Amount)

	// Rank venues for the fee leg specifically; the fee converts through
	// the treasury asset, not the order's asset.
	quotes, failures := a.collector.Collect(ctx, treasuryAsset)
	for venueName, err := range failures {
		a.logger.Warn("fee-leg quote failed", "venue", venueName, "error", err)
	}
	selection, err := a.optimizer.Select(fee, quotes)
	if err != nil {
		return model.FeeAllocation{}, fmt.Errorf("fee leg venue selection: %w", err)
	}
	a.audit.Event("Balancer", "selected venue for fee allocation: %s", selection.Quote.VenueName)

	entry, err := a.registry.Lookup(a.treasuryChain)
	if err != nil {
		return model.FeeAllocation{}, err
	}
	units := fee.Shift(entry.TokenDecimals).Round(0).BigInt()
	if units.Sign() <= 0 {
		return model.FeeAllocation{}, fmt.Errorf("fee %s rounds to zero treasury units", fee)
	}

	txRef, err := a.submitter.SubmitTokenTransfer(ctx, a.treasuryChain, a.treasury, units)
	if err != nil {
		return model.FeeAllocation{}, fmt.Errorf("treasury transfer: %w", err)
	}

	metrics.FeeAllocated.Inc()
	a.audit.Event("Balancer", "allocated %s %s to treasury for order %s: tx %s",
		fee, treasuryAsset, order.OrderID, txRef)

	return model.FeeAllocation{
		FeeAmount:     fee,
		NetAmount:     net,
		TreasuryTxRef: txRef,
	}, nil
}
