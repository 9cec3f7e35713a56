package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quantumpay/gateway/internal/alert"
	"github.com/quantumpay/gateway/internal/audit"
	"github.com/quantumpay/gateway/internal/confidential"
	"github.com/quantumpay/gateway/internal/domain/model"
	"github.com/quantumpay/gateway/internal/events"
	"github.com/quantumpay/gateway/internal/fees"
	"github.com/quantumpay/gateway/internal/fraud"
	"github.com/quantumpay/gateway/internal/idempotency"
	"github.com/quantumpay/gateway/internal/metrics"
	"github.com/quantumpay/gateway/internal/settlement"
	"github.com/quantumpay/gateway/internal/tracing"
	"github.com/quantumpay/gateway/internal/txid"
	"github.com/quantumpay/gateway/internal/venue"
)

// Orchestrator runs the payment pipeline: a fixed sequence of stages over one
// order. Stages run strictly in order, each sees its predecessors' outputs,
// and the first failure short-circuits the run into a FAILURE result. One
// Orchestrator serves concurrent orders; all per-run state lives on the
// stack.
type Orchestrator struct {
	txids     *txid.Generator
	screener  fraud.Screener
	collector *venue.Collector
	optimizer *venue.Optimizer
	codec     confidential.Codec
	executor  *settlement.Executor
	allocator *fees.Allocator
	store     idempotency.Store
	publisher events.Publisher
	alerter   alert.Alerter
	audit     *audit.Logger
	logger    *slog.Logger

	// lastSubmission feeds the fraud screener's rapid-repetition signal,
	// keyed by the order's user reference. The empty key is a shared bucket
	// for anonymous orders.
	mu             sync.Mutex
	lastSubmission map[string]time.Time

	now func() time.Time
}

func NewOrchestrator(
	txids *txid.Generator,
	screener fraud.Screener,
	collector *venue.Collector,
	optimizer *venue.Optimizer,
	codec confidential.Codec,
	executor *settlement.Executor,
	allocator *fees.Allocator,
	store idempotency.Store,
	publisher events.Publisher,
	alerter alert.Alerter,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		txids:          txids,
		screener:       screener,
		collector:      collector,
		optimizer:      optimizer,
		codec:          codec,
		executor:       executor,
		allocator:      allocator,
		store:          store,
		publisher:      publisher,
		alerter:        alerter,
		audit:          auditLog,
		logger:         logger.With("component", "pipeline"),
		lastSubmission: make(map[string]time.Time),
		now:            time.Now,
	}
}

// Process runs the full pipeline for one order. A non-nil error means the
// order never entered the pipeline (validation); every pipeline outcome,
// success or failure, comes back as a Result.
func (o *Orchestrator) Process(ctx context.Context, order model.Order) (Result, error) {
	if err := order.Validate(); err != nil {
		return Result{}, &StageError{Stage: "VALIDATION", Kind: KindValidation, Err: err}
	}

	if replay, ok := o.replay(ctx, order); ok {
		return replay, nil
	}

	o.audit.Event("Gateway", "processing payment for order %s: %s %s",
		order.OrderID, order.Amount, order.Asset)

	record := &model.TransactionRecord{Order: order, Status: model.TxStatusPending}

	var (
		txID       string
		assessment model.FraudAssessment
		selection  venue.Selection
		encoded    model.EncryptedAmount
		settled    model.SettlementResult
		allocation model.FeeAllocation
	)

	stages := []struct {
		stage model.Stage
		run   func(context.Context) (string, error)
	}{
		{model.StageIDAssigned, func(sctx context.Context) (string, error) {
			var err error
			txID, err = o.txids.Generate(sctx, order.OrderID)
			if err != nil {
				return "", err
			}
			record.TransactionID = txID
			return txID, nil
		}},
		{model.StageScreened, func(sctx context.Context) (string, error) {
			var err error
			assessment, err = o.screener.Assess(sctx, fraud.Request{
				OrderID:             order.OrderID,
				Amount:              order.Amount,
				Asset:               order.Asset,
				ReferenceTime:       o.swapLastSubmission(order.UserRef),
				CounterpartyPresent: order.UserRef != "",
			})
			if err != nil {
				return "", err
			}
			if assessment.IsFraudulent {
				return "", fmt.Errorf("fraud score %.2f exceeds threshold %.2f",
					assessment.Score, fraud.RejectThreshold)
			}
			return fmt.Sprintf("score=%.2f", assessment.Score), nil
		}},
		{model.StageVenueSelected, func(sctx context.Context) (string, error) {
			quotes, failures := o.collector.Collect(sctx, order.Asset)
			for name, ferr := range failures {
				o.logger.Warn("venue quote failed", "order_id", order.OrderID, "venue", name, "error", ferr)
			}
			var err error
			selection, err = o.optimizer.Select(order.Amount, quotes)
			if err != nil {
				return "", err
			}
			return selection.Quote.VenueName, nil
		}},
		{model.StageAmountEncoded, func(context.Context) (string, error) {
			var err error
			encoded, err = o.codec.Encode(order.Amount)
			if err != nil {
				return "", err
			}
			o.audit.Event("FHE", "encoded amount for order %s (%d bytes)",
				order.OrderID, len(encoded.Ciphertext))
			return fmt.Sprintf("%d bytes", len(encoded.Ciphertext)), nil
		}},
		{model.StageSettled, func(sctx context.Context) (string, error) {
			var err error
			settled, err = o.executor.Settle(sctx, order, selection.Quote)
			if err != nil {
				return "", err
			}
			o.executor.ConvertToStable(sctx, order, settled)
			return fmt.Sprintf("%s via %s", settled.Rail, settled.ExternalRef), nil
		}},
		{model.StageFeeAllocated, func(sctx context.Context) (string, error) {
			var err error
			allocation, err = o.allocator.Allocate(sctx, order)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("fee=%s net=%s", allocation.FeeAmount, allocation.NetAmount), nil
		}},
	}

	for _, s := range stages {
		if serr := o.runStage(ctx, record, s.stage, s.run); serr != nil {
			return o.fail(ctx, record, txID, serr), nil
		}
	}

	return o.complete(ctx, record, txID, settled, allocation), nil
}

// replay answers a repeated idempotency key from the store without running
// the pipeline. Store errors are logged and treated as a miss.
func (o *Orchestrator) replay(ctx context.Context, order model.Order) (Result, bool) {
	if order.IdempotencyKey == "" || o.store == nil {
		return Result{}, false
	}
	raw, err := o.store.Get(ctx, order.IdempotencyKey)
	if errors.Is(err, idempotency.ErrNotFound) {
		return Result{}, false
	}
	if err != nil {
		o.logger.Warn("idempotency lookup failed, processing anyway",
			"order_id", order.OrderID, "error", err)
		return Result{}, false
	}
	var result Result
	if err := idempotency.Unmarshal(raw, &result); err != nil {
		o.logger.Warn("stored idempotent result unreadable, processing anyway",
			"order_id", order.OrderID, "error", err)
		return Result{}, false
	}
	metrics.IdempotentReplays.Inc()
	o.audit.Event("Gateway", "replayed stored result for order %s (key %s)",
		order.OrderID, order.IdempotencyKey)
	return result, true
}

// runStage wraps one stage with its span, latency metric, audit line, and
// record entry. A returned StageError carries the classified failure.
func (o *Orchestrator) runStage(ctx context.Context, record *model.TransactionRecord, stage model.Stage, run func(context.Context) (string, error)) *StageError {
	sctx, span := tracing.StartStage(ctx, stage.String())
	defer span.End()

	start := o.now()
	detail, err := run(sctx)
	metrics.StageLatency.WithLabelValues(stage.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.StageFailures.WithLabelValues(stage.String()).Inc()
		span.RecordError(err)
		record.Append(stage, false, err.Error())

		var serr *StageError
		if !errors.As(err, &serr) {
			serr = newStageError(stage, err)
		}
		return serr
	}

	record.Append(stage, true, detail)
	return nil
}

// swapLastSubmission returns the previous submission time for the given user
// reference and records now as the new one. A zero return means no prior
// submission, which reads as "not rapid" to the screener.
func (o *Orchestrator) swapLastSubmission(userRef string) time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev := o.lastSubmission[userRef]
	o.lastSubmission[userRef] = o.now()
	return prev
}

func (o *Orchestrator) fail(ctx context.Context, record *model.TransactionRecord, txID string, serr *StageError) Result {
	record.Status = model.TxStatusFailed
	metrics.PaymentsTotal.WithLabelValues("failure").Inc()

	o.logger.Error("payment failed",
		"order_id", record.Order.OrderID,
		"transaction_id", txID,
		"stage", serr.Stage,
		"kind", serr.Kind,
		"error", serr.Err,
	)
	o.audit.Event("Gateway", "payment failed for order %s at %s: %v",
		record.Order.OrderID, serr.Stage, serr.Err)

	o.alertFailure(ctx, record.Order, serr)
	return failureResult(txID, serr)
}

// alertFailure pages on the failures an operator can act on. Fraud rejections
// and validation problems are expected outcomes, not incidents.
func (o *Orchestrator) alertFailure(ctx context.Context, order model.Order, serr *StageError) {
	if o.alerter == nil {
		return
	}

	var alertType alert.AlertType
	switch {
	case errors.Is(serr.Err, venue.ErrNoLiquidity):
		alertType = alert.AlertTypeNoLiquidity
	case serr.Stage == model.StageSettled:
		alertType = alert.AlertTypeSettlementFailed
	case serr.Stage == model.StageFeeAllocated:
		alertType = alert.AlertTypeFeeLegFailed
	default:
		return
	}

	err := o.alerter.Send(ctx, alert.Alert{
		Type:    alertType,
		OrderID: order.OrderID,
		Rail:    order.RailFor().String(),
		Title:   fmt.Sprintf("Payment stage %s failed", serr.Stage),
		Message: serr.Error(),
	})
	if err != nil {
		o.logger.Warn("failed to send alert", "order_id", order.OrderID, "error", err)
	}
}

func (o *Orchestrator) complete(ctx context.Context, record *model.TransactionRecord, txID string, settled model.SettlementResult, allocation model.FeeAllocation) Result {
	record.Status = model.TxStatusSuccess
	metrics.PaymentsTotal.WithLabelValues("success").Inc()

	result := successResult(txID, settled, allocation)

	o.logger.Info("payment completed",
		"order_id", record.Order.OrderID,
		"transaction_id", txID,
		"rail", settled.Rail,
		"venue", settled.Venue,
		"fee", allocation.FeeAmount,
		"net", allocation.NetAmount,
	)
	o.audit.Event("Gateway", "payment completed for order %s: %s on %s, ref %s",
		record.Order.OrderID, txID, settled.Rail, settled.ExternalRef)

	o.publishCompleted(ctx, record.Order, txID, settled, allocation)
	o.storeResult(ctx, record.Order, result)
	return result
}

// publishCompleted emits the completion event best-effort; the payment has
// already settled and a broker outage must not fail it.
func (o *Orchestrator) publishCompleted(ctx context.Context, order model.Order, txID string, settled model.SettlementResult, allocation model.FeeAllocation) {
	if o.publisher == nil {
		return
	}
	err := o.publisher.Publish(ctx, events.TransactionCompleted{
		TransactionID: txID,
		OrderID:       order.OrderID,
		Rail:          settled.Rail,
		ExternalRef:   settled.ExternalRef,
		FeeAmount:     allocation.FeeAmount,
		NetAmount:     allocation.NetAmount,
		CompletedAt:   o.now().UTC(),
	})
	if err != nil {
		o.logger.Warn("failed to publish completion event", "order_id", order.OrderID, "error", err)
	}
}

// storeResult persists a successful outcome under the idempotency key.
// Failures are never stored, so a retried order gets another attempt.
func (o *Orchestrator) storeResult(ctx context.Context, order model.Order, result Result) {
	if order.IdempotencyKey == "" || o.store == nil {
		return
	}
	raw, err := idempotency.Marshal(result)
	if err != nil {
		o.logger.Warn("failed to marshal result for idempotency store",
			"order_id", order.OrderID, "error", err)
		return
	}
	if err := o.store.Put(ctx, order.IdempotencyKey, raw); err != nil {
		o.logger.Warn("failed to store idempotent result",
			"order_id", order.OrderID, "error", err)
	}
}
