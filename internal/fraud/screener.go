package fraud

import (
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumpay/gateway/internal/audit"
	"github.com/quantumpay/gateway/internal/domain/model"
	"github.com/quantumpay/gateway/internal/metrics"
	"github.com/quantumpay/gateway/internal/rng"
)

// RejectThreshold is the hard-reject boundary: score > 0.5 blocks settlement.
const RejectThreshold = 0.5

// Request carries the screening inputs for one transaction.
type Request struct {
	OrderID string
	Amount  decimal.Decimal
	Asset   model.Asset
	// ReferenceTime is the timestamp the elapsed-time signal is measured
	// against (typically the previous submission for the same buyer).
	ReferenceTime time.Time
	// CounterpartyPresent is whether the order names a destination wallet
	// or network uid.
	CounterpartyPresent bool
}

// Screener scores a transaction request. Implementations share one contract:
// score in [0,1], IsFraudulent = score > RejectThreshold.
type Screener interface {
	Assess(ctx context.Context, req Request) (model.FraudAssessment, error)
}

// seedValue draws a decorrelation seed in [0,1) from the randomness source.
// It is not a security control; it only keeps repeated evaluations of the
// same input from being byte-identical.
func seedValue(ctx context.Context, source rng.Source) (float64, error) {
	raw, err := source.RandomBytes(ctx, 8)
	if err != nil {
		return 0, err
	}
	return float64(binary.BigEndian.Uint64(raw)%1000) / 1000, nil
}

// FailOpen wraps a screener with the documented fail-open policy: an internal
// scoring error yields a passing assessment that records the error, rather
// than blocking the order. Revisit before taking real fraud traffic.
type FailOpen struct {
	inner  Screener
	logger *slog.Logger
	audit  *audit.Logger
}

func NewFailOpen(inner Screener, auditLog *audit.Logger, logger *slog.Logger) *FailOpen {
	return &FailOpen{
		inner:  inner,
		logger: logger.With("component", "fraud"),
		audit:  auditLog,
	}
}

var _ Screener = (*FailOpen)(nil)

func (f *FailOpen) Assess(ctx context.Context, req Request) (model.FraudAssessment, error) {
	assessment, err := f.inner.Assess(ctx, req)
	if err != nil {
		f.logger.Warn("fraud scoring failed, defaulting to pass", "order_id", req.OrderID, "error", err)
		f.audit.Event("AI", "fraud detection failed for order %s: %v", req.OrderID, err)
		return model.FraudAssessment{
			Score:        0,
			IsFraudulent: false,
			Err:          err.Error(),
		}, nil
	}

	metrics.FraudScore.Observe(assessment.Score)
	if assessment.IsFraudulent {
		metrics.FraudRejections.Inc()
	}
	f.audit.Event("AI", "fraud detection for order %s: score=%.2f fraud=%t",
		req.OrderID, assessment.Score, assessment.IsFraudulent)
	return assessment, nil
}
