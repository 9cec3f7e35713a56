package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumpay/gateway/internal/domain/model"
	"github.com/quantumpay/gateway/internal/rng"
)

// Rule weights. The sum of all firing indicators is the fraud score.
const (
	weightHighAmount   = 0.4
	weightRapid        = 0.3
	weightPrivacyAsset = 0.2
	rapidWindow        = time.Second
)

// highAmountThreshold is the fiat amount above which the high-amount
// indicator fires.
var highAmountThreshold = decimal.NewFromInt(10000)

// RuleScreener is the deterministic rule-sum screener: weighted indicators
// for amount over threshold, sub-second repetition, and privacy-asset
// membership.
type RuleScreener struct {
	source rng.Source
	now    func() time.Time
}

func NewRuleScreener(source rng.Source) *RuleScreener {
	return &RuleScreener{
		source: source,
		now:    time.Now,
	}
}

var _ Screener = (*RuleScreener)(nil)

func (s *RuleScreener) Assess(ctx context.Context, req Request) (model.FraudAssessment, error) {
	seed, err := seedValue(ctx, s.source)
	if err != nil {
		return model.FraudAssessment{}, fmt.Errorf("fraud: obtain seed: %w", err)
	}

	isHighAmount := req.Amount.GreaterThan(highAmountThreshold)
	isRapid := !req.ReferenceTime.IsZero() && s.now().Sub(req.ReferenceTime) < rapidWindow
	isPrivacyAsset := model.PrivacyAssets[req.Asset]

	score := 0.0
	factors := map[string]float64{
		"seed": seed,
	}
	if isHighAmount {
		score += weightHighAmount
		factors["high_amount"] = weightHighAmount
	}
	if isRapid {
		score += weightRapid
		factors["rapid_submission"] = weightRapid
	}
	if isPrivacyAsset {
		score += weightPrivacyAsset
		factors["privacy_asset"] = weightPrivacyAsset
	}
	if !req.CounterpartyPresent {
		// Reported for visibility; carries no weight in the rule sum.
		factors["no_counterparty"] = 0
	}

	return model.FraudAssessment{
		Score:        score,
		IsFraudulent: score > RejectThreshold,
		Factors:      factors,
	}, nil
}
