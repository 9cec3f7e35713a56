package fraud

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/quantumpay/gateway/internal/domain/model"
	"github.com/quantumpay/gateway/internal/rng"
)

// FeatureWidth is the fixed width of the learned scorer's input vector:
// [amount/10000, hours since reference, privacy-asset flag,
//  counterparty flag, transaction count, decorrelation seed].
const FeatureWidth = 6

// Model is the pluggable learned-scorer contract. Implementations must be
// safe for concurrent use and must return a score in [0,1].
type Model interface {
	Score(features []float64) (float64, error)
}

// LogisticModel is the default production model: a single logistic layer
// with fixed weights. It stands in for a trained model behind the same
// contract.
type LogisticModel struct {
	weights [FeatureWidth]float64
	bias    float64
}

func NewLogisticModel() *LogisticModel {
	return &LogisticModel{
		// Amount and privacy-asset dominate; a present counterparty and
		// older reference time pull the score down.
		weights: [FeatureWidth]float64{2.2, -0.6, 1.8, -0.8, 0.1, 0.05},
		bias:    -2.5,
	}
}

var _ Model = (*LogisticModel)(nil)

func (m *LogisticModel) Score(features []float64) (float64, error) {
	if len(features) != FeatureWidth {
		return 0, fmt.Errorf("model: want %d features, got %d", FeatureWidth, len(features))
	}
	z := m.bias
	for i, f := range features {
		z += m.weights[i] * f
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// ModelScreener feeds a fixed-width feature vector to a learned Model.
// It shares the Screener contract with RuleScreener.
type ModelScreener struct {
	model  Model
	source rng.Source
	now    func() time.Time
}

func NewModelScreener(m Model, source rng.Source) *ModelScreener {
	return &ModelScreener{
		model:  m,
		source: source,
		now:    time.Now,
	}
}

var _ Screener = (*ModelScreener)(nil)

func (s *ModelScreener) Assess(ctx context.Context, req Request) (model.FraudAssessment, error) {
	seed, err := seedValue(ctx, s.source)
	if err != nil {
		return model.FraudAssessment{}, fmt.Errorf("fraud: obtain seed: %w", err)
	}

	amount, _ := req.Amount.Float64()
	elapsedHours := 0.0
	if !req.ReferenceTime.IsZero() {
		elapsedHours = s.now().Sub(req.ReferenceTime).Hours()
	}
	privacyFlag := 0.0
	if model.PrivacyAssets[req.Asset] {
		privacyFlag = 1
	}
	counterpartyFlag := 0.0
	if req.CounterpartyPresent {
		counterpartyFlag = 1
	}

	features := []float64{
		amount / 10000,
		elapsedHours,
		privacyFlag,
		counterpartyFlag,
		1, // transaction count placeholder until buyer history lands
		seed,
	}

	score, err := s.model.Score(features)
	if err != nil {
		return model.FraudAssessment{}, fmt.Errorf("fraud: model score: %w", err)
	}

	return model.FraudAssessment{
		Score:        score,
		IsFraudulent: score > RejectThreshold,
		Factors: map[string]float64{
			"amount_norm":   features[0],
			"elapsed_hours": features[1],
			"privacy_asset": features[2],
			"counterparty":  features[3],
			"seed":          seed,
		},
	}, nil
}
