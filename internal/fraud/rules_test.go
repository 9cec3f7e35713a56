package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumpay/gateway/internal/domain/model"
)

func TestRuleScreenerScoring(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		req        Request
		wantScore  float64
		wantReject bool
	}{
		{
			name: "clean small order",
			req: Request{
				OrderID: "o1",
				Amount:  decimal.NewFromInt(100),
				Asset:   model.AssetBTC,
			},
			wantScore: 0,
		},
		{
			name: "high amount only",
			req: Request{
				OrderID: "o2",
				Amount:  decimal.NewFromInt(15000),
				Asset:   model.AssetBTC,
			},
			wantScore: 0.4,
		},
		{
			name: "amount exactly at threshold does not fire",
			req: Request{
				OrderID: "o3",
				Amount:  decimal.NewFromInt(10000),
				Asset:   model.AssetBTC,
			},
			wantScore: 0,
		},
		{
			name: "rapid resubmission only",
			req: Request{
				OrderID:       "o4",
				Amount:        decimal.NewFromInt(100),
				Asset:         model.AssetBTC,
				ReferenceTime: now.Add(-500 * time.Millisecond),
			},
			wantScore: 0.3,
		},
		{
			name: "privacy asset only",
			req: Request{
				OrderID: "o5",
				Amount:  decimal.NewFromInt(100),
				Asset:   model.AssetXMR,
			},
			wantScore: 0.2,
		},
		{
			name: "high amount plus privacy asset rejects",
			req: Request{
				OrderID: "o6",
				Amount:  decimal.NewFromInt(20000),
				Asset:   model.AssetZEC,
			},
			wantScore:  0.6,
			wantReject: true,
		},
		{
			name: "all three signals",
			req: Request{
				OrderID:       "o7",
				Amount:        decimal.NewFromInt(50000),
				Asset:         model.AssetXMR,
				ReferenceTime: now.Add(-100 * time.Millisecond),
			},
			wantScore:  0.9,
			wantReject: true,
		},
		{
			name: "old reference time is not rapid",
			req: Request{
				OrderID:       "o8",
				Amount:        decimal.NewFromInt(100),
				Asset:         model.AssetBTC,
				ReferenceTime: now.Add(-time.Hour),
			},
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRuleScreener(fixedSource{})
			s.now = func() time.Time { return now }

			got, err := s.Assess(context.Background(), tt.req)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantScore, got.Score, 1e-9)
			assert.Equal(t, tt.wantReject, got.IsFraudulent)
		})
	}
}

func TestRuleScreenerFactors(t *testing.T) {
	t.Parallel()

	s := NewRuleScreener(fixedSource{})
	got, err := s.Assess(context.Background(), Request{
		OrderID: "o1",
		Amount:  decimal.NewFromInt(20000),
		Asset:   model.AssetXMR,
	})
	require.NoError(t, err)

	assert.Contains(t, got.Factors, "high_amount")
	assert.Contains(t, got.Factors, "privacy_asset")
	assert.Contains(t, got.Factors, "no_counterparty")
	assert.NotContains(t, got.Factors, "rapid_submission")
}
