package venue

import (
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/quantumpay/gateway/internal/domain/model"
	"github.com/quantumpay/gateway/internal/metrics"
)

// ErrNoLiquidity is returned when no venue produced a usable quote.
var ErrNoLiquidity = errors.New("no liquidity: zero venues quoted")

// Cost-model coefficients. Volatility is charged as expected slippage over
// the settlement window; thin liquidity is charged as depth impact.
const (
	volatilityWeight  = 0.1
	illiquidityWeight = 1000
)

// Selection is the optimizer verdict for one pricing request.
type Selection struct {
	Quote model.VenueQuote
	Score float64
}

// Optimizer ranks candidate venues by predicted settlement cost. The same
// contract serves primary settlement and the fee-settlement leg.
type Optimizer struct {
	logger *slog.Logger
}

func NewOptimizer(logger *slog.Logger) *Optimizer {
	return &Optimizer{logger: logger.With("component", "venue_optimizer")}
}

// Select returns the arg-min venue over predicted cost. Ties resolve to the
// first venue in input order. Deterministic for identical quote sets.
func (o *Optimizer) Select(amount decimal.Decimal, quotes []model.VenueQuote) (Selection, error) {
	if len(quotes) == 0 {
		return Selection{}, ErrNoLiquidity
	}

	best := Selection{Quote: quotes[0], Score: o.predictedCost(amount, quotes[0])}
	for _, q := range quotes[1:] {
		score := o.predictedCost(amount, q)
		if score < best.Score {
			best = Selection{Quote: q, Score: score}
		}
	}

	metrics.VenueSelected.WithLabelValues(best.Quote.VenueName).Inc()
	o.logger.Info("selected venue",
		"venue", best.Quote.VenueName,
		"score", best.Score,
		"candidates", len(quotes),
	)
	return best, nil
}

// predictedCost estimates the all-in cost of settling amount at this venue:
// explicit fee + expected volatility slippage + liquidity depth impact.
func (o *Optimizer) predictedCost(amount decimal.Decimal, q model.VenueQuote) float64 {
	amt, _ := amount.Float64()
	cost := amt * q.FeeRate
	cost += amt * q.Volatility * volatilityWeight
	if q.Liquidity > 0 {
		cost += amt / q.Liquidity * illiquidityWeight
	} else {
		// No reported depth prices like the thinnest book we have seen.
		cost += amt * illiquidityWeight
	}
	return cost
}
