package venue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantumpay/gateway/internal/domain/model"
	"github.com/quantumpay/gateway/internal/metrics"
	"github.com/quantumpay/gateway/internal/pipeline/retry"
)

// Collector gathers quotes from all candidate venues concurrently: one
// request per venue, per-request timeout, error isolation. A failed venue is
// excluded from the result, never fatal to the batch. Transient failures get
// exactly one more attempt.
type Collector struct {
	quoters []Quoter
	timeout time.Duration
	logger  *slog.Logger
}

func NewCollector(quoters []Quoter, timeout time.Duration, logger *slog.Logger) *Collector {
	return &Collector{
		quoters: quoters,
		timeout: timeout,
		logger:  logger.With("component", "venue_collector"),
	}
}

// Collect joins all venue outcomes and returns successful quotes in the
// input order of their venues, plus the per-venue errors for the log.
func (c *Collector) Collect(ctx context.Context, asset model.Asset) ([]model.VenueQuote, map[string]error) {
	results := make([]*model.VenueQuote, len(c.quoters))
	failures := make(map[string]error)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, quoter := range c.quoters {
		g.Go(func() error {
			quote, err := c.fetchOne(gctx, quoter, asset)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[quoter.Name()] = err
				return nil // venue isolation: never abort the group
			}
			results[i] = &quote
			return nil
		})
	}
	_ = g.Wait()

	quotes := make([]model.VenueQuote, 0, len(c.quoters))
	for _, r := range results {
		if r != nil {
			quotes = append(quotes, *r)
		}
	}
	return quotes, failures
}

func (c *Collector) fetchOne(ctx context.Context, quoter Quoter, asset model.Asset) (model.VenueQuote, error) {
	quote, err := c.attempt(ctx, quoter, asset)
	if err == nil {
		metrics.QuoteRequests.WithLabelValues(quoter.Name(), "ok").Inc()
		return quote, nil
	}

	if retry.Classify(err).IsTransient() {
		c.logger.Warn("quote attempt failed, retrying once", "venue", quoter.Name(), "error", err)
		quote, err = c.attempt(ctx, quoter, asset)
		if err == nil {
			metrics.QuoteRequests.WithLabelValues(quoter.Name(), "ok_retry").Inc()
			return quote, nil
		}
	}

	metrics.QuoteRequests.WithLabelValues(quoter.Name(), "failed").Inc()
	c.logger.Warn("venue excluded from quote batch", "venue", quoter.Name(), "error", err)
	return model.VenueQuote{}, err
}

func (c *Collector) attempt(ctx context.Context, quoter Quoter, asset model.Asset) (model.VenueQuote, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	quote, err := quoter.Quote(reqCtx, asset)
	metrics.QuoteLatency.WithLabelValues(quoter.Name()).Observe(time.Since(start).Seconds())
	return quote, err
}
