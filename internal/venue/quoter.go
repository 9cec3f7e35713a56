package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumpay/gateway/internal/domain/model"
	"github.com/quantumpay/gateway/internal/ratelimit"
)

// Quoter returns one venue's current quote for an asset.
type Quoter interface {
	Name() string
	Quote(ctx context.Context, asset model.Asset) (model.VenueQuote, error)
}

// HTTPQuoter fetches a ticker snapshot from a venue's public quote endpoint.
type HTTPQuoter struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
}

func NewHTTPQuoter(name, baseURL, apiKey string, rps float64, burst int, logger *slog.Logger) *HTTPQuoter {
	return &HTTPQuoter{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: ratelimit.NewLimiter(rps, burst, name),
		logger:  logger.With("venue", name),
	}
}

var _ Quoter = (*HTTPQuoter)(nil)

func (q *HTTPQuoter) Name() string {
	return q.name
}

type tickerResponse struct {
	Last       string  `json:"last"`
	FeeRate    float64 `json:"fee_rate"`
	Liquidity  float64 `json:"liquidity"`
	Volatility float64 `json:"volatility"`
}

func (q *HTTPQuoter) Quote(ctx context.Context, asset model.Asset) (model.VenueQuote, error) {
	if err := q.limiter.Wait(ctx); err != nil {
		return model.VenueQuote{}, err
	}

	endpoint := fmt.Sprintf("%s/ticker?symbol=%s", q.baseURL, url.QueryEscape(string(asset)+"/USD"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.VenueQuote{}, fmt.Errorf("create request: %w", err)
	}
	if q.apiKey != "" {
		req.Header.Set("X-API-Key", q.apiKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return model.VenueQuote{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.VenueQuote{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.VenueQuote{}, fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	var ticker tickerResponse
	if err := json.Unmarshal(body, &ticker); err != nil {
		return model.VenueQuote{}, fmt.Errorf("unmarshal ticker: %w", err)
	}
	price, err := decimal.NewFromString(ticker.Last)
	if err != nil {
		return model.VenueQuote{}, fmt.Errorf("parse last price %q: %w", ticker.Last, err)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return model.VenueQuote{}, fmt.Errorf("non-positive price %s", price)
	}

	quote := model.VenueQuote{
		VenueName:  q.name,
		Price:      price,
		FeeRate:    ticker.FeeRate,
		Liquidity:  ticker.Liquidity,
		Volatility: ticker.Volatility,
	}
	q.logger.Debug("fetched quote", "asset", asset, "price", price)
	return quote, nil
}
