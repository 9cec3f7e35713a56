package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumpay/gateway/internal/audit"
	"github.com/quantumpay/gateway/internal/domain/model"
)

// DepositAddresser creates exchange deposit addresses. Off-chain settlement
// is asynchronous: the address is handed to the buyer and confirmation
// arrives later over the webhook boundary.
type DepositAddresser interface {
	CreateDepositAddress(ctx context.Context, venue string, asset model.Asset, orderID string) (DepositAddress, error)
}

// StableConverter market-sells a settled asset into the stable settlement
// currency on a venue.
type StableConverter interface {
	ConvertToStable(ctx context.Context, venue string, asset model.Asset, amount decimal.Decimal) (string, error)
}

// DepositAddress is a venue-issued address, with an optional routing tag for
// ledger-based assets.
type DepositAddress struct {
	Address string `json:"address"`
	Tag     string `json:"tag"`
}

// ExchangeClient talks to venue private APIs for deposit addresses and
// market conversion orders.
type ExchangeClient struct {
	baseURLs   map[string]string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	logger     *slog.Logger
	audit      *audit.Logger
}

func NewExchangeClient(baseURLs map[string]string, apiKey, apiSecret string, auditLog *audit.Logger, logger *slog.Logger) *ExchangeClient {
	return &ExchangeClient{
		baseURLs:  baseURLs,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.With("component", "exchange"),
		audit:  auditLog,
	}
}

var (
	_ DepositAddresser = (*ExchangeClient)(nil)
	_ StableConverter  = (*ExchangeClient)(nil)
)

// CreateDepositAddress asks the venue for a fresh deposit address. No funds
// move in this call.
func (c *ExchangeClient) CreateDepositAddress(ctx context.Context, venue string, asset model.Asset, orderID string) (DepositAddress, error) {
	var addr DepositAddress
	err := c.post(ctx, venue, "/deposit-address", map[string]string{
		"currency": asset.String(),
	}, &addr)
	if err != nil {
		return DepositAddress{}, fmt.Errorf("create deposit address on %s: %w", venue, err)
	}
	if addr.Address == "" {
		return DepositAddress{}, fmt.Errorf("create deposit address on %s: empty address", venue)
	}
	c.audit.Event("Exchange", "generated payment address for order %s: %s - %s", orderID, asset, addr.Address)
	return addr, nil
}

type marketOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// ConvertToStable places a market sell of amount asset into USDC and returns
// the venue order reference.
func (c *ExchangeClient) ConvertToStable(ctx context.Context, venue string, asset model.Asset, amount decimal.Decimal) (string, error) {
	var order marketOrderResponse
	err := c.post(ctx, venue, "/orders", map[string]string{
		"symbol": asset.String() + "/USDC",
		"side":   "sell",
		"type":   "market",
		"amount": amount.String(),
	}, &order)
	if err != nil {
		return "", fmt.Errorf("market sell on %s: %w", venue, err)
	}
	c.audit.Event("Exchange", "converted %s %s to USDC on %s: order %s", amount, asset, venue, order.OrderID)
	return order.OrderID, nil
}

func (c *ExchangeClient) post(ctx context.Context, venue, path string, payload any, out any) error {
	base, ok := c.baseURLs[venue]
	if !ok {
		return fmt.Errorf("no API endpoint configured for venue %q", venue)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-API-Secret", c.apiSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
