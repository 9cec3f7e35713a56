package pinet

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
	"github.com/quantumpay/gateway/internal/circuitbreaker"
)

// Client is the application-to-user (A2U) payout contract of the third-party
// payment network: create the payment, submit it to the network, then mark
// it complete. Every step must report success or the payout fails.
type Client interface {
	Pay(ctx context.Context, req PaymentRequest) (PaymentResult, error)
}

// PaymentRequest describes one A2U payout.
type PaymentRequest struct {
	OrderID string
	Amount  decimal.Decimal
	UserUID string
	Memo    string
}

// PaymentResult carries the network references produced by a completed
// payout.
type PaymentResult struct {
	PaymentID string
	TxID      string
	Network   string
}

// HTTPClient talks to the network's REST API with a server key.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	networkName string
	httpClient  *http.Client
	breaker     *circuitbreaker.Breaker
	logger      *slog.Logger
	audit       *audit.Logger
}

func NewHTTPClient(baseURL, apiKey, networkName string, auditLog *audit.Logger, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		networkName: networkName,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: 5,
			OpenTimeout:      time.Minute,
		}),
		logger: logger.With("component", "pinet"),
		audit:  auditLog,
	}
}

var _ Client = (*HTTPClient)(nil)

type createPaymentRequest struct {
	Amount   float64           `json:"amount"`
	Memo     string            `json:"memo"`
	Metadata map[string]string `json:"metadata"`
	UID      string            `json:"uid"`
}

type createPaymentResponse struct {
	Identifier string `json:"identifier"`
}

type submitPaymentResponse struct {
	TxID string `json:"txid"`
}

type completePaymentResponse struct {
	Status struct {
		DeveloperCompleted bool `json:"developer_completed"`
	} `json:"status"`
}

// Pay runs the three-step payout protocol. The network transaction ID is the
// settlement's external reference.
func (c *HTTPClient) Pay(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	var result PaymentResult
	err := c.breaker.Do(func() error {
		var err error
		result, err = c.pay(ctx, req)
		return err
	})
	return result, err
}

func (c *HTTPClient) pay(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	amount, _ := req.Amount.Float64()
	memo := req.Memo
	if memo == "" {
		memo = "QuantumPay Payment"
	}

	var created createPaymentResponse
	err := c.post(ctx, "/payments", createPaymentRequest{
		Amount:   amount,
		Memo:     memo,
		Metadata: map[string]string{"orderId": req.OrderID},
		UID:      req.UserUID,
	}, &created)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("create payment: %w", err)
	}
	if created.Identifier == "" {
		return PaymentResult{}, fmt.Errorf("create payment: empty identifier")
	}
	c.audit.Event("PiNetwork", "created payment for order %s: payment ID %s", req.OrderID, created.Identifier)

	var submitted submitPaymentResponse
	err = c.post(ctx, "/payments/"+created.Identifier+"/submit", nil, &submitted)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("submit payment %s: %w", created.Identifier, err)
	}
	if submitted.TxID == "" {
		return PaymentResult{}, fmt.Errorf("submit payment %s: empty txid", created.Identifier)
	}
	c.audit.Event("PiNetwork", "submitted payment for order %s: txid %s", req.OrderID, submitted.TxID)

	var completed completePaymentResponse
	err = c.post(ctx, "/payments/"+created.Identifier+"/complete",
		map[string]string{"txid": submitted.TxID}, &completed)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("complete payment %s: %w", created.Identifier, err)
	}
	if !completed.Status.DeveloperCompleted {
		return PaymentResult{}, fmt.Errorf("complete payment %s: network did not confirm completion", created.Identifier)
	}
	c.audit.Event("PiNetwork", "completed payment for order %s: payment ID %s", req.OrderID, created.Identifier)

	return PaymentResult{
		PaymentID: created.Identifier,
		TxID:      submitted.TxID,
		Network:   c.networkName,
	}, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
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
