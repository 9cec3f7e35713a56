package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/quantumpay/gateway/internal/metrics"
	"github.com/quantumpay/gateway/internal/ratelimit"
)

// RPCClient abstracts the EVM JSON-RPC interface for testing.
type RPCClient interface {
	GetTransactionCount(ctx context.Context, address, block string) (uint64, error)
	GasPrice(ctx context.Context) (string, error)
	SendRawTransaction(ctx context.Context, rawTx string) (string, error)
	GetTransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
}

type Client struct {
	httpClient *http.Client
	rpcURL     string
	chain      string
	requestID  atomic.Int64
	logger     *slog.Logger
}

func NewClient(rpcURL, chain string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rpcURL: rpcURL,
		chain:  chain,
		logger: logger.With("chain", chain),
	}
}

var _ RPCClient = (*Client)(nil)

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	id := int(c.requestID.Add(1))
	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.record(method, err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(method, err)
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
		c.record(method, err)
		return nil, err
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		c.record(method, err)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		c.record(method, rpcResp.Error)
		return nil, rpcResp.Error
	}

	c.record(method, nil)
	return rpcResp.Result, nil
}

func (c *Client) record(method string, err error) {
	metrics.RPCCallsTotal.WithLabelValues(c.chain, method, ratelimit.ClassifyCallError(err)).Inc()
}
