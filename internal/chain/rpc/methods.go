package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GetTransactionCount returns the account nonce at the given block tag
// ("latest" or "pending").
func (c *Client) GetTransactionCount(ctx context.Context, address, block string) (uint64, error) {
	result, err := c.call(ctx, "eth_getTransactionCount", []interface{}{address, block})
	if err != nil {
		return 0, err
	}
	return parseHexUint(result)
}

// GasPrice returns the node's suggested gas price as a hex quantity.
func (c *Client) GasPrice(ctx context.Context) (string, error) {
	result, err := c.call(ctx, "eth_gasPrice", nil)
	if err != nil {
		return "", err
	}
	var price string
	if err := json.Unmarshal(result, &price); err != nil {
		return "", fmt.Errorf("unmarshal gas price: %w", err)
	}
	return price, nil
}

// SendRawTransaction submits a signed transaction and returns its hash.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx string) (string, error) {
	result, err := c.call(ctx, "eth_sendRawTransaction", []interface{}{rawTx})
	if err != nil {
		return "", err
	}
	var hash string
	if err := json.Unmarshal(result, &hash); err != nil {
		return "", fmt.Errorf("unmarshal tx hash: %w", err)
	}
	return hash, nil
}

// GetTransactionReceipt returns the receipt for txHash, or nil while the
// transaction is still pending.
func (c *Client) GetTransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	result, err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash})
	if err != nil {
		return nil, err
	}
	if string(result) == "null" {
		return nil, nil
	}
	var receipt Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, fmt.Errorf("unmarshal receipt: %w", err)
	}
	return &receipt, nil
}

func parseHexUint(raw json.RawMessage) (uint64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unmarshal hex quantity: %w", err)
	}
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("empty hex quantity")
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex quantity %q: %w", s, err)
	}
	return v, nil
}
