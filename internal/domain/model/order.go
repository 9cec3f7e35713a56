package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Asset is the currency code the buyer settles in.
type Asset string

const (
	AssetBTC  Asset = "BTC"
	AssetETH  Asset = "ETH"
	AssetUSDC Asset = "USDC"
	AssetUSDT Asset = "USDT"
	AssetSOL  Asset = "SOL"
	AssetXMR  Asset = "XMR"
	AssetZEC  Asset = "ZEC"
	AssetPI   Asset = "PI"
)

func (a Asset) String() string {
	return string(a)
}

// PrivacyAssets are assets that carry elevated fraud weight.
var PrivacyAssets = map[Asset]bool{
	AssetXMR: true,
	AssetZEC: true,
}

// onchainAssets settle as token transfers by default rather than via an
// exchange deposit address.
var onchainAssets = map[Asset]bool{
	AssetETH:  true,
	AssetUSDC: true,
}

type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainPolygon  Chain = "polygon"
	ChainArbitrum Chain = "arbitrum"
	ChainBase     Chain = "base"
	ChainBSC      Chain = "bsc"
)

func (c Chain) String() string {
	return string(c)
}

// Rail is the settlement path an order takes.
type Rail string

const (
	RailExchange   Rail = "EXCHANGE"
	RailOnchain    Rail = "ONCHAIN"
	RailThirdparty Rail = "THIRDPARTY_NETWORK"
)

func (r Rail) String() string {
	return string(r)
}

// Order is the caller's request: a fiat-denominated amount to be settled in
// the given asset. Immutable once handed to the pipeline.
type Order struct {
	OrderID        string
	Amount         decimal.Decimal
	Asset          Asset
	Chain          Chain  // optional; forces the ONCHAIN rail when set
	UserRef        string // optional counterparty reference (wallet or network uid)
	IdempotencyKey string // optional; same key replays the stored result
}

// Validate rejects malformed orders before any external call is made.
func (o Order) Validate() error {
	if strings.TrimSpace(o.OrderID) == "" {
		return fmt.Errorf("orderId is required")
	}
	if o.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("amount must be positive, got %s", o.Amount)
	}
	if o.Asset == "" {
		return fmt.Errorf("asset is required")
	}
	return nil
}

// RailFor classifies an order onto a settlement rail. Selection is by asset
// code, except that an explicitly designated chain forces ONCHAIN.
func (o Order) RailFor() Rail {
	if o.Chain != "" {
		return RailOnchain
	}
	if o.Asset == AssetPI {
		return RailThirdparty
	}
	if onchainAssets[o.Asset] {
		return RailOnchain
	}
	return RailExchange
}
