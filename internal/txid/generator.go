package txid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/quantumpay/gateway/internal/audit"
	"github.com/quantumpay/gateway/internal/rng"
)

const (
	// Marker prefixes every transaction ID.
	Marker = "QP-"
	// hashLen is the number of hex characters kept from the digest.
	hashLen = 16
	// seedBytes is how much randomness is mixed into each ID.
	seedBytes = 32
)

// Generator derives a per-order transaction identifier from the order ID and
// fresh randomness. A retried order yields a different ID; idempotent replay
// is handled separately by the idempotency store.
type Generator struct {
	source rng.Source
	audit  *audit.Logger
}

func NewGenerator(source rng.Source, auditLog *audit.Logger) *Generator {
	return &Generator{source: source, audit: auditLog}
}

// Generate returns Marker + first 16 hex chars of
// sha256(orderID + "-" + hex(random32)).
func (g *Generator) Generate(ctx context.Context, orderID string) (string, error) {
	seed, err := g.source.RandomBytes(ctx, seedBytes)
	if err != nil {
		return "", fmt.Errorf("txid: obtain randomness: %w", err)
	}
	id := Derive(orderID, seed)
	g.audit.Event("Quantum", "generated transaction ID for order %s: %s", orderID, id)
	return id, nil
}

// Derive is the deterministic part of Generate: same (orderID, seed) pair,
// same ID.
func Derive(orderID string, seed []byte) string {
	sum := sha256.Sum256([]byte(orderID + "-" + hex.EncodeToString(seed)))
	return Marker + hex.EncodeToString(sum[:])[:hashLen]
}
