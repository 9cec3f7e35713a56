package chain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Signer signs settlement transactions for one account.
type Signer interface {
	Address() string
	Sign(tx *LegacyTx, chainID int64) (rawTx string, err error)
}

// KeySigner holds a secp256k1 private key in memory. Constructed once at
// startup from configuration, shared by the settlement executor and the fee
// allocator.
type KeySigner struct {
	priv    *secp256k1.PrivateKey
	address string
}

func NewKeySigner(hexKey string) (*KeySigner, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode signing key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("signing key: want 32 bytes, got %d", len(raw))
	}

	priv := secp256k1.PrivKeyFromBytes(raw)
	return &KeySigner{
		priv:    priv,
		address: deriveAddress(priv.PubKey()),
	}, nil
}

var _ Signer = (*KeySigner)(nil)

func (s *KeySigner) Address() string {
	return s.address
}

// Sign produces the raw EIP-155 signed transaction.
func (s *KeySigner) Sign(tx *LegacyTx, chainID int64) (string, error) {
	hash, err := tx.SigningHash(chainID)
	if err != nil {
		return "", fmt.Errorf("signing hash: %w", err)
	}

	// SignCompact yields [recovery+27, r..., s...] with low-S normalized.
	compact := secpecdsa.SignCompact(s.priv, hash, false)
	if len(compact) != 65 {
		return "", fmt.Errorf("unexpected signature length %d", len(compact))
	}
	recoveryID := compact[0] - 27
	r := new(secp256k1.ModNScalar)
	if overflow := r.SetByteSlice(compact[1:33]); overflow {
		return "", fmt.Errorf("signature r overflows")
	}
	sc := new(secp256k1.ModNScalar)
	if overflow := sc.SetByteSlice(compact[33:65]); overflow {
		return "", fmt.Errorf("signature s overflows")
	}

	rBytes := r.Bytes()
	sBytes := sc.Bytes()
	return tx.EncodeSigned(chainID,
		bigFromBytes(rBytes[:]),
		bigFromBytes(sBytes[:]),
		recoveryID,
	)
}

// deriveAddress is keccak256(uncompressed pubkey minus the 0x04 prefix),
// last 20 bytes.
func deriveAddress(pub *secp256k1.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()
	digest := keccak256(uncompressed[1:])
	return "0x" + hex.EncodeToString(digest[12:])
}
