package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// LegacyTx is a pre-EIP-1559 transaction. The gateway signs these because
// every registered chain accepts them.
type LegacyTx struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       string // 0x-prefixed address
	Value    *big.Int
	Data     []byte
}

// SigningHash is the Keccak-256 of the EIP-155 signing payload:
// rlp([nonce, gasPrice, gas, to, value, data, chainId, 0, 0]).
func (tx *LegacyTx) SigningHash(chainID int64) ([]byte, error) {
	to, err := addressBytes(tx.To)
	if err != nil {
		return nil, err
	}
	payload := rlpEncodeList(
		rlpEncodeUint(tx.Nonce),
		rlpEncodeBigInt(tx.GasPrice),
		rlpEncodeUint(tx.Gas),
		rlpEncodeBytes(to),
		rlpEncodeBigInt(tx.Value),
		rlpEncodeBytes(tx.Data),
		rlpEncodeBigInt(big.NewInt(chainID)),
		rlpEncodeBigInt(nil),
		rlpEncodeBigInt(nil),
	)
	return keccak256(payload), nil
}

// EncodeSigned serializes the transaction with its EIP-155 signature into
// the raw form accepted by eth_sendRawTransaction.
func (tx *LegacyTx) EncodeSigned(chainID int64, r, s *big.Int, recoveryID byte) (string, error) {
	to, err := addressBytes(tx.To)
	if err != nil {
		return "", err
	}
	v := big.NewInt(chainID*2 + 35 + int64(recoveryID))
	raw := rlpEncodeList(
		rlpEncodeUint(tx.Nonce),
		rlpEncodeBigInt(tx.GasPrice),
		rlpEncodeUint(tx.Gas),
		rlpEncodeBytes(to),
		rlpEncodeBigInt(tx.Value),
		rlpEncodeBytes(tx.Data),
		rlpEncodeBigInt(v),
		rlpEncodeBigInt(r),
		rlpEncodeBigInt(s),
	)
	return "0x" + hex.EncodeToString(raw), nil
}

// ERC20TransferData builds calldata for transfer(address,uint256).
func ERC20TransferData(recipient string, amount *big.Int) ([]byte, error) {
	return contractCallData("transfer(address,uint256)", recipient, amount)
}

// ProcessPaymentData builds calldata for the payment contract's
// processPayment(address,uint256) entry point.
func ProcessPaymentData(token string, amount *big.Int) ([]byte, error) {
	return contractCallData("processPayment(address,uint256)", token, amount)
}

func contractCallData(signature, addr string, amount *big.Int) ([]byte, error) {
	addrBytes, err := addressBytes(addr)
	if err != nil {
		return nil, err
	}
	selector := keccak256([]byte(signature))[:4]

	data := make([]byte, 0, 4+64)
	data = append(data, selector...)
	data = append(data, leftPad32(addrBytes)...)
	data = append(data, leftPad32(amount.Bytes())...)
	return data, nil
}

func addressBytes(addr string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(addr), "0x")
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", addr, err)
	}
	if len(b) != 20 {
		return nil, fmt.Errorf("address %q: want 20 bytes, got %d", addr, len(b))
	}
	return b, nil
}

func leftPad32(b []byte) []byte {
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

func bigFromBytes(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
