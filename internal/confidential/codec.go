package confidential

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantumpay/gateway/internal/domain/model"
)

// Scale converts decimal amounts to the integer domain of the underlying
// scheme: cents.
const Scale int32 = 100

// Codec keeps an amount opaque while still supporting addition without
// decoding. Invariants: Decode(Encode(x)) == x to the cent, and
// Decode(Combine(Encode(x), Encode(y))) == round(x+y, 2).
type Codec interface {
	Encode(amount decimal.Decimal) (model.EncryptedAmount, error)
	Decode(enc model.EncryptedAmount) (decimal.Decimal, error)
	Combine(a, b model.EncryptedAmount) (model.EncryptedAmount, error)
}

// toCents scales an amount into the scheme's integer domain, rounding to the
// nearest cent.
func toCents(amount decimal.Decimal) (int64, error) {
	cents := amount.Mul(decimal.NewFromInt32(Scale)).Round(0)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("confidential: amount %s does not scale to integer cents", amount)
	}
	return cents.IntPart(), nil
}

// fromCents converts back out of the integer domain.
func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, 0).Div(decimal.NewFromInt32(Scale))
}
