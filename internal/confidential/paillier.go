package confidential

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/quantumpay/gateway/internal/audit"
	"github.com/quantumpay/gateway/internal/domain/model"
)

// defaultModulusBits sizes the Paillier modulus. Key generation at this size
// is expensive, which is why the context is built lazily and exactly once.
const defaultModulusBits = 1024

var one = big.NewInt(1)

// paillierContext holds the scheme parameters. Immutable after init; safe
// for concurrent readers.
type paillierContext struct {
	n       *big.Int // modulus
	nSquare *big.Int
	g       *big.Int // generator, n+1
	lambda  *big.Int // lcm(p-1, q-1)
	mu      *big.Int // (L(g^lambda mod n^2))^-1 mod n
}

// PaillierCodec implements Codec with the Paillier cryptosystem, which is
// additively homomorphic: E(x)*E(y) mod n^2 decrypts to x+y.
type PaillierCodec struct {
	bits   int
	once   sync.Once
	ctx    *paillierContext
	keyErr error
	logger *slog.Logger
	audit  *audit.Logger
}

func NewPaillierCodec(auditLog *audit.Logger, logger *slog.Logger) *PaillierCodec {
	return &PaillierCodec{
		bits:   defaultModulusBits,
		logger: logger.With("component", "confidential"),
		audit:  auditLog,
	}
}

var _ Codec = (*PaillierCodec)(nil)

// context initializes the cryptographic context at most once per process
// lifetime, no matter how many goroutines race here.
func (c *PaillierCodec) context() (*paillierContext, error) {
	c.once.Do(func() {
		c.ctx, c.keyErr = generateContext(c.bits)
		if c.keyErr != nil {
			c.logger.Error("paillier context init failed", "error", c.keyErr)
			return
		}
		c.audit.Event("Encryption", "initialized homomorphic encryption context (%d-bit modulus)", c.bits)
	})
	return c.ctx, c.keyErr
}

func generateContext(bits int) (*paillierContext, error) {
	p, err := rand.Prime(rand.Reader, bits/2)
	if err != nil {
		return nil, fmt.Errorf("generate prime p: %w", err)
	}
	q, err := rand.Prime(rand.Reader, bits/2)
	if err != nil {
		return nil, fmt.Errorf("generate prime q: %w", err)
	}
	if p.Cmp(q) == 0 {
		return nil, fmt.Errorf("degenerate prime pair")
	}

	n := new(big.Int).Mul(p, q)
	nSquare := new(big.Int).Mul(n, n)
	g := new(big.Int).Add(n, one)

	pMinus := new(big.Int).Sub(p, one)
	qMinus := new(big.Int).Sub(q, one)
	gcd := new(big.Int).GCD(nil, nil, pMinus, qMinus)
	lambda := new(big.Int).Div(new(big.Int).Mul(pMinus, qMinus), gcd)

	// mu = (L(g^lambda mod n^2))^-1 mod n, with L(u) = (u-1)/n.
	u := new(big.Int).Exp(g, lambda, nSquare)
	l := lFunc(u, n)
	mu := new(big.Int).ModInverse(l, n)
	if mu == nil {
		return nil, fmt.Errorf("modulus has no inverse, invalid key pair")
	}

	return &paillierContext{
		n:       n,
		nSquare: nSquare,
		g:       g,
		lambda:  lambda,
		mu:      mu,
	}, nil
}

func lFunc(u, n *big.Int) *big.Int {
	return new(big.Int).Div(new(big.Int).Sub(u, one), n)
}

// Encode scales amount to cents and encrypts it.
func (c *PaillierCodec) Encode(amount decimal.Decimal) (model.EncryptedAmount, error) {
	ctx, err := c.context()
	if err != nil {
		return model.EncryptedAmount{}, fmt.Errorf("confidential: init context: %w", err)
	}

	cents, err := toCents(amount)
	if err != nil {
		return model.EncryptedAmount{}, err
	}
	m := big.NewInt(cents)
	if m.Sign() < 0 || m.Cmp(ctx.n) >= 0 {
		return model.EncryptedAmount{}, fmt.Errorf("confidential: amount out of plaintext domain")
	}

	// c = g^m * r^n mod n^2 for random r in Z*_n.
	r, err := randomCoprime(ctx.n)
	if err != nil {
		return model.EncryptedAmount{}, fmt.Errorf("confidential: sample nonce: %w", err)
	}
	gm := new(big.Int).Exp(ctx.g, m, ctx.nSquare)
	rn := new(big.Int).Exp(r, ctx.n, ctx.nSquare)
	ct := new(big.Int).Mod(new(big.Int).Mul(gm, rn), ctx.nSquare)

	return model.EncryptedAmount{
		Ciphertext: ct.Bytes(),
		Scale:      Scale,
	}, nil
}

// Decode decrypts and rescales back to a decimal amount.
func (c *PaillierCodec) Decode(enc model.EncryptedAmount) (decimal.Decimal, error) {
	ctx, err := c.context()
	if err != nil {
		return decimal.Zero, fmt.Errorf("confidential: init context: %w", err)
	}
	if enc.Scale != Scale {
		return decimal.Zero, fmt.Errorf("confidential: unsupported scale %d", enc.Scale)
	}
	if len(enc.Ciphertext) == 0 {
		return decimal.Zero, fmt.Errorf("confidential: empty ciphertext")
	}

	ct := new(big.Int).SetBytes(enc.Ciphertext)
	if ct.Cmp(ctx.nSquare) >= 0 {
		return decimal.Zero, fmt.Errorf("confidential: ciphertext out of range")
	}

	u := new(big.Int).Exp(ct, ctx.lambda, ctx.nSquare)
	m := new(big.Int).Mod(new(big.Int).Mul(lFunc(u, ctx.n), ctx.mu), ctx.n)
	if !m.IsInt64() {
		return decimal.Zero, fmt.Errorf("confidential: plaintext overflows amount domain")
	}
	return fromCents(m.Int64()), nil
}

// Combine adds two encrypted amounts without decoding either.
func (c *PaillierCodec) Combine(a, b model.EncryptedAmount) (model.EncryptedAmount, error) {
	ctx, err := c.context()
	if err != nil {
		return model.EncryptedAmount{}, fmt.Errorf("confidential: init context: %w", err)
	}
	if a.Scale != b.Scale {
		return model.EncryptedAmount{}, fmt.Errorf("confidential: scale mismatch %d vs %d", a.Scale, b.Scale)
	}
	if len(a.Ciphertext) == 0 || len(b.Ciphertext) == 0 {
		return model.EncryptedAmount{}, fmt.Errorf("confidential: empty ciphertext")
	}

	ca := new(big.Int).SetBytes(a.Ciphertext)
	cb := new(big.Int).SetBytes(b.Ciphertext)
	sum := new(big.Int).Mod(new(big.Int).Mul(ca, cb), ctx.nSquare)

	return model.EncryptedAmount{
		Ciphertext: sum.Bytes(),
		Scale:      a.Scale,
	}, nil
}

func randomCoprime(n *big.Int) (*big.Int, error) {
	for {
		r, err := rand.Int(rand.Reader, n)
		if err != nil {
			return nil, err
		}
		if r.Sign() == 0 {
			continue
		}
		if new(big.Int).GCD(nil, nil, r, n).Cmp(one) == 0 {
			return r, nil
		}
	}
}
