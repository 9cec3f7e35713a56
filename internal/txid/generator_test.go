package txid

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumpay/gateway/internal/audit"
)

type fixedSource struct {
	b   []byte
	err error
}

func (s fixedSource) RandomBytes(_ context.Context, n int) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.b[:n], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeriveFormat(t *testing.T) {
	t.Parallel()

	seed := bytes.Repeat([]byte{0xab}, seedBytes)
	id := Derive("order-1", seed)

	assert.True(t, strings.HasPrefix(id, Marker))
	assert.Len(t, id, len(Marker)+hashLen)
	for _, r := range strings.TrimPrefix(id, Marker) {
		assert.Contains(t, "0123456789abcdef", string(r))
	}
}

func TestDeriveDeterministic(t *testing.T) {
	t.Parallel()

	seed := bytes.Repeat([]byte{0x01}, seedBytes)
	assert.Equal(t, Derive("order-1", seed), Derive("order-1", seed))
}

func TestDeriveDistinct(t *testing.T) {
	t.Parallel()

	seedA := bytes.Repeat([]byte{0x01}, seedBytes)
	seedB := bytes.Repeat([]byte{0x02}, seedBytes)

	assert.NotEqual(t, Derive("order-1", seedA), Derive("order-2", seedA),
		"different orders must not collide")
	assert.NotEqual(t, Derive("order-1", seedA), Derive("order-1", seedB),
		"a retried order with fresh randomness gets a fresh ID")
}

func TestGenerateUsesSource(t *testing.T) {
	t.Parallel()

	seed := bytes.Repeat([]byte{0x7f}, seedBytes)
	var auditBuf bytes.Buffer
	gen := NewGenerator(fixedSource{b: seed}, audit.NewWriter(&auditBuf, discardLogger()))

	id, err := gen.Generate(context.Background(), "order-42")
	require.NoError(t, err)
	assert.Equal(t, Derive("order-42", seed), id)
	assert.Contains(t, auditBuf.String(), "Quantum: generated transaction ID for order order-42")
}

func TestGenerateSourceError(t *testing.T) {
	t.Parallel()

	gen := NewGenerator(fixedSource{err: errors.New("entropy exhausted")},
		audit.NewWriter(io.Discard, discardLogger()))

	_, err := gen.Generate(context.Background(), "order-42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "obtain randomness")
}
