package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassTerminal},
		{"explicit transient", Transient(errors.New("anything")), ClassTransient},
		{"explicit terminal", Terminal(errors.New("timeout")), ClassTerminal},
		{"wrapped explicit", fmt.Errorf("quote: %w", Transient(errors.New("x"))), ClassTransient},
		{"context canceled", context.Canceled, ClassTerminal},
		{"deadline exceeded", context.DeadlineExceeded, ClassTransient},
		{"http 503", errors.New("http status 503: upstream"), ClassTransient},
		{"rate limited", errors.New("429 Too Many Requests"), ClassTransient},
		{"connection refused", errors.New("dial tcp: connection refused"), ClassTransient},
		{"unknown symbol", errors.New("unknown symbol XYZ/USD"), ClassTerminal},
		{"unsupported asset", errors.New("unsupported asset"), ClassTerminal},
		{"execution reverted", errors.New("execution reverted"), ClassTerminal},
		{"insufficient funds", errors.New("insufficient funds for gas"), ClassTerminal},
		{"unknown default", errors.New("something odd"), ClassTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err).Class)
		})
	}
}

func TestMarkersPreserveError(t *testing.T) {
	t.Parallel()

	base := errors.New("base failure")
	assert.ErrorIs(t, Transient(base), base)
	assert.ErrorIs(t, Terminal(base), base)
	assert.Nil(t, Transient(nil))
	assert.Nil(t, Terminal(nil))
}
