package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpensAfterThreshold(t *testing.T) {
	t.Parallel()

	b := New(Config{FailureThreshold: 3, OpenTimeout: time.Hour})
	boom := errors.New("provider down")

	for i := 0; i < 3; i++ {
		err := b.Do(func() error { return boom })
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, StateOpen, b.GetState())

	called := false
	err := b.Do(func() error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open breaker must not invoke the call")
}

func TestSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := New(Config{FailureThreshold: 3, OpenTimeout: time.Hour})
	boom := errors.New("flaky")

	_ = b.Do(func() error { return boom })
	_ = b.Do(func() error { return boom })
	require.NoError(t, b.Do(func() error { return nil }))
	_ = b.Do(func() error { return boom })
	_ = b.Do(func() error { return boom })

	assert.Equal(t, StateClosed, b.GetState())
}

func TestHalfOpenRecovery(t *testing.T) {
	t.Parallel()

	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 10 * time.Millisecond})

	_ = b.Do(func() error { return errors.New("down") })
	require.Equal(t, StateOpen, b.GetState())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.GetState())

	require.NoError(t, b.Do(func() error { return nil }))
	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, b.GetState())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	b := New(Config{FailureThreshold: 1, OpenTimeout: 10 * time.Millisecond})

	_ = b.Do(func() error { return errors.New("down") })
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.GetState())

	_ = b.Do(func() error { return errors.New("still down") })
	assert.Equal(t, StateOpen, b.GetState())
}
