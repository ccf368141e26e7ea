package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrofleet/induction/internal/clock"
)

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	fake := clock.NewFake(time.Now())
	cb := New("sqlite", 3, 3, time.Minute, 10*time.Second, WithClock(fake))

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, cb.GetState())
	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	fake := clock.NewFake(time.Now())
	cb := New("badger", 2, 2, time.Minute, 5*time.Second, WithClock(fake), WithHalfOpenSuccessThreshold(2))

	boom := errors.New("boom")
	_ = cb.Execute(func() error { return boom })
	_ = cb.Execute(func() error { return boom })
	require.Equal(t, StateOpen, cb.GetState())

	fake.Advance(6 * time.Second)
	require.True(t, cb.AllowRequest())
	require.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(func() error { return nil }))
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	fake := clock.NewFake(time.Now())
	cb := New("redis", 1, 1, time.Minute, time.Second, WithClock(fake))

	boom := errors.New("boom")
	_ = cb.Execute(func() error { return boom })
	require.Equal(t, StateOpen, cb.GetState())

	fake.Advance(2 * time.Second)
	require.True(t, cb.AllowRequest())
	require.Equal(t, StateHalfOpen, cb.GetState())

	_ = cb.Execute(func() error { return boom })
	assert.Equal(t, StateOpen, cb.GetState())
}
