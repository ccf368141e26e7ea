package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestAllowEnforcesPerKeyBurst(t *testing.T) {
	l := New(Config{GlobalRate: rate.Inf, GlobalBurst: 1000, PerKeyRate: rate.Limit(1), PerKeyBurst: 2})

	assert.True(t, l.Allow("caller-a"))
	assert.True(t, l.Allow("caller-a"))
	assert.False(t, l.Allow("caller-a"), "third immediate request should exceed burst of 2")
}

func TestAllowTracksKeysIndependently(t *testing.T) {
	l := New(Config{GlobalRate: rate.Inf, GlobalBurst: 1000, PerKeyRate: rate.Limit(1), PerKeyBurst: 1})

	assert.True(t, l.Allow("caller-a"))
	assert.False(t, l.Allow("caller-a"))
	assert.True(t, l.Allow("caller-b"), "distinct key must have its own bucket")
}

func TestAllowEnforcesGlobalLimitAcrossKeys(t *testing.T) {
	l := New(Config{GlobalRate: rate.Limit(1), GlobalBurst: 1, PerKeyRate: rate.Inf, PerKeyBurst: 1000})

	assert.True(t, l.Allow("caller-a"))
	assert.False(t, l.Allow("caller-b"), "global bucket is shared across keys")
}

func TestWaitReturnsErrorWhenContextExpires(t *testing.T) {
	l := New(Config{GlobalRate: rate.Inf, GlobalBurst: 1000, PerKeyRate: rate.Limit(1), PerKeyBurst: 1})
	require.True(t, l.Allow("caller-a"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "caller-a")
	assert.Error(t, err)
}
