package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSetDelete(t *testing.T) {
	c := NewMemory(0)
	defer c.Stop()

	_, found := c.Get("missing")
	assert.False(t, found)

	c.Set("k", "v", time.Minute)
	v, found := c.Get("k")
	require.True(t, found)
	assert.Equal(t, "v", v)

	c.Delete("k")
	_, found = c.Get("k")
	assert.False(t, found)
}

func TestMemoryExpiry(t *testing.T) {
	c := NewMemory(0)
	defer c.Stop()

	c.Set("k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, found := c.Get("k")
	assert.False(t, found)
}

func TestMemoryJanitorEvicts(t *testing.T) {
	c := NewMemory(5 * time.Millisecond)
	defer c.Stop()

	c.Set("k", "v", time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	stats := c.Stats()
	assert.Equal(t, 0, stats.CurrentSize)
	assert.GreaterOrEqual(t, stats.Evictions, int64(1))
}

func TestMemoryStatsCounters(t *testing.T) {
	c := NewMemory(0)
	defer c.Stop()

	c.Set("k", "v", time.Minute)
	c.Get("k")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestNoOpCacheNeverStores(t *testing.T) {
	c := NewNoOp()
	c.Set("k", "v", time.Minute)
	_, found := c.Get("k")
	assert.False(t, found)
}
