package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) *Redis {
	t.Helper()
	server := miniredis.RunT(t)
	c, err := NewRedis(RedisConfig{Addr: server.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisCacheGetSetDelete(t *testing.T) {
	c := newTestRedisCache(t)

	_, found := c.Get("missing")
	require.False(t, found)

	c.Set("k", map[string]any{"shift": "MORNING"}, time.Minute)
	v, found := c.Get("k")
	require.True(t, found)
	require.Equal(t, "MORNING", v.(map[string]any)["shift"])

	c.Delete("k")
	_, found = c.Get("k")
	require.False(t, found)
}

func TestRedisCacheHealthCheck(t *testing.T) {
	c := newTestRedisCache(t)
	require.NoError(t, c.HealthCheck(context.Background()))
}
