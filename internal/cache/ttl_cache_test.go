package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache(30 * time.Millisecond)

	c.Set("flow:template:t1:p1:jt1", "v1")
	v, ok := c.Get("flow:template:t1:p1:jt1")
	require.True(t, ok)
	require.Equal(t, "v1", v)

	time.Sleep(50 * time.Millisecond)
	_, ok = c.Get("flow:template:t1:p1:jt1")
	require.False(t, ok)
}

func TestTTLCacheInvalidate(t *testing.T) {
	c := NewTTLCache(time.Minute)

	c.Set("directory:user:t1:u1", 1)
	c.Invalidate("directory:user:t1:u1")
	_, ok := c.Get("directory:user:t1:u1")
	require.False(t, ok)
}

func TestTTLCacheInvalidatePrefix(t *testing.T) {
	c := NewTTLCache(time.Minute)

	c.Set("flow:template:t1:p1:jt1", 1)
	c.Set("flow:template:t1:p2:jt1", 2)
	c.Set("flow:template:t2:p1:jt1", 3)

	c.InvalidatePrefix("flow:template:t1:")

	_, ok := c.Get("flow:template:t1:p1:jt1")
	require.False(t, ok)
	_, ok = c.Get("flow:template:t1:p2:jt1")
	require.False(t, ok)
	v, ok := c.Get("flow:template:t2:p1:jt1")
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestNoopNeverStores(t *testing.T) {
	c := Noop{}
	c.Set("k", "v")
	_, ok := c.Get("k")
	require.False(t, ok)
}
