package memcache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-auth/auth/sessions/memcache"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupCache(t *testing.T, options ...memcache.Option) (*memcache.Cache, *clock) {
	t.Helper()

	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	options = append(options, memcache.WithNowTime(clk.Now))
	return memcache.New(options...), clk
}

func TestCache_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	c, clk := setupCache(t)

	require.NoError(t, c.Set(ctx, "session:a", "payload", time.Hour))

	v, found, err := c.Get(ctx, "session:a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "payload", v)

	ttl, ok := c.TTL("session:a")
	require.True(t, ok)
	require.Equal(t, time.Hour, ttl)

	clk.Advance(time.Hour)
	_, found, err = c.Get(ctx, "session:a")
	require.NoError(t, err)
	require.False(t, found)
	_, ok = c.TTL("session:a")
	require.False(t, ok)
}

func TestCache_Overwrite(t *testing.T) {
	ctx := context.Background()
	c, clk := setupCache(t)

	require.NoError(t, c.Set(ctx, "k", "v1", time.Minute))
	clk.Advance(30 * time.Second)
	require.NoError(t, c.Set(ctx, "k", "v2", time.Minute))

	v, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v2", v)

	ttl, _ := c.TTL("k")
	require.Equal(t, time.Minute, ttl)
}

func TestCache_DefaultTTL(t *testing.T) {
	ctx := context.Background()

	c, _ := setupCache(t, memcache.WithDefaultTTL(10*time.Minute))
	require.NoError(t, c.Set(ctx, "k", "v", 0))
	ttl, ok := c.TTL("k")
	require.True(t, ok)
	require.Equal(t, 10*time.Minute, ttl)

	forever, clk := setupCache(t)
	require.NoError(t, forever.Set(ctx, "k", "v", 0))
	clk.Advance(24 * 365 * time.Hour)
	_, found, _ := forever.Get(ctx, "k")
	require.True(t, found)
}

func TestCache_DeleteAndCleanup(t *testing.T) {
	ctx := context.Background()
	c, clk := setupCache(t)

	require.NoError(t, c.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, c.Set(ctx, "b", "2", time.Hour))
	require.NoError(t, c.Set(ctx, "c", "3", time.Hour))

	require.NoError(t, c.Delete(ctx, "c", "missing"))
	require.Equal(t, 2, c.Len())

	clk.Advance(2 * time.Minute)
	require.Equal(t, 1, c.Cleanup())
	require.Equal(t, 1, c.Len())
	require.NoError(t, c.Ping(ctx))
}

func TestCache_RunStopsOnCancel(t *testing.T) {
	c := memcache.New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
