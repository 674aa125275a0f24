package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) Cache {
	t.Helper()
	c, err := NewBadger("") // in-memory
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGetSetDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	value, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", value)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	// Deleting again is fine.
	require.NoError(t, c.Delete(ctx, "k"))
}

func TestSetNX(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	set, err := c.SetNX(ctx, "dedup:100:abc", "1", time.Minute)
	require.NoError(t, err)
	require.True(t, set)

	// Second test-and-set observes the marker.
	set, err = c.SetNX(ctx, "dedup:100:abc", "1", time.Minute)
	require.NoError(t, err)
	require.False(t, set)
}

func TestSetNXExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	set, err := c.SetNX(ctx, "short", "1", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, set)

	time.Sleep(120 * time.Millisecond)
	set, err = c.SetNX(ctx, "short", "1", time.Minute)
	require.NoError(t, err)
	require.True(t, set, "expired marker should be settable again")
}

func TestIncr(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.Incr(ctx, "missed:100:20260825", time.Hour)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestSetNXConcurrentSingleWinner(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set, err := c.SetNX(ctx, "nudge:100", "1", time.Minute)
			require.NoError(t, err)
			if set {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), winners.Load(), "exactly one concurrent test-and-set may win")
}

func TestIncrConcurrent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Incr(ctx, "missed:100:20260825", time.Hour)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := c.Incr(ctx, "missed:100:20260825", time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(51), got, "conflicting increments must retry, not get lost")
}

func TestWindow(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * 100 * time.Millisecond)
		require.NoError(t, c.WindowAdd(ctx, "ratelimit:global", fmt.Sprintf("m%d", i), at, time.Minute))
	}

	count, err := c.WindowCount(ctx, "ratelimit:global", base)
	require.NoError(t, err)
	require.Equal(t, 5, count)

	// A later cutoff excludes the older members.
	count, err = c.WindowCount(ctx, "ratelimit:global", base.Add(250*time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, 2, count)

	oldest, found, err := c.WindowOldest(ctx, "ratelimit:global", base.Add(250*time.Millisecond))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, base.Add(300*time.Millisecond).UnixNano(), oldest.UnixNano())

	_, found, err = c.WindowOldest(ctx, "ratelimit:global", base.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, found)
}

func TestWindowKeysDoNotCollide(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, c.WindowAdd(ctx, "w:a", "x", now, time.Minute))
	require.NoError(t, c.WindowAdd(ctx, "w:b", "x", now, time.Minute))

	count, err := c.WindowCount(ctx, "w:a", now.Add(-time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
