package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, maxEntries int) Cache {
	t.Helper()
	c := NewCache("test", maxEntries, 50*time.Millisecond)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSetAndGet(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "search:waiting period", []string{"doc1", "doc2"}, 60))

	v, found, err := c.Get(ctx, "search:waiting period")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"doc1", "doc2"}, v)
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t, 0)

	_, found, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", "value", 1))

	_, found, err := c.Get(ctx, "short")
	require.NoError(t, err)
	require.True(t, found)

	time.Sleep(1100 * time.Millisecond)

	_, found, err = c.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, found, "entry should expire after its TTL")
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "forever", 42, 0))

	time.Sleep(150 * time.Millisecond) // past at least one janitor pass

	v, found, err := c.Get(ctx, "forever")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 42, v)
}

func TestDeleteAndClear(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, 60))
	require.NoError(t, c.Set(ctx, "b", 2, 60))

	require.NoError(t, c.Delete(ctx, "a"))
	has, err := c.Has(ctx, "a")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, c.Clear(ctx))
	has, err = c.Has(ctx, "b")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestInvalidatePattern(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "search:alpha", 1, 60))
	require.NoError(t, c.Set(ctx, "search:beta", 2, 60))
	require.NoError(t, c.Set(ctx, "answer:gamma", 3, 60))

	require.NoError(t, c.Invalidate(ctx, "search:*"))

	has, _ := c.Has(ctx, "search:alpha")
	assert.False(t, has)
	has, _ = c.Has(ctx, "search:beta")
	assert.False(t, has)
	has, _ = c.Has(ctx, "answer:gamma")
	assert.True(t, has, "non-matching keys survive invalidation")
}

func TestLRUEviction(t *testing.T) {
	c := newTestCache(t, 2)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "old", 1, 60))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Set(ctx, "new", 2, 60))

	// Touch "old" so "new" becomes least recently used.
	_, _, err := c.Get(ctx, "old")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "newest", 3, 60))

	has, _ := c.Has(ctx, "new")
	assert.False(t, has, "least recently used entry should be evicted")
	has, _ = c.Has(ctx, "old")
	assert.True(t, has)
	has, _ = c.Has(ctx, "newest")
	assert.True(t, has)
}

func TestStats(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 60))

	_, _, _ = c.Get(ctx, "k")    // hit
	_, _, _ = c.Get(ctx, "gone") // miss

	s, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 1, s.Entries)
}

func TestJanitorRemovesExpired(t *testing.T) {
	c := newTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "dying", "v", 1))

	require.Eventually(t, func() bool {
		s, err := c.Stats(ctx)
		return err == nil && s.Entries == 0
	}, 3*time.Second, 100*time.Millisecond, "janitor should remove the expired entry")
}
