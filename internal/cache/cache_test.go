package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type aggregate struct {
	Total int    `json:"total"`
	Label string `json:"label"`
}

func setupTestCache(t *testing.T) (*AggregateCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	c, err := NewAggregateCache(mr.Addr(), 0)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
		mr.Close()
	})

	return c, mr
}

func TestNewAggregateCache(t *testing.T) {
	c, _ := setupTestCache(t)

	assert.NotNil(t, c.client)
	assert.Equal(t, DefaultTTL, c.TTL())
}

func TestNewAggregateCache_InvalidAddress(t *testing.T) {
	_, err := NewAggregateCache("invalid:99999", time.Minute)
	assert.Error(t, err)
}

func TestGet_Miss(t *testing.T) {
	c, _ := setupTestCache(t)

	var got aggregate
	assert.False(t, c.Get(context.Background(), &got))
}

func TestSetGet_RoundTrip(t *testing.T) {
	c, mr := setupTestCache(t)

	require.NoError(t, c.Set(context.Background(), aggregate{Total: 3, Label: "ok"}))

	var got aggregate
	require.True(t, c.Get(context.Background(), &got))
	assert.Equal(t, aggregate{Total: 3, Label: "ok"}, got)

	raw, err := mr.Get(DashboardKey)
	require.NoError(t, err)
	assert.Contains(t, raw, `"cached_at"`)
	assert.Equal(t, DefaultTTL, mr.TTL(DashboardKey))
}

func TestGet_AgeCheck(t *testing.T) {
	c, mr := setupTestCache(t)
	stored := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return stored }
	require.NoError(t, c.Set(context.Background(), aggregate{Total: 1}))

	c.now = func() time.Time { return stored.Add(299 * time.Second) }
	var got aggregate
	assert.True(t, c.Get(context.Background(), &got))
	assert.True(t, mr.Exists(DashboardKey))

	c.now = func() time.Time { return stored.Add(301 * time.Second) }
	assert.False(t, c.Get(context.Background(), &got))
	assert.False(t, mr.Exists(DashboardKey))
}

func TestGet_StoreExpiry(t *testing.T) {
	c, mr := setupTestCache(t)
	require.NoError(t, c.Set(context.Background(), aggregate{Total: 1}))

	mr.FastForward(DefaultTTL + time.Second)

	var got aggregate
	assert.False(t, c.Get(context.Background(), &got))
}

func TestGet_CorruptEntryIsMiss(t *testing.T) {
	c, mr := setupTestCache(t)
	require.NoError(t, mr.Set(DashboardKey, "not json"))

	var got aggregate
	assert.False(t, c.Get(context.Background(), &got))
}

func TestGet_RedisDownIsMiss(t *testing.T) {
	c, mr := setupTestCache(t)
	require.NoError(t, c.Set(context.Background(), aggregate{Total: 1}))
	mr.Close()

	var got aggregate
	assert.False(t, c.Get(context.Background(), &got))
}

func TestClear(t *testing.T) {
	c, mr := setupTestCache(t)
	require.NoError(t, c.Set(context.Background(), aggregate{Total: 1}))

	require.NoError(t, c.Clear(context.Background()))

	assert.False(t, mr.Exists(DashboardKey))
	var got aggregate
	assert.False(t, c.Get(context.Background(), &got))
}
