package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemoryStore(zap.NewNop())
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	item := newItem("https://example.com/a", suiteNow)
	require.NoError(t, s.CreateItem(ctx, item))
	item.ReportCount = 99

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ReportCount)

	got.ReportCount = 50
	again, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.ReportCount)
}

func TestMemoryStore_ResetTenantHonoursCancellation(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	_, err := s.IncrementUsage(context.Background(), "guild-1", "a", suiteNow)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.ResetTenant(ctx, "guild-1", suiteNow)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryCache(t *testing.T) {
	c := NewInMemoryCache(2, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, c.Set(ctx, "a", 10, time.Minute))
	v, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, c.Size())

	// At capacity the expired entry goes before any live one
	require.NoError(t, c.Set(ctx, "expired", 2, -time.Second))
	require.NoError(t, c.Set(ctx, "b", 3, time.Minute))
	assert.Equal(t, 2, c.Size())
	_, err = c.Get(ctx, "expired")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)

	require.NoError(t, c.Delete(ctx, "a"))
	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, c.Delete(ctx, "missing"))

	c.Close()
	c.Close()
}

func TestInMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewInMemoryCache(2, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))

	// Touch a so b becomes the eviction candidate
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "c", 3, time.Minute))
	assert.Equal(t, 2, c.Size())

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestCacheIdempotencyStore(t *testing.T) {
	s := NewCacheIdempotencyStore(NewInMemoryCache(10, zap.NewNop()))
	defer s.Close()
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	value := []byte(`{"item_id":"x"}`)
	require.NoError(t, s.Set(ctx, "k", value, time.Minute))
	value[0] = 'X'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"item_id":"x"}`, string(got))

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Ping(ctx))
}
